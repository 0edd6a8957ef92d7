package document

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/parcad/internal/ir"
)

// Sketch element groups. Each element is its own replicated slot, keyed
// "<group>.<id>", so concurrent edits to different elements never conflict.
const (
	GroupPoints      = "points"
	GroupEntities    = "entities"
	GroupConstraints = "constraints"
	GroupCounters    = "counters"
)

// SketchGroups lists the nested groups of a sketch record.
func SketchGroups() []string {
	return []string{GroupPoints, GroupEntities, GroupConstraints, GroupCounters}
}

// Sketch element id prefixes.
const (
	PrefixPoint      = "pt"
	PrefixLine       = "ln"
	PrefixArc        = "ar"
	PrefixConstraint = "cn"
)

// Entity kinds.
const (
	EntityLine = "line"
	EntityArc  = "arc"
)

// ConstraintKinds lists the recognised constraint kinds.
var ConstraintKinds = []string{
	"coincident", "horizontal", "vertical", "parallel", "perpendicular",
	"tangent", "equal", "distance", "radius", "angle", "fixed",
}

// Point is a sketch point in plane coordinates.
type Point struct {
	X, Y float64
}

// Entity is a sketch curve. Lines use Start/End; arcs also use Center and CCW.
type Entity struct {
	Kind   string
	Start  string
	End    string
	Center string
	CCW    bool
}

// Points returns the point ids the entity depends on.
func (e Entity) Points() []string {
	if e.Kind == EntityArc {
		return []string{e.Start, e.End, e.Center}
	}
	return []string{e.Start, e.End}
}

// Constraint relates sketch elements. Solving is the kernel's concern.
type Constraint struct {
	Kind  string
	Refs  []string
	Value *float64
}

// SketchData is the element arena embedded in a sketch feature.
// Ids are unique within one sketch only. Counters are keyed by CounterKey.
type SketchData struct {
	Points      map[string]Point
	Entities    map[string]Entity
	Constraints map[string]Constraint
	Counters    map[string]int
}

// NewSketchData returns empty sketch data.
func NewSketchData() SketchData {
	return SketchData{
		Points:      map[string]Point{},
		Entities:    map[string]Entity{},
		Constraints: map[string]Constraint{},
		Counters:    map[string]int{},
	}
}

// ElementID names a sketch element: a kind prefix, a counter and the
// replica that allocated it, written "pt3@b". Ids built by hand or by a
// single writer may omit the replica ("pt3"). Two replicas never allocate
// the same id, so concurrent additions to one sketch land in distinct
// slots.
type ElementID struct {
	Prefix  string
	N       int
	Replica string
}

func (e ElementID) String() string {
	id := e.Prefix + strconv.Itoa(e.N)
	if e.Replica != "" {
		id += "@" + e.Replica
	}
	return id
}

// CounterKey returns the counters slot that tracks e's allocator.
func (e ElementID) CounterKey() string {
	return CounterKey(e.Prefix, e.Replica)
}

// CounterKey returns the counters slot of prefix on replica: "pt@b", or
// "pt" for an unqualified allocator.
func CounterKey(prefix, replica string) string {
	if replica == "" {
		return prefix
	}
	return prefix + "@" + replica
}

// ParseElementID parses "ln12" or "ln12@b".
func ParseElementID(id string) (ElementID, bool) {
	local, replica, qualified := strings.Cut(id, "@")
	if qualified && (replica == "" || strings.Contains(replica, "@")) {
		return ElementID{}, false
	}
	i := strings.IndexFunc(local, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return ElementID{}, false
	}
	n, err := strconv.Atoi(local[i:])
	if err != nil || n <= 0 || strconv.Itoa(n) != local[i:] {
		return ElementID{}, false
	}
	return ElementID{Prefix: local[:i], N: n, Replica: replica}, true
}

// CompareElementIDs orders ids naturally: by prefix, then numerically,
// then by replica, so that ln2 sorts before ln10.
func CompareElementIDs(a, b string) int {
	ea, okA := ParseElementID(a)
	eb, okB := ParseElementID(b)
	if !okA || !okB || ea.Prefix != eb.Prefix {
		return strings.Compare(a, b)
	}
	switch {
	case ea.N < eb.N:
		return -1
	case ea.N > eb.N:
		return 1
	}
	return strings.Compare(ea.Replica, eb.Replica)
}

// NextID returns the next unused id for prefix allocated by replica. Ids
// are monotonic per replica: the counter never goes back even after the
// highest element is removed.
func (s SketchData) NextID(prefix, replica string) ElementID {
	next := ElementID{Prefix: prefix, N: s.Counters[CounterKey(prefix, replica)], Replica: replica}
	check := func(id string) {
		if e, ok := ParseElementID(id); ok && e.Prefix == prefix && e.Replica == replica && e.N > next.N {
			next.N = e.N
		}
	}
	for id := range s.Points {
		check(id)
	}
	for id := range s.Entities {
		check(id)
	}
	for id := range s.Constraints {
		check(id)
	}
	next.N++
	return next
}

// Has reports whether id names any element of the sketch.
func (s SketchData) Has(id string) bool {
	if _, ok := s.Points[id]; ok {
		return true
	}
	if _, ok := s.Entities[id]; ok {
		return true
	}
	_, ok := s.Constraints[id]
	return ok
}

// EntityIDs returns entity ids in natural order.
func (s SketchData) EntityIDs() []string {
	ids := make([]string, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareElementIDs)
	return ids
}

// Slots returns the flattened slot keys and values of the sketch data.
func (s SketchData) Slots() map[string]ir.Value {
	out := make(map[string]ir.Value)
	for id, p := range s.Points {
		out[GroupPoints+"."+id] = PointValue(p)
	}
	for id, e := range s.Entities {
		out[GroupEntities+"."+id] = EntityValue(e)
	}
	for id, c := range s.Constraints {
		out[GroupConstraints+"."+id] = ConstraintValue(c)
	}
	for key, n := range s.Counters {
		out[GroupCounters+"."+key] = ir.Int(int64(n))
	}
	return out
}

func (s SketchData) encode() ir.Object {
	groups := ir.Object{
		GroupPoints:      ir.Object{},
		GroupEntities:    ir.Object{},
		GroupConstraints: ir.Object{},
		GroupCounters:    ir.Object{},
	}
	for key, v := range s.Slots() {
		group, id, _ := strings.Cut(key, ".")
		groups[group].(ir.Object)[id] = v
	}
	return groups
}

// PointValue encodes a point slot.
func PointValue(p Point) ir.Value {
	return ir.Object{"x": ir.Float(p.X), "y": ir.Float(p.Y)}
}

// EntityValue encodes an entity slot.
func EntityValue(e Entity) ir.Value {
	obj := ir.Object{
		"kind":  ir.String(e.Kind),
		"start": ir.String(e.Start),
		"end":   ir.String(e.End),
	}
	if e.Kind == EntityArc {
		obj["center"] = ir.String(e.Center)
		obj["ccw"] = ir.Bool(e.CCW)
	}
	return obj
}

// ConstraintValue encodes a constraint slot.
func ConstraintValue(c Constraint) ir.Value {
	obj := ir.Object{
		"kind": ir.String(c.Kind),
		"refs": ir.Strings(c.Refs...),
	}
	if c.Value != nil {
		obj["value"] = ir.Float(*c.Value)
	}
	return obj
}

func decodeSketchData(rec ir.Object) (SketchData, error) {
	data := NewSketchData()
	group := func(name string) (ir.Object, error) {
		v, ok := rec[name]
		if !ok {
			return ir.Object{}, nil
		}
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("sketch %s must be an object", name)
		}
		return obj, nil
	}

	points, err := group(GroupPoints)
	if err != nil {
		return data, err
	}
	for id, v := range points {
		p, err := decodePoint(v)
		if err != nil {
			return data, fmt.Errorf("point %s: %w", id, err)
		}
		data.Points[id] = p
	}

	entities, err := group(GroupEntities)
	if err != nil {
		return data, err
	}
	for id, v := range entities {
		e, err := decodeEntity(v)
		if err != nil {
			return data, fmt.Errorf("entity %s: %w", id, err)
		}
		data.Entities[id] = e
	}

	constraints, err := group(GroupConstraints)
	if err != nil {
		return data, err
	}
	for id, v := range constraints {
		c, err := decodeConstraint(v)
		if err != nil {
			return data, fmt.Errorf("constraint %s: %w", id, err)
		}
		data.Constraints[id] = c
	}

	counters, err := group(GroupCounters)
	if err != nil {
		return data, err
	}
	for key, v := range counters {
		n, ok := v.(ir.Int)
		if !ok || n < 0 {
			return data, fmt.Errorf("counter %s must be a non-negative integer", key)
		}
		data.Counters[key] = int(n)
	}
	return data, nil
}

func decodePoint(v ir.Value) (Point, error) {
	obj, ok := v.(ir.Object)
	if !ok {
		return Point{}, fmt.Errorf("expected {x, y}")
	}
	x, okX := ir.AsFloat(obj["x"])
	y, okY := ir.AsFloat(obj["y"])
	if !okX || !okY {
		return Point{}, fmt.Errorf("expected numeric x and y")
	}
	return Point{X: x, Y: y}, nil
}

func decodeEntity(v ir.Value) (Entity, error) {
	obj, ok := v.(ir.Object)
	if !ok {
		return Entity{}, fmt.Errorf("expected object")
	}
	r := &fieldReader{obj: obj}
	e := Entity{
		Kind:  r.enum("kind", EntityLine, EntityArc),
		Start: r.str("start", true),
		End:   r.str("end", true),
	}
	if e.Kind == EntityArc {
		e.Center = r.str("center", true)
		e.CCW = r.boolean("ccw", true)
	}
	return e, r.err
}

func decodeConstraint(v ir.Value) (Constraint, error) {
	obj, ok := v.(ir.Object)
	if !ok {
		return Constraint{}, fmt.Errorf("expected object")
	}
	r := &fieldReader{obj: obj}
	c := Constraint{Kind: r.str("kind", true)}
	if r.err == nil && !slices.Contains(ConstraintKinds, c.Kind) {
		r.fail("unknown constraint kind %q", c.Kind)
	}
	refs, ok := ir.AsStrings(obj["refs"])
	if !ok && r.err == nil {
		r.fail("refs must be a list of element ids")
	}
	c.Refs = refs
	if val, present := r.get("value", false); present {
		f, ok := ir.AsFloat(val)
		if !ok {
			r.fail("value must be a number")
		}
		c.Value = &f
	}
	return c, r.err
}
