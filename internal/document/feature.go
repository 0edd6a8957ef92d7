package document

import (
	"fmt"
	"slices"

	"github.com/roach88/parcad/internal/ir"
)

// Kind is the feature record discriminant.
type Kind string

const (
	KindOrigin  Kind = "origin"
	KindPlane   Kind = "plane"
	KindAxis    Kind = "axis"
	KindSketch  Kind = "sketch"
	KindExtrude Kind = "extrude"
	KindRevolve Kind = "revolve"
	KindBoolean Kind = "boolean"
)

// Kinds lists every feature kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindOrigin, KindPlane, KindAxis, KindSketch, KindExtrude, KindRevolve, KindBoolean}
}

// Enumerations carried by feature records.
const (
	OpAdd       = "add"
	OpCut       = "cut"
	OpNew       = "new"
	OpIntersect = "intersect"

	ExtentBlind      = "blind"
	ExtentSymmetric  = "symmetric"
	ExtentThroughAll = "throughAll"
	ExtentUpToFace   = "upToFace"

	ScopeAll      = "all"
	ScopeSelected = "selected"
	ScopeNone     = "none"

	BoolUnion     = "union"
	BoolSubtract  = "subtract"
	BoolIntersect = "intersect"

	RoleXY = "xy"
	RoleXZ = "xz"
	RoleYZ = "yz"
)

var (
	solidOps    = []string{OpAdd, OpCut, OpNew, OpIntersect}
	extents     = []string{ExtentBlind, ExtentSymmetric, ExtentThroughAll, ExtentUpToFace}
	mergeScopes = []string{ScopeAll, ScopeSelected, ScopeNone}
	booleanOps  = []string{BoolUnion, BoolSubtract, BoolIntersect}
	planeRoles  = []string{"", RoleXY, RoleXZ, RoleYZ}
)

// Common holds the fields every feature record carries.
type Common struct {
	ID         FeatureID
	Name       string
	Suppressed bool
	Hidden     bool
}

// Feature is the closed union of feature records.
//
// Dispatch goes through Accept so that adding a kind forces every Visitor
// implementation to handle it.
type Feature interface {
	Kind() Kind
	Base() *Common
	Accept(v Visitor) error
}

// Visitor handles each feature kind.
type Visitor interface {
	VisitOrigin(f *Origin) error
	VisitPlane(f *Plane) error
	VisitAxis(f *Axis) error
	VisitSketch(f *Sketch) error
	VisitExtrude(f *Extrude) error
	VisitRevolve(f *Revolve) error
	VisitBoolean(f *Boolean) error
}

// Origin is the pinned coordinate origin.
type Origin struct {
	Common
}

// Plane is a datum plane: one of the pinned planes (Role set) or a plane
// offset from a base plane or face.
type Plane struct {
	Common
	Role       string
	BaseTarget string // FeatureID or ref token; wire key "base"
	Offset     Param
}

// Axis is a datum axis defined by an edge reference or by a point and
// direction.
type Axis struct {
	Common
	Ref       string
	Point     *[3]float64
	Direction *[3]float64
}

// Sketch is a 2D sketch on a plane or planar face.
type Sketch struct {
	Common
	Plane string // FeatureID or ref token
	Data  SketchData
}

// Extrude sweeps the closed loops of a sketch along the sketch normal.
type Extrude struct {
	Common
	Sketch       FeatureID
	Distance     Param
	Op           string
	Extent       string
	ExtentRef    RefParam
	MergeScope   string
	TargetBodies []FeatureID
}

// Revolve sweeps the closed loops of a sketch around an axis.
type Revolve struct {
	Common
	Sketch FeatureID
	Axis   string // FeatureID or ref token
	Angle  Param  // degrees
	Op     string
}

// Boolean combines the bodies of earlier features.
type Boolean struct {
	Common
	Op     string
	Target FeatureID
	Tools  []FeatureID
}

func (f *Origin) Kind() Kind  { return KindOrigin }
func (f *Plane) Kind() Kind   { return KindPlane }
func (f *Axis) Kind() Kind    { return KindAxis }
func (f *Sketch) Kind() Kind  { return KindSketch }
func (f *Extrude) Kind() Kind { return KindExtrude }
func (f *Revolve) Kind() Kind { return KindRevolve }
func (f *Boolean) Kind() Kind { return KindBoolean }

func (c *Common) Base() *Common { return c }

func (f *Origin) Accept(v Visitor) error  { return v.VisitOrigin(f) }
func (f *Plane) Accept(v Visitor) error   { return v.VisitPlane(f) }
func (f *Axis) Accept(v Visitor) error    { return v.VisitAxis(f) }
func (f *Sketch) Accept(v Visitor) error  { return v.VisitSketch(f) }
func (f *Extrude) Accept(v Visitor) error { return v.VisitExtrude(f) }
func (f *Revolve) Accept(v Visitor) error { return v.VisitRevolve(f) }
func (f *Boolean) Accept(v Visitor) error { return v.VisitBoolean(f) }

// IsDatum reports whether f is the origin or a pinned datum plane. The
// pinned prefix of the order is the leading run of such features.
func IsDatum(f Feature) bool {
	switch f := f.(type) {
	case *Origin:
		return true
	case *Plane:
		return f.Role != ""
	}
	return false
}

// EncodeFeature renders f as a nested record object.
func EncodeFeature(f Feature) ir.Object {
	enc := encoder{obj: ir.Object{}}
	// Encoding never fails.
	_ = f.Accept(&enc)

	c := f.Base()
	enc.obj["id"] = ir.String(c.ID)
	enc.obj["type"] = ir.String(f.Kind())
	if c.Name != "" {
		enc.obj["name"] = ir.String(c.Name)
	}
	enc.obj["suppressed"] = ir.Bool(c.Suppressed)
	enc.obj["visible"] = ir.Bool(!c.Hidden)
	return enc.obj
}

type encoder struct {
	obj ir.Object
}

func (e *encoder) VisitOrigin(*Origin) error { return nil }

func (e *encoder) VisitPlane(f *Plane) error {
	e.obj["role"] = ir.String(f.Role)
	if f.Role == "" {
		e.obj["base"] = ir.String(f.BaseTarget)
		e.obj["offset"] = f.Offset.ToValue()
	}
	return nil
}

func (e *encoder) VisitAxis(f *Axis) error {
	if f.Ref != "" {
		e.obj["ref"] = ir.String(f.Ref)
	}
	if f.Point != nil {
		e.obj["point"] = vecValue(*f.Point)
	}
	if f.Direction != nil {
		e.obj["direction"] = vecValue(*f.Direction)
	}
	return nil
}

func (e *encoder) VisitSketch(f *Sketch) error {
	e.obj["plane"] = ir.String(f.Plane)
	for k, v := range f.Data.encode() {
		e.obj[k] = v
	}
	return nil
}

func (e *encoder) VisitExtrude(f *Extrude) error {
	e.obj["sketch"] = ir.String(f.Sketch)
	e.obj["distance"] = f.Distance.ToValue()
	e.obj["op"] = ir.String(f.Op)
	e.obj["extent"] = ir.String(f.Extent)
	e.obj["extentRef"] = f.ExtentRef.ToValue()
	e.obj["mergeScope"] = ir.String(f.MergeScope)
	e.obj["targetBodies"] = idsValue(f.TargetBodies)
	return nil
}

func (e *encoder) VisitRevolve(f *Revolve) error {
	e.obj["sketch"] = ir.String(f.Sketch)
	e.obj["axis"] = ir.String(f.Axis)
	e.obj["angle"] = f.Angle.ToValue()
	e.obj["op"] = ir.String(f.Op)
	return nil
}

func (e *encoder) VisitBoolean(f *Boolean) error {
	e.obj["op"] = ir.String(f.Op)
	e.obj["target"] = ir.String(f.Target)
	e.obj["tools"] = idsValue(f.Tools)
	return nil
}

func vecValue(v [3]float64) ir.Value {
	return ir.Array{ir.Float(v[0]), ir.Float(v[1]), ir.Float(v[2])}
}

func idsValue(ids []FeatureID) ir.Value {
	arr := make(ir.Array, len(ids))
	for i, id := range ids {
		arr[i] = ir.String(id)
	}
	return arr
}

// DecodeError reports a record that does not decode into a feature.
type DecodeError struct {
	ID     FeatureID
	Reason string
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return "decode feature: " + e.Reason
	}
	return fmt.Sprintf("decode feature %s: %s", e.ID, e.Reason)
}

// DecodeFeature parses a nested record object.
func DecodeFeature(rec ir.Object) (Feature, error) {
	r := &fieldReader{obj: rec}
	id := FeatureID(r.str("id", true))
	kind := Kind(r.str("type", true))
	if r.err != nil {
		return nil, &DecodeError{ID: id, Reason: r.err.Error()}
	}

	c := Common{
		ID:         id,
		Name:       r.str("name", false),
		Suppressed: r.boolean("suppressed", false),
		Hidden:     !r.boolean("visible", true),
	}

	var f Feature
	switch kind {
	case KindOrigin:
		f = &Origin{Common: c}
	case KindPlane:
		p := &Plane{Common: c, Role: r.enum("role", planeRoles...)}
		if p.Role == "" {
			p.BaseTarget = r.str("base", true)
			p.Offset = r.param("offset", true)
		}
		f = p
	case KindAxis:
		a := &Axis{Common: c, Ref: r.str("ref", false), Point: r.vec("point"), Direction: r.vec("direction")}
		if r.err == nil && a.Ref == "" && (a.Point == nil || a.Direction == nil) {
			r.fail("axis needs ref or point and direction")
		}
		f = a
	case KindSketch:
		s := &Sketch{Common: c, Plane: r.str("plane", true)}
		if r.err == nil {
			data, err := decodeSketchData(rec)
			if err != nil {
				r.fail("%v", err)
			}
			s.Data = data
		}
		f = s
	case KindExtrude:
		f = &Extrude{
			Common:       c,
			Sketch:       FeatureID(r.str("sketch", true)),
			Distance:     r.param("distance", true),
			Op:           r.enum("op", solidOps...),
			Extent:       r.enum("extent", extents...),
			ExtentRef:    r.ref("extentRef"),
			MergeScope:   r.enum("mergeScope", mergeScopes...),
			TargetBodies: r.ids("targetBodies"),
		}
	case KindRevolve:
		f = &Revolve{
			Common: c,
			Sketch: FeatureID(r.str("sketch", true)),
			Axis:   r.str("axis", true),
			Angle:  r.param("angle", true),
			Op:     r.enum("op", solidOps...),
		}
	case KindBoolean:
		f = &Boolean{
			Common: c,
			Op:     r.enum("op", booleanOps...),
			Target: FeatureID(r.str("target", true)),
			Tools:  r.ids("tools"),
		}
	default:
		return nil, &DecodeError{ID: id, Reason: fmt.Sprintf("unknown feature type %q", kind)}
	}

	if r.err != nil {
		return nil, &DecodeError{ID: id, Reason: r.err.Error()}
	}
	return f, nil
}

// fieldReader reads typed fields and keeps the first error.
type fieldReader struct {
	obj ir.Object
	err error
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *fieldReader) get(key string, required bool) (ir.Value, bool) {
	v, ok := r.obj[key]
	if ok {
		if _, isNull := v.(ir.Null); isNull {
			ok = false
		}
	}
	if !ok && required {
		r.fail("missing field %q", key)
	}
	return v, ok
}

func (r *fieldReader) str(key string, required bool) string {
	v, ok := r.get(key, required)
	if !ok {
		return ""
	}
	s, isStr := ir.AsString(v)
	if !isStr {
		r.fail("field %q must be a string", key)
		return ""
	}
	if required && s == "" {
		r.fail("field %q must not be empty", key)
	}
	return s
}

func (r *fieldReader) boolean(key string, def bool) bool {
	v, ok := r.get(key, false)
	if !ok {
		return def
	}
	b, isBool := ir.AsBool(v)
	if !isBool {
		r.fail("field %q must be a boolean", key)
		return def
	}
	return b
}

// enum returns the field value, or allowed[0] when absent.
func (r *fieldReader) enum(key string, allowed ...string) string {
	s := r.str(key, false)
	if _, present := r.get(key, false); !present {
		return allowed[0]
	}
	if !slices.Contains(allowed, s) {
		r.fail("field %q: %q is not one of %v", key, s, allowed)
	}
	return s
}

func (r *fieldReader) param(key string, required bool) Param {
	v, ok := r.get(key, required)
	if !ok {
		return Param{}
	}
	p, err := ParamFromValue(v)
	if err != nil {
		r.fail("field %q: %v", key, err)
	}
	return p
}

func (r *fieldReader) ref(key string) RefParam {
	v, _ := r.get(key, false)
	p, err := RefParamFromValue(v)
	if err != nil {
		r.fail("field %q: %v", key, err)
	}
	return p
}

func (r *fieldReader) ids(key string) []FeatureID {
	v, ok := r.get(key, false)
	if !ok {
		return nil
	}
	ss, isStrs := ir.AsStrings(v)
	if !isStrs {
		r.fail("field %q must be a list of feature ids", key)
		return nil
	}
	out := make([]FeatureID, len(ss))
	for i, s := range ss {
		out[i] = FeatureID(s)
	}
	return out
}

func (r *fieldReader) vec(key string) *[3]float64 {
	v, ok := r.get(key, false)
	if !ok {
		return nil
	}
	out, err := vecFromValue(v)
	if err != nil {
		r.fail("field %q: %v", key, err)
		return nil
	}
	return &out
}

func vecFromValue(v ir.Value) ([3]float64, error) {
	var out [3]float64
	arr, ok := v.(ir.Array)
	if !ok || len(arr) != 3 {
		return out, fmt.Errorf("expected [x, y, z]")
	}
	for i, elem := range arr {
		f, ok := ir.AsFloat(elem)
		if !ok {
			return out, fmt.Errorf("expected [x, y, z]")
		}
		out[i] = f
	}
	return out, nil
}
