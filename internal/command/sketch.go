package command

import (
	"maps"
	"math"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
)

// radiusTolerance bounds the difference between an arc's start and end radii.
const radiusTolerance = 1e-6

// sketchOf returns the sketch feature id names.
func sketchOf(snap *document.Snapshot, id document.FeatureID) (*document.Sketch, error) {
	f, err := existing(snap, id)
	if err != nil {
		return nil, err
	}
	s, ok := f.(*document.Sketch)
	if !ok {
		return nil, invalid("sketch", "feature %s is a %s, not a sketch", id, f.Kind())
	}
	return s, nil
}

func elementNotFound(id string) *NotFoundError {
	return &NotFoundError{What: "sketch element", ID: id}
}

// addElement allocates the next id for prefix on this replica and stages
// the element and the advanced counter. Each replica writes only its own
// counter slot.
func (l *Layer) addElement(tx *document.Tx, sk *document.Sketch, prefix, group string, v ir.Value) string {
	eid := sk.Data.NextID(prefix, string(l.doc.Replica()))
	id := eid.String()
	tx.SetField(sk.ID, group+"."+id, v)
	tx.SetField(sk.ID, document.GroupCounters+"."+eid.CounterKey(), ir.Int(int64(eid.N)))
	return id
}

func checkCoord(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "must be finite")
	}
	return nil
}

// AddPoint adds a point and returns its id.
func (l *Layer) AddPoint(sketch document.FeatureID, x, y float64) (string, error) {
	if err := checkCoord("x", x); err != nil {
		return "", err
	}
	if err := checkCoord("y", y); err != nil {
		return "", err
	}
	var id string
	err := l.update("addPoint", func(tx *document.Tx) error {
		sk, err := sketchOf(tx.Snapshot(), sketch)
		if err != nil {
			return err
		}
		id = l.addElement(tx, sk, document.PrefixPoint, document.GroupPoints, document.PointValue(document.Point{X: x, Y: y}))
		return nil
	})
	return id, err
}

// MovePoint sets a point's coordinates.
func (l *Layer) MovePoint(sketch document.FeatureID, point string, x, y float64) error {
	if err := checkCoord("x", x); err != nil {
		return err
	}
	if err := checkCoord("y", y); err != nil {
		return err
	}
	return l.update("movePoint", func(tx *document.Tx) error {
		sk, err := sketchOf(tx.Snapshot(), sketch)
		if err != nil {
			return err
		}
		if _, ok := sk.Data.Points[point]; !ok {
			return elementNotFound(point)
		}
		tx.SetField(sk.ID, document.GroupPoints+"."+point, document.PointValue(document.Point{X: x, Y: y}))
		return nil
	})
}

func requirePoints(sk *document.Sketch, ids ...string) error {
	for _, id := range ids {
		if _, ok := sk.Data.Points[id]; !ok {
			return elementNotFound(id)
		}
	}
	return nil
}

// AddLine adds a line between two existing points.
func (l *Layer) AddLine(sketch document.FeatureID, start, end string) (string, error) {
	if start == end {
		return "", invalid("end", "a line needs two distinct points")
	}
	var id string
	err := l.update("addLine", func(tx *document.Tx) error {
		sk, err := sketchOf(tx.Snapshot(), sketch)
		if err != nil {
			return err
		}
		if err := requirePoints(sk, start, end); err != nil {
			return err
		}
		e := document.Entity{Kind: document.EntityLine, Start: start, End: end}
		id = l.addElement(tx, sk, document.PrefixLine, document.GroupEntities, document.EntityValue(e))
		return nil
	})
	return id, err
}

// AddArc adds an arc around center from start to end. start == end makes a
// full circle.
func (l *Layer) AddArc(sketch document.FeatureID, center, start, end string, ccw bool) (string, error) {
	if center == start || center == end {
		return "", invalid("center", "must differ from the arc ends")
	}
	var id string
	err := l.update("addArc", func(tx *document.Tx) error {
		sk, err := sketchOf(tx.Snapshot(), sketch)
		if err != nil {
			return err
		}
		if err := requirePoints(sk, center, start, end); err != nil {
			return err
		}
		c, s, e := sk.Data.Points[center], sk.Data.Points[start], sk.Data.Points[end]
		r1 := math.Hypot(s.X-c.X, s.Y-c.Y)
		r2 := math.Hypot(e.X-c.X, e.Y-c.Y)
		if r1 == 0 || math.Abs(r1-r2) > radiusTolerance*math.Max(1, r1) {
			return invalid("end", "start and end are not on one circle around %s", center)
		}
		arc := document.Entity{Kind: document.EntityArc, Start: start, End: end, Center: center, CCW: ccw}
		id = l.addElement(tx, sk, document.PrefixArc, document.GroupEntities, document.EntityValue(arc))
		return nil
	})
	return id, err
}

// AddConstraint records a constraint over existing sketch elements. Solving
// it is the kernel's concern.
func (l *Layer) AddConstraint(sketch document.FeatureID, kind string, refs []string, value *float64) (string, error) {
	if !slices.Contains(document.ConstraintKinds, kind) {
		return "", invalid("kind", "%q is not one of %v", kind, document.ConstraintKinds)
	}
	if len(refs) == 0 {
		return "", invalid("refs", "at least one element is required")
	}
	if value != nil {
		if err := checkCoord("value", *value); err != nil {
			return "", err
		}
	}
	var id string
	err := l.update("addConstraint", func(tx *document.Tx) error {
		sk, err := sketchOf(tx.Snapshot(), sketch)
		if err != nil {
			return err
		}
		for _, r := range refs {
			if _, ok := sk.Data.Points[r]; ok {
				continue
			}
			if _, ok := sk.Data.Entities[r]; ok {
				continue
			}
			return elementNotFound(r)
		}
		c := document.Constraint{Kind: kind, Refs: slices.Clone(refs), Value: value}
		id = l.addElement(tx, sk, document.PrefixConstraint, document.GroupConstraints, document.ConstraintValue(c))
		return nil
	})
	return id, err
}

// RemoveSketchElement removes a point, entity or constraint. A point still
// used by an entity cannot be removed; constraints on a removed element are
// removed with it.
func (l *Layer) RemoveSketchElement(sketch document.FeatureID, element string) error {
	return l.update("removeSketchElement", func(tx *document.Tx) error {
		sk, err := sketchOf(tx.Snapshot(), sketch)
		if err != nil {
			return err
		}
		data := sk.Data
		var group string
		switch {
		case hasKey(data.Points, element):
			for _, eid := range data.EntityIDs() {
				if slices.Contains(data.Entities[eid].Points(), element) {
					return invalid("element", "point %s is used by %s", element, eid)
				}
			}
			group = document.GroupPoints
		case hasKey(data.Entities, element):
			group = document.GroupEntities
		case hasKey(data.Constraints, element):
			group = document.GroupConstraints
		default:
			return elementNotFound(element)
		}
		tx.DeleteField(sk.ID, group+"."+element)
		if group != document.GroupConstraints {
			cids := slices.Collect(maps.Keys(data.Constraints))
			slices.SortFunc(cids, document.CompareElementIDs)
			for _, cid := range cids {
				if slices.Contains(data.Constraints[cid].Refs, element) {
					tx.DeleteField(sk.ID, document.GroupConstraints+"."+cid)
				}
			}
		}
		return nil
	})
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}
