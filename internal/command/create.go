package command

import (
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
)

// SketchParams creates a sketch on a datum plane or planar face.
type SketchParams struct {
	Plane string `json:"plane"`
	Name  string `json:"name,omitempty"`
}

// ExtrudeParams creates an extrude. Empty enums take their defaults:
// op add, extent blind, mergeScope all.
type ExtrudeParams struct {
	Sketch       document.FeatureID   `json:"sketch"`
	Distance     document.Param       `json:"distance"`
	Op           string               `json:"op,omitempty"`
	Extent       string               `json:"extent,omitempty"`
	ExtentRef    document.RefParam    `json:"extentRef"`
	MergeScope   string               `json:"mergeScope,omitempty"`
	TargetBodies []document.FeatureID `json:"targetBodies,omitempty"`
	Name         string               `json:"name,omitempty"`
}

// RevolveParams creates a revolve. Angle is in degrees.
type RevolveParams struct {
	Sketch document.FeatureID `json:"sketch"`
	Axis   string             `json:"axis"`
	Angle  document.Param     `json:"angle"`
	Op     string             `json:"op,omitempty"`
	Name   string             `json:"name,omitempty"`
}

// BooleanParams creates a boolean between existing bodies.
type BooleanParams struct {
	Op     string               `json:"op"`
	Target document.FeatureID   `json:"target"`
	Tools  []document.FeatureID `json:"tools"`
	Name   string               `json:"name,omitempty"`
}

// OffsetPlaneParams creates a datum plane offset from a plane or face.
type OffsetPlaneParams struct {
	Base   string         `json:"base"`
	Offset document.Param `json:"offset"`
	Name   string         `json:"name,omitempty"`
}

// AxisParams creates a datum axis from an edge reference or from a point and
// direction.
type AxisParams struct {
	Ref       string      `json:"ref,omitempty"`
	Point     *[3]float64 `json:"point,omitempty"`
	Direction *[3]float64 `json:"direction,omitempty"`
	Name      string      `json:"name,omitempty"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// createFeature inserts f immediately after the insertion point and moves
// the gate to it. check validates f against the snapshot; limit is the
// last order index an input may occupy.
func (l *Layer) createFeature(op string, f document.Feature, check func(snap *document.Snapshot, limit int) error) (document.FeatureID, error) {
	c := f.Base()
	if c.Name != "" {
		name, err := cleanName("name", c.Name)
		if err != nil {
			return "", err
		}
		c.Name = name
	}
	c.ID = l.ids.Generate()

	err := l.update(op, func(tx *document.Tx) error {
		snap := tx.Snapshot()
		if snap.Has(c.ID) {
			return invalid("id", "feature %s already exists", c.ID)
		}
		if err := check(snap, limitFor(snap)); err != nil {
			return err
		}
		if err := tx.Create(f, insertionPoint(snap)); err != nil {
			return err
		}
		tx.SetGate(c.ID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// CreateSketch creates an empty sketch.
func (l *Layer) CreateSketch(p SketchParams) (document.FeatureID, error) {
	f := &document.Sketch{
		Common: document.Common{Name: p.Name},
		Plane:  p.Plane,
		Data:   document.NewSketchData(),
	}
	return l.createFeature("createSketch", f, func(snap *document.Snapshot, limit int) error {
		if p.Plane == "" {
			return invalid("plane", "is required")
		}
		return checkTarget(snap, "plane", p.Plane, limit, geom.Face, planeKinds)
	})
}

// CreateExtrude creates an extrude of a sketch's closed loops.
func (l *Layer) CreateExtrude(p ExtrudeParams) (document.FeatureID, error) {
	f := &document.Extrude{
		Common:       document.Common{Name: p.Name},
		Sketch:       p.Sketch,
		Distance:     p.Distance,
		Op:           orDefault(p.Op, document.OpAdd),
		Extent:       orDefault(p.Extent, document.ExtentBlind),
		ExtentRef:    p.ExtentRef,
		MergeScope:   orDefault(p.MergeScope, document.ScopeAll),
		TargetBodies: slices.Clone(p.TargetBodies),
	}
	return l.createFeature("createExtrude", f, func(snap *document.Snapshot, limit int) error {
		return checkExtrude(snap, f, limit)
	})
}

func checkExtrude(snap *document.Snapshot, f *document.Extrude, limit int) error {
	if err := checkFeature(snap, "sketch", f.Sketch, limit, sketchKinds); err != nil {
		return err
	}
	if err := checkEnum("op", f.Op, document.OpAdd, document.OpCut, document.OpNew, document.OpIntersect); err != nil {
		return err
	}
	if err := checkEnum("extent", f.Extent, document.ExtentBlind, document.ExtentSymmetric, document.ExtentThroughAll, document.ExtentUpToFace); err != nil {
		return err
	}
	if err := checkEnum("mergeScope", f.MergeScope, document.ScopeAll, document.ScopeSelected, document.ScopeNone); err != nil {
		return err
	}
	if err := checkParam("distance", f.Distance); err != nil {
		return err
	}
	if (f.Extent == document.ExtentBlind || f.Extent == document.ExtentSymmetric) && !f.Distance.IsExpr() && f.Distance.Value == 0 {
		return invalid("distance", "must be non-zero")
	}
	if f.Extent == document.ExtentUpToFace && f.ExtentRef.IsEmpty() {
		return invalid("extentRef", "is required for extent %s", f.Extent)
	}
	if err := checkRefParam(snap, "extentRef", f.ExtentRef, geom.Face); err != nil {
		return err
	}
	if f.MergeScope == document.ScopeSelected && len(f.TargetBodies) == 0 {
		return invalid("targetBodies", "is required for mergeScope %s", f.MergeScope)
	}
	for _, id := range f.TargetBodies {
		if err := checkFeature(snap, "targetBodies", id, limit, solidKinds); err != nil {
			return err
		}
	}
	return nil
}

// CreateRevolve creates a revolve of a sketch's closed loops around an axis.
func (l *Layer) CreateRevolve(p RevolveParams) (document.FeatureID, error) {
	f := &document.Revolve{
		Common: document.Common{Name: p.Name},
		Sketch: p.Sketch,
		Axis:   p.Axis,
		Angle:  p.Angle,
		Op:     orDefault(p.Op, document.OpAdd),
	}
	return l.createFeature("createRevolve", f, func(snap *document.Snapshot, limit int) error {
		if err := checkFeature(snap, "sketch", f.Sketch, limit, sketchKinds); err != nil {
			return err
		}
		if f.Axis == "" {
			return invalid("axis", "is required")
		}
		if err := checkTarget(snap, "axis", f.Axis, limit, geom.Edge, axisKinds); err != nil {
			return err
		}
		if err := checkEnum("op", f.Op, document.OpAdd, document.OpCut, document.OpNew, document.OpIntersect); err != nil {
			return err
		}
		if err := checkParam("angle", f.Angle); err != nil {
			return err
		}
		if !f.Angle.IsExpr() && (f.Angle.Value == 0 || f.Angle.Value > 360 || f.Angle.Value < -360) {
			return invalid("angle", "must be in (0, 360] degrees")
		}
		return nil
	})
}

// CreateBoolean combines tool bodies into a target body.
func (l *Layer) CreateBoolean(p BooleanParams) (document.FeatureID, error) {
	f := &document.Boolean{
		Common: document.Common{Name: p.Name},
		Op:     p.Op,
		Target: p.Target,
		Tools:  slices.Clone(p.Tools),
	}
	return l.createFeature("createBoolean", f, func(snap *document.Snapshot, limit int) error {
		if err := checkEnum("op", f.Op, document.BoolUnion, document.BoolSubtract, document.BoolIntersect); err != nil {
			return err
		}
		if err := checkFeature(snap, "target", f.Target, limit, solidKinds); err != nil {
			return err
		}
		if len(f.Tools) == 0 {
			return invalid("tools", "at least one tool is required")
		}
		seen := map[document.FeatureID]bool{f.Target: true}
		for _, id := range f.Tools {
			if seen[id] {
				return invalid("tools", "feature %s is listed twice or is the target", id)
			}
			seen[id] = true
			if err := checkFeature(snap, "tools", id, limit, solidKinds); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateOffsetPlane creates a datum plane offset from a plane or face.
func (l *Layer) CreateOffsetPlane(p OffsetPlaneParams) (document.FeatureID, error) {
	f := &document.Plane{
		Common:     document.Common{Name: p.Name},
		BaseTarget: p.Base,
		Offset:     p.Offset,
	}
	return l.createFeature("createOffsetPlane", f, func(snap *document.Snapshot, limit int) error {
		if p.Base == "" {
			return invalid("base", "is required")
		}
		if err := checkTarget(snap, "base", p.Base, limit, geom.Face, planeKinds); err != nil {
			return err
		}
		return checkParam("offset", p.Offset)
	})
}

// CreateAxis creates a datum axis.
func (l *Layer) CreateAxis(p AxisParams) (document.FeatureID, error) {
	f := &document.Axis{
		Common:    document.Common{Name: p.Name},
		Ref:       p.Ref,
		Point:     p.Point,
		Direction: p.Direction,
	}
	return l.createFeature("createAxis", f, func(snap *document.Snapshot, limit int) error {
		if p.Ref != "" {
			return checkTarget(snap, "ref", p.Ref, limit, geom.Edge, axisKinds)
		}
		if p.Point == nil || p.Direction == nil {
			return invalid("ref", "an edge reference or a point and direction is required")
		}
		if err := checkVec("point", p.Point); err != nil {
			return err
		}
		if err := checkVec("direction", p.Direction); err != nil {
			return err
		}
		if *p.Direction == [3]float64{} {
			return invalid("direction", "must be non-zero")
		}
		return nil
	})
}
