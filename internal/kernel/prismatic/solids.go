package prismatic

import (
	"context"
	"maps"
	"math"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/rebuild"
)

func sortedPointIDs(s document.SketchData) []string {
	ids := slices.Collect(maps.Keys(s.Points))
	slices.SortFunc(ids, document.CompareElementIDs)
	return ids
}

// span returns the interval a body covers along direction n from origin.
func span(bodies []geom.Body, origin, n geom.Vec3) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, b := range bodies {
		for _, f := range b.Faces {
			t := f.Centroid.Sub(origin).Dot(n)
			lo, hi = math.Min(lo, t), math.Max(hi, t)
			ok = true
		}
	}
	return lo, hi, ok
}

// extent returns the sweep interval [a, b] along the sketch normal.
func extent(in rebuild.ExtrudeInput) (a, b float64, err error) {
	frame := in.Sketch.Frame
	switch in.Extent {
	case document.ExtentSymmetric:
		d := math.Abs(in.Distance)
		a, b = -d/2, d/2
	case document.ExtentThroughAll:
		lo, hi, ok := span(in.Targets, frame.Origin, frame.N)
		if !ok {
			return 0, 0, rebuild.NewKernelError(rebuild.CodeBuildError, "throughAll needs a target body")
		}
		a, b = math.Min(lo, 0), math.Max(hi, 0)
	case document.ExtentUpToFace:
		if in.UpTo == nil {
			return 0, 0, rebuild.NewKernelError(rebuild.CodeInvalidReference, "upToFace has no face")
		}
		if n := in.UpTo.Normal; !n.IsZero() && math.Abs(n.Unit().Dot(frame.N)) < eps {
			return 0, 0, rebuild.NewKernelError(rebuild.CodeBuildError, "face is parallel to the extrude direction")
		}
		d := in.UpTo.Centroid.Sub(frame.Origin).Dot(frame.N)
		a, b = math.Min(0, d), math.Max(0, d)
	default:
		a, b = math.Min(0, in.Distance), math.Max(0, in.Distance)
	}
	if b-a < eps {
		return 0, 0, rebuild.NewKernelError(rebuild.CodeBuildError, "extrude distance must be non-zero")
	}
	return a, b, nil
}

func (k *Kernel) Extrude(_ context.Context, in rebuild.ExtrudeInput) (rebuild.SolidOutput, error) {
	if in.Sketch == nil || in.Sketch.Frame == nil {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeInvalidReference, "extrude has no sketch")
	}
	if len(in.Sketch.Profiles) == 0 {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeNoClosedProfile, "sketch %s has no closed profile", in.Sketch.Feature)
	}
	a, b, err := extent(in)
	if err != nil {
		return rebuild.SolidOutput{}, err
	}
	n := in.Sketch.Frame.N
	h := b - a
	el := &elements{feature: in.Feature}
	var volume float64

	for _, p := range in.Sketch.Profiles {
		volume += p.Area * h
		loop := map[string]string{"loopId": p.LoopID}
		el.add(geom.Face, "extrude.cap", withKey(loop, "end", "start"), p.Centroid.Add(n.Scale(a)), n.Scale(-1), p.Area)
		el.add(geom.Face, "extrude.cap", withKey(loop, "end", "end"), p.Centroid.Add(n.Scale(b)), n, p.Area)

		for _, side := range sides(p) {
			mid := side.mid.Add(n.Scale((a + b) / 2))
			var normal geom.Vec3
			if side.linear {
				normal = side.dir.Cross(n).Unit()
				if normal.Dot(side.mid.Sub(p.Centroid)) < 0 {
					normal = normal.Scale(-1)
				}
			}
			sel := withKey(loop, "entity", side.entity)
			el.add(geom.Face, "extrude.side", sel, mid, normal, side.length*h)
			if side.linear {
				el.add(geom.Edge, "extrude.edge", withKey(sel, "end", "start"), side.mid.Add(n.Scale(a)), side.dir, side.length)
				el.add(geom.Edge, "extrude.edge", withKey(sel, "end", "end"), side.mid.Add(n.Scale(b)), side.dir, side.length)
			}
		}
	}

	tool := geom.Body{
		ID:       string(in.Feature),
		Features: []string{string(in.Feature)},
		Volume:   volume,
		Faces:    facesOf(el.list),
	}
	return combine(in.Feature, in.Op, tool, in.Targets, el.list)
}

func (k *Kernel) Revolve(_ context.Context, in rebuild.RevolveInput) (rebuild.SolidOutput, error) {
	if in.Sketch == nil || in.Sketch.Frame == nil {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeInvalidReference, "revolve has no sketch")
	}
	if len(in.Sketch.Profiles) == 0 {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeNoClosedProfile, "sketch %s has no closed profile", in.Sketch.Feature)
	}
	if in.Axis.Direction.Norm() < eps {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "revolve axis direction is zero")
	}
	if in.Angle == 0 || math.Abs(in.Angle) > 360 {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "revolve angle must be in (0, 360] degrees")
	}
	axis := geom.Axis{Point: in.Axis.Point, Direction: in.Axis.Direction.Unit()}
	theta := in.Angle * math.Pi / 180
	full := math.Abs(in.Angle) == 360
	el := &elements{feature: in.Feature}
	var volume float64

	for _, p := range in.Sketch.Profiles {
		side := 0
		for _, v := range p.Polygon {
			d := distanceToAxis(v, axis)
			if d < eps {
				continue
			}
			s := 1
			if axis.Direction.Cross(v.Sub(axis.Point)).Dot(p.Normal) < 0 {
				s = -1
			}
			if side != 0 && s != side {
				return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeSelfIntersecting, "profile %s crosses the revolve axis", p.LoopID)
			}
			side = s
		}
		r := distanceToAxis(p.Centroid, axis)
		volume += p.Area * r * math.Abs(theta)

		loop := map[string]string{"loopId": p.LoopID}
		if !full {
			el.add(geom.Face, "revolve.cap", withKey(loop, "end", "start"), p.Centroid, p.Normal.Scale(-1), p.Area)
			endNormal := rotate(p.Normal, geom.Vec3{}, axis.Direction, theta)
			el.add(geom.Face, "revolve.cap", withKey(loop, "end", "end"), rotate(p.Centroid, axis.Point, axis.Direction, theta), endNormal, p.Area)
		}
		for _, s := range sides(p) {
			rm := distanceToAxis(s.mid, axis)
			mid := rotate(s.mid, axis.Point, axis.Direction, theta/2)
			el.add(geom.Face, "revolve.side", withKey(loop, "entity", s.entity), mid, geom.Vec3{}, s.length*rm*math.Abs(theta))
		}
	}

	tool := geom.Body{
		ID:       string(in.Feature),
		Features: []string{string(in.Feature)},
		Volume:   volume,
		Faces:    facesOf(el.list),
	}
	return combine(in.Feature, in.Op, tool, in.Targets, el.list)
}

func (k *Kernel) Boolean(_ context.Context, in rebuild.BooleanInput) (rebuild.SolidOutput, error) {
	if len(in.Tools) == 0 {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "boolean needs at least one tool body")
	}
	target := in.Target.Clone()
	var consumed []string
	for _, tool := range in.Tools {
		switch in.Op {
		case document.BoolUnion:
			target.Volume += tool.Volume
			target.Faces = append(target.Faces, tool.Faces...)
		case document.BoolSubtract:
			target.Volume = math.Max(0, target.Volume-tool.Volume)
		case document.BoolIntersect:
			target.Volume = math.Min(target.Volume, tool.Volume)
		default:
			return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "unknown boolean op %q", in.Op)
		}
		target.Features = appendUnique(target.Features, tool.Features...)
		consumed = append(consumed, tool.ID)
	}
	target.Features = appendUnique(target.Features, string(in.Feature))
	if target.Volume < eps {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "boolean %s leaves an empty body", in.Op)
	}
	return rebuild.SolidOutput{
		Geometry: &geom.FeatureGeometry{Bodies: []string{target.ID}},
		Bodies:   []geom.Body{target},
		Consumed: consumed,
	}, nil
}

// combine applies a swept tool body to the targets according to op.
func combine(feature document.FeatureID, op string, tool geom.Body, targets []geom.Body, elems []geom.Element) (rebuild.SolidOutput, error) {
	g := &geom.FeatureGeometry{Elements: elems}
	out := rebuild.SolidOutput{Geometry: g}

	if op == document.OpNew || (op == document.OpAdd && len(targets) == 0) {
		g.Bodies = []string{tool.ID}
		out.Bodies = []geom.Body{tool}
		return out, nil
	}
	if len(targets) == 0 {
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "%s has no target body", op)
	}

	switch op {
	case document.OpAdd:
		merged := targets[0].Clone()
		merged.Volume += tool.Volume
		merged.Faces = append(merged.Faces, tool.Faces...)
		for _, t := range targets[1:] {
			merged.Volume += t.Volume
			merged.Faces = append(merged.Faces, t.Faces...)
			merged.Features = appendUnique(merged.Features, t.Features...)
			out.Consumed = append(out.Consumed, t.ID)
		}
		merged.Features = appendUnique(merged.Features, string(feature))
		out.Bodies = []geom.Body{merged}
		g.Bodies = []string{merged.ID}
	case document.OpCut, document.OpIntersect:
		for _, t := range targets {
			t = t.Clone()
			if op == document.OpCut {
				t.Volume = math.Max(0, t.Volume-tool.Volume)
				t.Faces = append(t.Faces, tool.Faces...)
			} else {
				t.Volume = math.Min(t.Volume, tool.Volume)
			}
			t.Features = appendUnique(t.Features, string(feature))
			if t.Volume < eps {
				out.Consumed = append(out.Consumed, t.ID)
				continue
			}
			out.Bodies = append(out.Bodies, t)
			g.Bodies = append(g.Bodies, t.ID)
		}
	default:
		return rebuild.SolidOutput{}, rebuild.NewKernelError(rebuild.CodeBuildError, "unknown op %q", op)
	}
	return out, nil
}

type side struct {
	entity string
	linear bool
	mid    geom.Vec3
	dir    geom.Vec3
	length float64
}

// sides splits a profile polygon back into its entities using the
// per-entity edge counts recorded in Runs. A line contributes one edge.
func sides(p geom.Profile) []side {
	n := len(p.Polygon)
	out := make([]side, 0, len(p.Entities))
	start := 0
	for i, id := range p.Entities {
		cnt := 1
		if i < len(p.Runs) {
			cnt = p.Runs[i]
		}
		var length float64
		var acc geom.Vec3
		for j := start; j < start+cnt; j++ {
			a, b := p.Polygon[j%n], p.Polygon[(j+1)%n]
			length += b.Sub(a).Norm()
			acc = acc.Add(a.Add(b).Scale(0.5))
		}
		s := side{entity: id, length: length, mid: acc.Scale(1 / float64(cnt))}
		if cnt == 1 {
			a, b := p.Polygon[start%n], p.Polygon[(start+1)%n]
			s.linear = true
			s.dir = b.Sub(a).Unit()
		}
		out = append(out, s)
		start += cnt
	}
	return out
}

func facesOf(elems []geom.Element) []geom.Element {
	var out []geom.Element
	for _, e := range elems {
		if e.Type == geom.Face {
			out = append(out, e)
		}
	}
	return out
}

func withKey(m map[string]string, k, v string) map[string]string {
	out := maps.Clone(m)
	out[k] = v
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}

func distanceToAxis(p geom.Vec3, a geom.Axis) float64 {
	v := p.Sub(a.Point)
	return v.Sub(a.Direction.Scale(v.Dot(a.Direction))).Norm()
}

// rotate turns p about the axis through origin with unit direction k by
// theta radians (Rodrigues).
func rotate(p, origin, k geom.Vec3, theta float64) geom.Vec3 {
	v := p.Sub(origin)
	c, s := math.Cos(theta), math.Sin(theta)
	r := v.Scale(c).Add(k.Cross(v).Scale(s)).Add(k.Scale(k.Dot(v) * (1 - c)))
	return r.Add(origin)
}
