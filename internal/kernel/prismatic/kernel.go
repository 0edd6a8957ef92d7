package prismatic

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/naming"
	"github.com/roach88/parcad/internal/rebuild"
)

// Version identifies this kernel in rebuild results.
const Version = "prismatic/1"

// Kernel is an analytic kernel for planar sketches swept into prisms and
// solids of revolution. It computes exact faces, areas and volumes; booleans
// are tracked as volume bookkeeping.
//
// Kernel is stateless and safe for concurrent use.
type Kernel struct{}

// New returns a kernel.
func New() *Kernel {
	return &Kernel{}
}

var _ rebuild.Kernel = (*Kernel)(nil)

func (k *Kernel) Version() string { return Version }

// RoleFrame returns the frame of a pinned datum plane. Every frame is
// right-handed: U × V = N.
func RoleFrame(role string) (geom.Frame, bool) {
	switch role {
	case document.RoleXY:
		return geom.Frame{U: geom.Vec3{1, 0, 0}, V: geom.Vec3{0, 1, 0}, N: geom.Vec3{0, 0, 1}}, true
	case document.RoleXZ:
		return geom.Frame{U: geom.Vec3{1, 0, 0}, V: geom.Vec3{0, 0, 1}, N: geom.Vec3{0, -1, 0}}, true
	case document.RoleYZ:
		return geom.Frame{U: geom.Vec3{0, 1, 0}, V: geom.Vec3{0, 0, 1}, N: geom.Vec3{1, 0, 0}}, true
	}
	return geom.Frame{}, false
}

// elements accumulates a feature's elements with per-pass handles.
type elements struct {
	feature document.FeatureID
	list    []geom.Element
}

func (b *elements) add(t geom.ElementType, kind string, data map[string]string, c, n geom.Vec3, size float64) geom.Element {
	e := geom.Element{
		Type:     t,
		Handle:   fmt.Sprintf("%s#%s%d", b.feature, t[:1], len(b.list)+1),
		Selector: geom.Selector{Kind: kind, Data: data},
		Centroid: c,
		Normal:   n,
		Size:     size,
	}
	b.list = append(b.list, e)
	return e
}

func (k *Kernel) Origin(_ context.Context, in rebuild.OriginInput) (*geom.FeatureGeometry, error) {
	el := &elements{feature: in.Feature}
	el.add(geom.Vertex, "origin.point", nil, geom.Vec3{}, geom.Vec3{}, 0)
	frame, _ := RoleFrame(document.RoleXY)
	return &geom.FeatureGeometry{Elements: el.list, Frame: &frame}, nil
}

func (k *Kernel) Plane(_ context.Context, in rebuild.PlaneInput) (*geom.FeatureGeometry, error) {
	var frame geom.Frame
	if in.Role != "" {
		f, ok := RoleFrame(in.Role)
		if !ok {
			return nil, rebuild.NewKernelError(rebuild.CodeBuildError, "unknown plane role %q", in.Role)
		}
		frame = f
	} else {
		if in.Base == nil {
			return nil, rebuild.NewKernelError(rebuild.CodeInvalidReference, "offset plane has no base")
		}
		frame = in.Base.Offset(in.Offset)
	}
	el := &elements{feature: in.Feature}
	el.add(geom.Face, "plane.face", nil, frame.Origin, frame.N, 0)
	return &geom.FeatureGeometry{Elements: el.list, Frame: &frame}, nil
}

func (k *Kernel) Axis(_ context.Context, in rebuild.AxisInput) (*geom.FeatureGeometry, error) {
	if in.Line.Direction.Norm() < eps {
		return nil, rebuild.NewKernelError(rebuild.CodeBuildError, "axis direction is zero")
	}
	axis := geom.Axis{Point: in.Line.Point, Direction: in.Line.Direction.Unit()}
	el := &elements{feature: in.Feature}
	el.add(geom.Edge, "axis.line", nil, axis.Point, axis.Direction, 0)
	return &geom.FeatureGeometry{Elements: el.list, Axis: &axis}, nil
}

func (k *Kernel) Sketch(_ context.Context, in rebuild.SketchInput) (*geom.FeatureGeometry, rebuild.SketchSolve, error) {
	data := in.Data
	frame := in.Frame
	to3 := func(p vec2) geom.Vec3 { return frame.At(p.x, p.y) }

	var solve rebuild.SketchSolve
	for _, id := range data.EntityIDs() {
		for _, pid := range data.Entities[id].Points() {
			if _, ok := data.Points[pid]; !ok {
				return nil, solve, rebuild.NewKernelError(rebuild.CodeBuildError, "entity %s references missing point %s", id, pid)
			}
		}
	}

	loops := naming.FindLoops(data)
	solve.Open = loops.Open
	switch {
	case loops.Branching:
		solve.Status = rebuild.SolveBranching
	case len(loops.Open) > 0:
		solve.Status = rebuild.SolveOpen
	default:
		solve.Status = rebuild.SolveOK
	}

	el := &elements{feature: in.Feature}
	g := &geom.FeatureGeometry{Frame: &frame}

	for _, loop := range loops.Loops {
		solve.Loops = append(solve.Loops, loop.ID)
		segs, err := walkLoop(data, loop.Entities)
		if err != nil {
			return nil, solve, rebuild.NewKernelError(rebuild.CodeBuildError, "loop %s: %v", loop.ID, err)
		}
		poly := polygonOf(segs)
		area := signedArea(poly)
		if math.Abs(area) < eps {
			return nil, solve, rebuild.NewKernelError(rebuild.CodeSelfIntersecting, "loop %s encloses no area", loop.ID)
		}
		if selfIntersects(poly) {
			return nil, solve, rebuild.NewKernelError(rebuild.CodeSelfIntersecting, "loop %s crosses itself", loop.ID)
		}
		runs := make([]int, len(segs))
		for i, sg := range segs {
			runs[i] = len(sg.pts)
		}
		c := centroid(poly, area)
		polygon := make([]geom.Vec3, len(poly))
		for i, p := range poly {
			polygon[i] = to3(p)
		}
		g.Profiles = append(g.Profiles, geom.Profile{
			LoopID:   loop.ID,
			Entities: loop.Entities,
			Runs:     runs,
			Polygon:  polygon,
			Area:     math.Abs(area),
			Centroid: to3(c),
			Normal:   frame.N,
		})
		el.add(geom.Face, "sketch.region", map[string]string{"loopId": loop.ID}, to3(c), frame.N, math.Abs(area))
	}

	for _, id := range data.EntityIDs() {
		e := data.Entities[id]
		seg, _, err := traverse(data, id, e.Start)
		if err != nil {
			return nil, solve, rebuild.NewKernelError(rebuild.CodeBuildError, "entity %s: %v", id, err)
		}
		var dir geom.Vec3
		if e.Kind != document.EntityArc {
			dir = to3(seg.exit).Sub(to3(seg.pts[0])).Unit()
		}
		el.add(geom.Edge, "sketch.entity", map[string]string{"entity": id}, to3(seg.mid), dir, seg.length)
	}
	for _, id := range sortedPointIDs(data) {
		p := data.Points[id]
		el.add(geom.Vertex, "sketch.point", map[string]string{"point": id}, frame.At(p.X, p.Y), geom.Vec3{}, 0)
	}

	g.Elements = el.list
	return g, solve, nil
}
