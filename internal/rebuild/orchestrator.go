package rebuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/naming"
)

// Orchestrator evaluates a document snapshot feature by feature.
//
// A pass is a pure function of (snapshot, kernel version): the snapshot is
// never written, so replicas rebuilding the same snapshot get the same
// Result.
//
// Thread-safety model: an Orchestrator holds no per-pass state and may be
// shared, provided the Kernel is safe for concurrent use.
type Orchestrator struct {
	kernel Kernel
	tol    naming.Tolerance
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTolerance sets the fingerprint tolerance used to resolve references.
func WithTolerance(tol naming.Tolerance) Option {
	return func(o *Orchestrator) {
		o.tol = tol
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator over kernel.
func NewOrchestrator(kernel Kernel, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		kernel: kernel,
		tol:    naming.DefaultTolerance(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Kernel returns the kernel the orchestrator evaluates with.
func (o *Orchestrator) Kernel() Kernel {
	return o.kernel
}

// Rebuild runs one pass over snap.Order:
//  1. suppressed features are marked suppressed and contribute nothing
//  2. in gated mode, the first feature after the gate stops evaluation and
//     every remaining feature is marked gated
//  3. inputs are resolved; an unresolved input is INVALID_REFERENCE
//  4. the kernel evaluates the feature; failures map to a BuildError code
//
// A failing feature never stops the pass, and Rebuild never panics.
func (o *Orchestrator) Rebuild(ctx context.Context, snap *document.Snapshot, mode Mode) *Result {
	res := newResult(o.kernel.Version(), mode)
	res.Order = slices.Clone(snap.Order)

	gateIdx := -1
	if mode == ModeGated && snap.Gate != "" {
		gateIdx = snap.Index(snap.Gate)
	}

	p := &pass{
		ctx:   ctx,
		o:     o,
		snap:  snap,
		res:   res,
		scope: NewScope(snap.Variables),
	}

	stopped := false
	for i, id := range snap.Order {
		f, err := snap.Feature(id)
		if err == nil && f.Base().Suppressed {
			res.Status[id] = StatusSuppressed
			continue
		}
		if stopped || (gateIdx >= 0 && i > gateIdx) {
			stopped = true
			res.Status[id] = StatusGated
			continue
		}
		if err != nil {
			p.record(id, &BuildError{Code: CodeBuildError, Message: err.Error()})
			continue
		}
		res.hidden[id] = f.Base().Hidden
		p.evaluate(f)
	}

	res.Bodies = p.bodies
	o.logger.Debug("rebuild complete",
		"mode", string(mode),
		"features", len(snap.Order),
		"errors", len(res.Errors),
		"bodies", len(res.Bodies))
	return res
}

// pass is the per-rebuild state. It implements document.Visitor.
type pass struct {
	ctx    context.Context
	o      *Orchestrator
	snap   *document.Snapshot
	res    *Result
	scope  *Scope
	bodies []geom.Body
	cur    document.FeatureID
}

var _ document.Visitor = (*pass)(nil)

func (p *pass) evaluate(f document.Feature) {
	id := f.Base().ID
	p.cur = id
	defer func() {
		if r := recover(); r != nil {
			delete(p.res.geometry, id)
			p.record(id, &BuildError{Code: CodeBuildError, Message: fmt.Sprintf("kernel panic: %v", r)})
		}
	}()
	if err := f.Accept(p); err != nil {
		p.record(id, err)
		return
	}
	p.res.Status[id] = StatusComputed
	p.o.logger.Debug("feature computed", "feature", id, "kind", f.Kind())
}

// record marks id as failed.
func (p *pass) record(id document.FeatureID, err error) {
	var be *BuildError
	if !errors.As(err, &be) {
		be = &BuildError{Code: kernelCode(err), Message: err.Error()}
		var ke *KernelError
		if errors.As(err, &ke) {
			be.Message = ke.Message
		}
	}
	be.Feature = id
	p.res.Status[id] = StatusError
	p.res.Errors = append(p.res.Errors, *be)
	p.o.logger.Debug("feature failed", "feature", id, "code", be.Code, "error", be.Message)
}

func (p *pass) store(g *geom.FeatureGeometry) error {
	if g == nil {
		return NewKernelError(CodeBuildError, "kernel returned no geometry")
	}
	g.Feature = string(p.cur)
	p.res.geometry[p.cur] = g
	return nil
}

func invalidRef(param, format string, args ...any) *BuildError {
	return &BuildError{Code: CodeInvalidReference, Param: param, Message: fmt.Sprintf(format, args...)}
}

func (p *pass) number(param string, v document.Param) (float64, error) {
	f, err := p.scope.Eval(v)
	if err != nil {
		return 0, &BuildError{Code: CodeBuildError, Param: param, Message: err.Error()}
	}
	return f, nil
}

// geometryOf returns the computed geometry of an earlier feature.
func (p *pass) geometryOf(param string, id document.FeatureID) (*geom.FeatureGeometry, error) {
	if id == "" {
		return nil, invalidRef(param, "no input selected")
	}
	if !p.snap.Has(id) {
		return nil, invalidRef(param, "feature %s does not exist", id)
	}
	g, ok := p.res.geometry[id]
	if !ok {
		return nil, invalidRef(param, "feature %s has no computed geometry (%s)", id, p.statusOf(id))
	}
	return g, nil
}

func (p *pass) statusOf(id document.FeatureID) string {
	if s, ok := p.res.Status[id]; ok {
		return string(s)
	}
	return "not yet evaluated"
}

// resolve binds a reference parameter to an element of the expected type.
func (p *pass) resolve(param string, rp document.RefParam, want geom.ElementType) (geom.Element, error) {
	b, err := naming.ResolveParam(rp, p.res, p.o.tol)
	if err != nil {
		be := invalidRef(param, "%v", err)
		be.Ref = rp.Preferred
		var broken *naming.BrokenReferenceError
		if errors.As(err, &broken) {
			be.Candidates = broken.Candidates
		}
		return geom.Element{}, be
	}
	if b.Element.Type != want {
		be := invalidRef(param, "reference is a %s, want a %s", b.Element.Type, want)
		be.Ref = rp.Preferred
		return geom.Element{}, be
	}
	p.res.Bindings = append(p.res.Bindings, BindingRecord{
		Feature: p.cur,
		Param:   param,
		Ref:     rp.Preferred,
		Method:  b.Method,
		Handle:  b.Element.Handle,
	})
	return b.Element, nil
}

// frameOf resolves a plane input: a datum plane, a sketch, or a planar face.
func (p *pass) frameOf(param, target string) (geom.Frame, error) {
	if document.IsRefToken(target) {
		face, err := p.resolve(param, document.Ref(target), geom.Face)
		if err != nil {
			return geom.Frame{}, err
		}
		if face.Normal.IsZero() {
			return geom.Frame{}, invalidRef(param, "face %s is not planar", face.Handle)
		}
		return geom.FrameFromNormal(face.Centroid, face.Normal), nil
	}
	g, err := p.geometryOf(param, document.FeatureID(target))
	if err != nil {
		return geom.Frame{}, err
	}
	if g.Frame == nil {
		return geom.Frame{}, invalidRef(param, "feature %s is not planar", target)
	}
	return *g.Frame, nil
}

// lineOf resolves an axis input: a datum axis or a linear edge.
func (p *pass) lineOf(param, target string) (geom.Axis, error) {
	if document.IsRefToken(target) {
		edge, err := p.resolve(param, document.Ref(target), geom.Edge)
		if err != nil {
			return geom.Axis{}, err
		}
		if edge.Normal.IsZero() {
			return geom.Axis{}, invalidRef(param, "edge %s is not linear", edge.Handle)
		}
		return geom.Axis{Point: edge.Centroid, Direction: edge.Normal.Unit()}, nil
	}
	g, err := p.geometryOf(param, document.FeatureID(target))
	if err != nil {
		return geom.Axis{}, err
	}
	if g.Axis == nil {
		return geom.Axis{}, invalidRef(param, "feature %s is not an axis", target)
	}
	return *g.Axis, nil
}

// sketchOf returns the geometry of a computed sketch.
func (p *pass) sketchOf(param string, id document.FeatureID) (*geom.FeatureGeometry, error) {
	if k, ok := p.snap.Kind(id); ok && k != document.KindSketch {
		return nil, invalidRef(param, "feature %s is a %s, want a sketch", id, k)
	}
	return p.geometryOf(param, id)
}

// bodyOf returns the body a feature created or last contributed to.
func (p *pass) bodyOf(param string, id document.FeatureID) (geom.Body, error) {
	for i := len(p.bodies) - 1; i >= 0; i-- {
		b := p.bodies[i]
		if b.ID == string(id) || slices.Contains(b.Features, string(id)) {
			return b.Clone(), nil
		}
	}
	if !p.snap.Has(id) {
		return geom.Body{}, invalidRef(param, "feature %s does not exist", id)
	}
	return geom.Body{}, invalidRef(param, "feature %s has no body (%s)", id, p.statusOf(id))
}

// targets selects the bodies a solid feature combines with.
func (p *pass) targets(op, scope string, selected []document.FeatureID) ([]geom.Body, error) {
	if op == document.OpNew || scope == document.ScopeNone {
		return nil, nil
	}
	if scope == document.ScopeSelected {
		var out []geom.Body
		for _, id := range selected {
			b, err := p.bodyOf("targetBodies", id)
			if err != nil {
				return nil, err
			}
			if !slices.ContainsFunc(out, func(x geom.Body) bool { return x.ID == b.ID }) {
				out = append(out, b)
			}
		}
		return out, nil
	}
	out := make([]geom.Body, len(p.bodies))
	for i, b := range p.bodies {
		out[i] = b.Clone()
	}
	return out, nil
}

// apply merges a solid feature's output into the body set.
func (p *pass) apply(out SolidOutput) error {
	if err := p.store(out.Geometry); err != nil {
		return err
	}
	p.bodies = slices.DeleteFunc(p.bodies, func(b geom.Body) bool {
		return slices.Contains(out.Consumed, b.ID)
	})
	for _, b := range out.Bodies {
		if i := slices.IndexFunc(p.bodies, func(x geom.Body) bool { return x.ID == b.ID }); i >= 0 {
			p.bodies[i] = b
		} else {
			p.bodies = append(p.bodies, b)
		}
	}
	return nil
}

func (p *pass) VisitOrigin(f *document.Origin) error {
	g, err := p.o.kernel.Origin(p.ctx, OriginInput{Feature: f.ID})
	if err != nil {
		return err
	}
	return p.store(g)
}

func (p *pass) VisitPlane(f *document.Plane) error {
	in := PlaneInput{Feature: f.ID, Role: f.Role}
	if f.Role == "" {
		base, err := p.frameOf("base", f.BaseTarget)
		if err != nil {
			return err
		}
		offset, err := p.number("offset", f.Offset)
		if err != nil {
			return err
		}
		in.Base, in.Offset = &base, offset
	}
	g, err := p.o.kernel.Plane(p.ctx, in)
	if err != nil {
		return err
	}
	return p.store(g)
}

func (p *pass) VisitAxis(f *document.Axis) error {
	var line geom.Axis
	switch {
	case f.Ref != "":
		l, err := p.lineOf("ref", f.Ref)
		if err != nil {
			return err
		}
		line = l
	case f.Point != nil && f.Direction != nil:
		line = geom.Axis{Point: geom.Vec3(*f.Point), Direction: geom.Vec3(*f.Direction)}
	default:
		return &BuildError{Code: CodeBuildError, Message: "axis needs a ref or a point and direction"}
	}
	g, err := p.o.kernel.Axis(p.ctx, AxisInput{Feature: f.ID, Line: line})
	if err != nil {
		return err
	}
	return p.store(g)
}

func (p *pass) VisitSketch(f *document.Sketch) error {
	frame, err := p.frameOf("plane", f.Plane)
	if err != nil {
		return err
	}
	g, solve, err := p.o.kernel.Sketch(p.ctx, SketchInput{Feature: f.ID, Frame: frame, Data: f.Data})
	p.res.SketchSolves[f.ID] = solve
	if err != nil {
		return err
	}
	return p.store(g)
}

func (p *pass) VisitExtrude(f *document.Extrude) error {
	sk, err := p.sketchOf("sketch", f.Sketch)
	if err != nil {
		return err
	}
	in := ExtrudeInput{Feature: f.ID, Sketch: sk, Op: f.Op, Extent: f.Extent}
	// references resolve before any expression is evaluated
	if f.Extent == document.ExtentUpToFace {
		face, err := p.resolve("extentRef", f.ExtentRef, geom.Face)
		if err != nil {
			return err
		}
		in.UpTo = &face
	}
	if in.Targets, err = p.targets(f.Op, f.MergeScope, f.TargetBodies); err != nil {
		return err
	}
	if f.Extent != document.ExtentThroughAll && f.Extent != document.ExtentUpToFace {
		if in.Distance, err = p.number("distance", f.Distance); err != nil {
			return err
		}
	}
	out, err := p.o.kernel.Extrude(p.ctx, in)
	if err != nil {
		return err
	}
	return p.apply(out)
}

func (p *pass) VisitRevolve(f *document.Revolve) error {
	sk, err := p.sketchOf("sketch", f.Sketch)
	if err != nil {
		return err
	}
	axis, err := p.lineOf("axis", f.Axis)
	if err != nil {
		return err
	}
	targets, err := p.targets(f.Op, document.ScopeAll, nil)
	if err != nil {
		return err
	}
	angle, err := p.number("angle", f.Angle)
	if err != nil {
		return err
	}
	out, err := p.o.kernel.Revolve(p.ctx, RevolveInput{
		Feature: f.ID,
		Sketch:  sk,
		Axis:    axis,
		Angle:   angle,
		Op:      f.Op,
		Targets: targets,
	})
	if err != nil {
		return err
	}
	return p.apply(out)
}

func (p *pass) VisitBoolean(f *document.Boolean) error {
	target, err := p.bodyOf("target", f.Target)
	if err != nil {
		return err
	}
	in := BooleanInput{Feature: f.ID, Op: f.Op, Target: target}
	for _, id := range f.Tools {
		tool, err := p.bodyOf("tools", id)
		if err != nil {
			return err
		}
		if tool.ID == target.ID {
			return &BuildError{Code: CodeBuildError, Param: "tools", Message: fmt.Sprintf("tool %s is the target body", id)}
		}
		in.Tools = append(in.Tools, tool)
	}
	out, err := p.o.kernel.Boolean(p.ctx, in)
	if err != nil {
		return err
	}
	return p.apply(out)
}
