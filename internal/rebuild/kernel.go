package rebuild

import (
	"context"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
)

// Kernel evaluates one feature at a time from fully resolved inputs.
//
// Kernels are stateless from the orchestrator's point of view: every input a
// call needs (frames, profiles, target bodies) is passed in, and nothing is
// assumed to survive between calls. Failures should be *KernelError so the
// orchestrator can report a precise code.
type Kernel interface {
	// Version identifies the kernel build. A rebuild is a pure function of
	// (snapshot, Version()).
	Version() string

	Origin(ctx context.Context, in OriginInput) (*geom.FeatureGeometry, error)
	Plane(ctx context.Context, in PlaneInput) (*geom.FeatureGeometry, error)
	Axis(ctx context.Context, in AxisInput) (*geom.FeatureGeometry, error)
	Sketch(ctx context.Context, in SketchInput) (*geom.FeatureGeometry, SketchSolve, error)
	Extrude(ctx context.Context, in ExtrudeInput) (SolidOutput, error)
	Revolve(ctx context.Context, in RevolveInput) (SolidOutput, error)
	Boolean(ctx context.Context, in BooleanInput) (SolidOutput, error)
}

// OriginInput evaluates the coordinate origin.
type OriginInput struct {
	Feature document.FeatureID
}

// PlaneInput evaluates a datum plane. Role planes have no Base; offset planes
// carry the frame of the plane or face they were offset from.
type PlaneInput struct {
	Feature document.FeatureID
	Role    string
	Base    *geom.Frame
	Offset  float64
}

// AxisInput evaluates a datum axis from a resolved line.
type AxisInput struct {
	Feature document.FeatureID
	Line    geom.Axis
}

// SketchInput places sketch data on a resolved frame.
type SketchInput struct {
	Feature document.FeatureID
	Frame   geom.Frame
	Data    document.SketchData
}

// ExtrudeInput sweeps the profiles of a computed sketch.
//
// Distance is already evaluated. For throughAll, Distance is ignored and the
// kernel sizes the sweep from Targets; for upToFace, UpTo is the bound face.
// Targets are the bodies an add, cut or intersect combines with.
type ExtrudeInput struct {
	Feature  document.FeatureID
	Sketch   *geom.FeatureGeometry
	Distance float64
	Op       string
	Extent   string
	UpTo     *geom.Element
	Targets  []geom.Body
}

// RevolveInput sweeps the profiles of a computed sketch around Axis.
type RevolveInput struct {
	Feature document.FeatureID
	Sketch  *geom.FeatureGeometry
	Axis    geom.Axis
	Angle   float64 // degrees
	Op      string
	Targets []geom.Body
}

// BooleanInput combines tool bodies into a target body.
type BooleanInput struct {
	Feature document.FeatureID
	Op      string
	Target  geom.Body
	Tools   []geom.Body
}

// SolidOutput is the effect of a solid feature on the body set: Bodies are
// created or replaced (matched by ID), Consumed bodies are removed.
type SolidOutput struct {
	Geometry *geom.FeatureGeometry
	Bodies   []geom.Body
	Consumed []string
}

// Sketch solve statuses.
const (
	SolveOK        = "ok"
	SolveOpen      = "open"
	SolveBranching = "branching"
)

// SketchSolve summarizes the profile analysis of one sketch.
type SketchSolve struct {
	Status string
	Loops  []string // loop ids
	Open   []string // entities outside any closed loop
}
