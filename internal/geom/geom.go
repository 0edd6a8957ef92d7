// Package geom holds the geometry handles exchanged between the rebuild
// orchestrator, the kernel and the naming resolver.
package geom

import (
	"math"
	"slices"
)

// Vec3 is a point or direction in model space.
type Vec3 [3]float64

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3) Scale(k float64) Vec3 { return Vec3{a[0] * k, a[1] * k, a[2] * k} }
func (a Vec3) Dot(b Vec3) float64   { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a Vec3) Norm() float64        { return math.Sqrt(a.Dot(a)) }
func (a Vec3) Dist(b Vec3) float64  { return a.Sub(b).Norm() }

// Cross returns a × b.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Unit returns a scaled to length 1, or the zero vector.
func (a Vec3) Unit() Vec3 {
	n := a.Norm()
	if n == 0 {
		return Vec3{}
	}
	return a.Scale(1 / n)
}

// IsZero reports whether every component is zero.
func (a Vec3) IsZero() bool {
	return a == Vec3{}
}

// Frame is a right-handed planar coordinate system: U × V = N.
type Frame struct {
	Origin Vec3
	U, V   Vec3
	N      Vec3
}

// FrameFromNormal builds a frame on the plane through origin with normal n.
// U is chosen against the world axis least aligned with n.
func FrameFromNormal(origin, n Vec3) Frame {
	n = n.Unit()
	ref := Vec3{1, 0, 0}
	if math.Abs(n[0]) > 0.9 {
		ref = Vec3{0, 1, 0}
	}
	u := ref.Sub(n.Scale(ref.Dot(n))).Unit()
	v := n.Cross(u)
	return Frame{Origin: origin, U: u, V: v, N: n}
}

// At maps plane coordinates to model space.
func (f Frame) At(x, y float64) Vec3 {
	return f.Origin.Add(f.U.Scale(x)).Add(f.V.Scale(y))
}

// Offset returns the frame translated along its normal.
func (f Frame) Offset(d float64) Frame {
	f.Origin = f.Origin.Add(f.N.Scale(d))
	return f
}

// ElementType is the topological type of an element.
type ElementType string

const (
	Face   ElementType = "face"
	Edge   ElementType = "edge"
	Vertex ElementType = "vertex"
)

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	return t == Face || t == Edge || t == Vertex
}

// Selector names an element by how its feature produced it, e.g.
// {kind: "extrude.cap", data: {end: "end", loopId: "..."}}.
type Selector struct {
	Kind string
	Data map[string]string
}

// Equal reports whether two selectors name the same element.
func (s Selector) Equal(o Selector) bool {
	if s.Kind != o.Kind || len(s.Data) != len(o.Data) {
		return false
	}
	for k, v := range s.Data {
		if ov, ok := o.Data[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Element is a face, edge or vertex produced by a feature.
//
// Handle is the kernel's id for the element in one rebuild; it is not
// stable across rebuilds. Centroid, Normal and Size form the fingerprint:
// faces use area and surface normal, edges use length and direction,
// vertices use position with zero normal and size.
type Element struct {
	Type     ElementType
	Handle   string
	Selector Selector
	Centroid Vec3
	Normal   Vec3
	Size     float64
}

// Profile is a closed sketch loop placed in model space.
type Profile struct {
	LoopID   string
	Entities []string
	// Runs[i] is the number of polygon edges contributed by Entities[i].
	Runs     []int
	Polygon  []Vec3
	Area     float64
	Centroid Vec3
	Normal   Vec3
}

// Axis is an infinite line.
type Axis struct {
	Point     Vec3
	Direction Vec3
}

// Body is a solid. ID is the feature that created it; Features lists every
// feature that contributed to it.
type Body struct {
	ID       string
	Features []string
	Volume   float64
	Faces    []Element
}

// Clone returns a deep copy of b.
func (b Body) Clone() Body {
	b.Features = slices.Clone(b.Features)
	b.Faces = slices.Clone(b.Faces)
	return b
}

// FeatureGeometry is everything a computed feature produced.
type FeatureGeometry struct {
	Feature  string
	Elements []Element
	Frame    *Frame // planes and sketches
	Axis     *Axis  // axes and linear edges used as axes
	Profiles []Profile
	Bodies   []string // ids of bodies this feature created or modified
}

// ElementsOf returns the elements of type t.
func (g *FeatureGeometry) ElementsOf(t ElementType) []Element {
	var out []Element
	for _, e := range g.Elements {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
