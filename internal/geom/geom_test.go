package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3(t *testing.T) {
	a := Vec3{1, 0, 0}
	b := Vec3{0, 1, 0}
	assert.Equal(t, Vec3{0, 0, 1}, a.Cross(b))
	assert.Equal(t, 0.0, a.Dot(b))
	assert.Equal(t, 5.0, Vec3{3, 4, 0}.Norm())
	assert.Equal(t, Vec3{}, Vec3{}.Unit())
	assert.InDelta(t, 1.0, Vec3{2, 2, 1}.Unit().Norm(), 1e-12)
}

func TestFrameFromNormal_RightHanded(t *testing.T) {
	for _, n := range []Vec3{{0, 0, 1}, {1, 0, 0}, {0, -1, 0}, {1, 1, 1}} {
		f := FrameFromNormal(Vec3{1, 2, 3}, n)
		assert.InDelta(t, 0, f.U.Dot(f.N), 1e-12)
		assert.InDelta(t, 0, f.V.Dot(f.N), 1e-12)
		c := f.U.Cross(f.V)
		assert.InDelta(t, 0, c.Dist(f.N), 1e-12, "U x V must equal N for %v", n)
	}
}

func TestFrame_AtAndOffset(t *testing.T) {
	f := Frame{U: Vec3{1, 0, 0}, V: Vec3{0, 1, 0}, N: Vec3{0, 0, 1}}
	assert.Equal(t, Vec3{2, 3, 0}, f.At(2, 3))
	assert.Equal(t, Vec3{2, 3, 5}, f.Offset(5).At(2, 3))
}

func TestSelector_Equal(t *testing.T) {
	a := Selector{Kind: "extrude.cap", Data: map[string]string{"end": "end", "loopId": "x"}}
	b := Selector{Kind: "extrude.cap", Data: map[string]string{"loopId": "x", "end": "end"}}
	c := Selector{Kind: "extrude.cap", Data: map[string]string{"loopId": "x", "end": "start"}}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Selector{Kind: "extrude.cap"}))
}

func TestElementsOf(t *testing.T) {
	g := &FeatureGeometry{Elements: []Element{{Type: Face}, {Type: Edge}, {Type: Face}}}
	assert.Len(t, g.ElementsOf(Face), 2)
	assert.Len(t, g.ElementsOf(Vertex), 0)
	assert.True(t, Face.Valid())
	assert.False(t, ElementType("solid").Valid())
	assert.False(t, math.IsNaN(Vec3{1, 1, 1}.Norm()))
}
