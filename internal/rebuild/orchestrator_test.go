package rebuild_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/ir"
	"github.com/roach88/parcad/internal/kernel/prismatic"
	"github.com/roach88/parcad/internal/naming"
	"github.com/roach88/parcad/internal/rebuild"
	"github.com/roach88/parcad/internal/testutil"
)

func newOrchestrator() *rebuild.Orchestrator {
	return rebuild.NewOrchestrator(prismatic.New(), rebuild.WithLogger(testutil.DiscardLogger()))
}

func rebuildFull(t *testing.T, l *command.Layer) *rebuild.Result {
	t.Helper()
	return newOrchestrator().Rebuild(context.Background(), l.Document().Snapshot(), rebuild.ModeFull)
}

func endCap(t *testing.T, res *rebuild.Result, id document.FeatureID) geom.Element {
	t.Helper()
	g, ok := res.FeatureGeometry(id)
	require.True(t, ok)
	for _, f := range g.ElementsOf(geom.Face) {
		if f.Selector.Kind == "extrude.cap" && f.Selector.Data["end"] == "end" {
			return f
		}
	}
	t.Fatalf("feature %s has no end cap", id)
	return geom.Element{}
}

func TestRebuild_Box(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)

	res := rebuildFull(t, l)
	assert.Empty(t, res.Errors)
	assert.Equal(t, prismatic.Version, res.KernelVersion)
	for _, id := range res.Order {
		assert.Equal(t, rebuild.StatusComputed, res.Status[id], "feature %s", id)
	}
	assert.Equal(t, map[rebuild.Status]int{rebuild.StatusComputed: 6}, res.Counts())

	require.Len(t, res.Bodies, 1)
	body, ok := res.Body(string(e1))
	require.True(t, ok)
	assert.InDelta(t, 500, body.Volume, 1e-9)

	solve := res.SketchSolves[s1]
	assert.Equal(t, rebuild.SolveOK, solve.Status)
	assert.Len(t, solve.Loops, 1)
	assert.True(t, res.Visible(e1))
}

func TestRebuild_Deterministic(t *testing.T) {
	l := testutil.NewLayer(t)
	testutil.Box(t, l, 10, 10, 5)
	snap := l.Document().Snapshot()

	a := newOrchestrator().Rebuild(context.Background(), snap, rebuild.ModeFull)
	b := newOrchestrator().Rebuild(context.Background(), snap, rebuild.ModeFull)
	assert.Equal(t, a.Summary(), b.Summary())
}

func TestRebuild_GatedMode(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)
	s2 := sketchOn(t, l, document.XZPlaneID)
	require.NoError(t, l.SuppressFeature(s2, true))
	require.NoError(t, l.SetRebuildGate(s1))

	snap := l.Document().Snapshot()
	res := newOrchestrator().Rebuild(context.Background(), snap, rebuild.ModeGated)
	assert.Equal(t, rebuild.StatusComputed, res.Status[s1])
	assert.Equal(t, rebuild.StatusGated, res.Status[e1])
	assert.Equal(t, rebuild.StatusSuppressed, res.Status[s2])
	assert.Empty(t, res.Bodies)
	assert.False(t, res.Visible(e1), "gated features are hidden, not carried over")
	_, ok := res.FeatureGeometry(e1)
	assert.False(t, ok)

	full := newOrchestrator().Rebuild(context.Background(), snap, rebuild.ModeFull)
	assert.Equal(t, rebuild.StatusComputed, full.Status[e1])
	assert.True(t, full.Visible(e1))
}

func TestRebuild_SuppressedAndDeletedInputs(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)

	require.NoError(t, l.SuppressFeature(s1, true))
	res := rebuildFull(t, l)
	assert.Equal(t, rebuild.StatusSuppressed, res.Status[s1])
	assert.Equal(t, rebuild.StatusError, res.Status[e1])
	be, ok := res.ErrorFor(e1)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeInvalidReference, be.Code)
	assert.Equal(t, "sketch", be.Param)

	require.NoError(t, l.SuppressFeature(s1, false))
	require.NoError(t, l.DeleteFeature(s1))
	res = rebuildFull(t, l)
	be, ok = res.ErrorFor(e1)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeInvalidReference, be.Code)
	assert.Contains(t, be.Message, "does not exist")
}

func TestRebuild_HiddenFeatureIsComputedButNotVisible(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)
	require.NoError(t, l.SetVisibility(e1, false))

	res := rebuildFull(t, l)
	assert.Equal(t, rebuild.StatusComputed, res.Status[e1])
	assert.False(t, res.Visible(e1))
	assert.Len(t, res.Bodies, 1)
}

func TestRebuild_NoClosedProfile(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOn(t, l, document.XYPlaneID)
	a, err := l.AddPoint(s1, 0, 0)
	require.NoError(t, err)
	b, err := l.AddPoint(s1, 1, 0)
	require.NoError(t, err)
	_, err = l.AddLine(s1, a, b)
	require.NoError(t, err)
	e1, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1, Distance: document.Num(1)})
	require.NoError(t, err)

	res := rebuildFull(t, l)
	assert.Equal(t, rebuild.StatusComputed, res.Status[s1])
	assert.Equal(t, rebuild.SolveOpen, res.SketchSolves[s1].Status)
	be, ok := res.ErrorFor(e1)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeNoClosedProfile, be.Code)
}

func TestRebuild_SketchOnFace(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)
	top := endCap(t, rebuildFull(t, l), e1)
	token := naming.MustEncode(naming.Capture(e1, top))

	s2, err := l.CreateSketch(command.SketchParams{Plane: token})
	require.NoError(t, err)
	testutil.Rectangle(t, l, s2, 2, 2)
	e2, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s2, Distance: document.Num(3)})
	require.NoError(t, err)

	res := rebuildFull(t, l)
	require.Empty(t, res.Errors)
	require.Len(t, res.Bindings, 1)
	assert.Equal(t, s2, res.Bindings[0].Feature)
	assert.Equal(t, naming.MethodSelector, res.Bindings[0].Method)

	require.Len(t, res.Bodies, 1, "e2 merges into the box")
	assert.InDelta(t, 512, res.Bodies[0].Volume, 1e-9)
	assert.Equal(t, []string{string(e1), string(e2)}, res.Bodies[0].Features)

	// the selector keeps tracking the cap when the box grows
	require.NoError(t, l.ModifyFeatureParam(e1, "distance", ir.Float(8)))
	res = rebuildFull(t, l)
	require.Empty(t, res.Errors)
	g, ok := res.FeatureGeometry(s2)
	require.True(t, ok)
	assert.InDelta(t, 8, g.Frame.Origin[2], 1e-9)
}

func TestRebuild_BrokenReference(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)
	top := endCap(t, rebuildFull(t, l), e1)

	s2, err := l.CreateSketch(command.SketchParams{Plane: string(document.XYPlaneID)})
	require.NoError(t, err)
	testutil.Rectangle(t, l, s2, 2, 2)
	e2, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s2, Distance: document.Num(3), Op: document.OpNew})
	require.NoError(t, err)

	stale := naming.Capture(e1, top)
	stale.Selector.Data = map[string]string{"loopId": "gone", "end": "end"}
	stale.Fingerprint.Centroid = geom.Vec3{50, 50, 50}
	require.NoError(t, l.RepairReference(s2, "plane", naming.MustEncode(stale)))

	res := rebuildFull(t, l)
	be, ok := res.ErrorFor(s2)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeInvalidReference, be.Code)
	assert.Equal(t, "plane", be.Param)
	assert.NotEmpty(t, be.Ref)
	assert.Len(t, be.Candidates, 3)
	for _, c := range be.Candidates {
		_, err := naming.Decode(c)
		assert.NoError(t, err)
	}

	dep, ok := res.ErrorFor(e2)
	require.True(t, ok, "downstream features fail their own resolution")
	assert.Equal(t, rebuild.CodeInvalidReference, dep.Code)
	assert.Equal(t, rebuild.StatusComputed, res.Status[e1], "other features still build")

	// near enough for the fingerprint fallback
	stale.Fingerprint.Centroid = top.Centroid.Add(geom.Vec3{0.1, 0, 0})
	require.NoError(t, l.RepairReference(s2, "plane", naming.MustEncode(stale)))
	res = rebuildFull(t, l)
	assert.Equal(t, rebuild.StatusComputed, res.Status[s2])
	require.Len(t, res.Bindings, 1)
	assert.Equal(t, naming.MethodFingerprint, res.Bindings[0].Method)
	assert.Equal(t, top.Handle, res.Bindings[0].Handle)
}

func TestRebuild_Expressions(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)

	require.NoError(t, l.SetVariable("depth", ir.Float(4)))
	require.NoError(t, l.SetVariable("twice", ir.String("=depth*2")))
	require.NoError(t, l.ModifyFeatureParam(e1, "distance", ir.String("=twice + 1")))
	res := rebuildFull(t, l)
	require.Empty(t, res.Errors)
	assert.InDelta(t, 900, res.Bodies[0].Volume, 1e-9)

	require.NoError(t, l.ModifyFeatureParam(e1, "distance", ir.String("=missing * 2")))
	res = rebuildFull(t, l)
	be, ok := res.ErrorFor(e1)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeBuildError, be.Code)
	assert.Equal(t, "distance", be.Param)

	require.NoError(t, l.SetVariable("a", ir.String("=b + 1")))
	require.NoError(t, l.SetVariable("b", ir.String("=a + 1")))
	require.NoError(t, l.ModifyFeatureParam(e1, "distance", ir.String("=a")))
	res = rebuildFull(t, l)
	be, ok = res.ErrorFor(e1)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeBuildError, be.Code)
	assert.Contains(t, be.Message, "variable cycle")
}

func TestRebuild_BrokenReferenceOutranksBadExpression(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)

	s2 := sketchOn(t, l, document.XYPlaneID)
	testutil.Rectangle(t, l, s2, 2, 2)
	e2, err := l.CreateExtrude(command.ExtrudeParams{
		Sketch:       s2,
		Distance:     document.Num(5),
		Op:           document.OpAdd,
		MergeScope:   document.ScopeSelected,
		TargetBodies: []document.FeatureID{e1},
	})
	require.NoError(t, err)
	require.NoError(t, l.ModifyFeatureParam(e2, "distance", ir.String("=missing * 2")))
	require.NoError(t, l.DeleteFeature(e1))

	res := rebuildFull(t, l)
	be, ok := res.ErrorFor(e2)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeInvalidReference, be.Code)
	assert.Equal(t, "targetBodies", be.Param)
}

func TestRebuild_BooleanAndOffsetPlane(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 10)

	p1, err := l.CreateOffsetPlane(command.OffsetPlaneParams{Base: string(document.XYPlaneID), Offset: document.Num(20)})
	require.NoError(t, err)
	s2 := sketchOn(t, l, p1)
	testutil.Rectangle(t, l, s2, 2, 2)
	e2, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s2, Distance: document.Num(5), Op: document.OpNew})
	require.NoError(t, err)
	b1, err := l.CreateBoolean(command.BooleanParams{Op: document.BoolSubtract, Target: e1, Tools: []document.FeatureID{e2}})
	require.NoError(t, err)

	res := rebuildFull(t, l)
	require.Empty(t, res.Errors)
	require.Len(t, res.Bodies, 1)
	assert.Equal(t, string(e1), res.Bodies[0].ID)
	assert.InDelta(t, 980, res.Bodies[0].Volume, 1e-9)
	assert.Contains(t, res.Bodies[0].Features, string(b1))

	g, ok := res.FeatureGeometry(s2)
	require.True(t, ok)
	assert.InDelta(t, 20, g.Frame.Origin[2], 1e-9)
}

type panicKernel struct {
	*prismatic.Kernel
}

func (panicKernel) Extrude(context.Context, rebuild.ExtrudeInput) (rebuild.SolidOutput, error) {
	panic("kernel exploded")
}

func TestRebuild_KernelPanicIsRecorded(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)

	o := rebuild.NewOrchestrator(panicKernel{prismatic.New()})
	res := o.Rebuild(context.Background(), l.Document().Snapshot(), rebuild.ModeFull)
	assert.Equal(t, rebuild.StatusComputed, res.Status[s1])
	be, ok := res.ErrorFor(e1)
	require.True(t, ok)
	assert.Equal(t, rebuild.CodeBuildError, be.Code)
	assert.Contains(t, be.Message, "kernel exploded")
	_, ok = res.FeatureGeometry(e1)
	assert.False(t, ok)
}

func sketchOn(t *testing.T, l *command.Layer, plane document.FeatureID) document.FeatureID {
	t.Helper()
	id, err := l.CreateSketch(command.SketchParams{Plane: string(plane)})
	require.NoError(t, err)
	return id
}
