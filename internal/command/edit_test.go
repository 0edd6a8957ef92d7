package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/ir"
	"github.com/roach88/parcad/internal/naming"
	"github.com/roach88/parcad/internal/testutil"
)

func capToken(origin document.FeatureID) string {
	return naming.MustEncode(naming.PersistentRef{
		Version:         1,
		ExpectedType:    geom.Face,
		OriginFeatureID: origin,
		Selector:        geom.Selector{Kind: "extrude.cap", Data: map[string]string{"end": "end", "loopId": "abc"}},
		Fingerprint:     naming.Fingerprint{Centroid: geom.Vec3{5, 5, 5}, Normal: geom.Vec3{0, 0, 1}, Size: 100},
	})
}

func TestModifyFeatureParam(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)

	require.NoError(t, l.ModifyFeatureParam(e1, "distance", ir.Float(12)))
	require.NoError(t, l.ModifyFeatureParam(e1, "distance", ir.String("=depth*2")))
	require.NoError(t, l.ModifyFeatureParam(e1, "op", ir.String(document.OpNew)))

	f, err := l.Document().Snapshot().Feature(e1)
	require.NoError(t, err)
	ex := f.(*document.Extrude)
	assert.Equal(t, document.Expr("depth*2"), ex.Distance)
	assert.Equal(t, document.OpNew, ex.Op)

	cases := []struct {
		key   string
		value ir.Value
	}{
		{"id", ir.String("x")},
		{"op", ir.String("melt")},
		{"distance", ir.Bool(true)},
		{"sketch", ir.String(string(e1))},
		{"targetBodies", ir.Strings(string(testutil.SeqID(0, 90)))},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			err := l.ModifyFeatureParam(e1, tc.key, tc.value)
			require.Error(t, err)
			assert.True(t, command.IsValidation(err), err.Error())
		})
	}

	assert.True(t, command.IsProtected(l.ModifyFeatureParam(document.XYPlaneID, "offset", ir.Float(1))))
	assert.True(t, command.IsNotFound(l.ModifyFeatureParam(testutil.SeqID(0, 90), "offset", ir.Float(1))))
}

func TestModifyFeatureParam_InputMustPrecedeFeature(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)
	s2 := sketchOnXY(t, l)
	testutil.Rectangle(t, l, s2, 3, 3)

	err := l.ModifyFeatureParam(e1, "sketch", ir.String(string(s2)))
	require.Error(t, err)
	assert.True(t, command.IsValidation(err))

	require.NoError(t, l.ModifyFeatureParam(e1, "sketch", ir.String(string(s1))))
}

func TestReferences(t *testing.T) {
	l := testutil.NewLayer(t)
	_, e1 := testutil.Box(t, l, 10, 10, 5)
	s2 := sketchOnXY(t, l)
	tok := capToken(e1)

	require.NoError(t, l.RepairReference(s2, "plane", tok))
	f, err := l.Document().Snapshot().Feature(s2)
	require.NoError(t, err)
	assert.Equal(t, tok, f.(*document.Sketch).Plane)

	err = l.RepairReference(s2, "plane", "pr1.garbage")
	require.Error(t, err)
	assert.True(t, command.IsValidation(err))

	err = l.ClearReference(s2, "plane")
	assert.True(t, command.IsValidation(err), "required inputs cannot be cleared")

	err = l.RepairReference(document.XYPlaneID, "base", tok)
	assert.True(t, command.IsProtected(err))
}

func TestReferenceSets(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)
	first := capToken(e1)
	second := naming.MustEncode(naming.PersistentRef{
		Version:         1,
		ExpectedType:    geom.Face,
		OriginFeatureID: e1,
		Selector:        geom.Selector{Kind: "extrude.cap", Data: map[string]string{"end": "start", "loopId": "abc"}},
	})

	e2, err := l.CreateExtrude(command.ExtrudeParams{
		Sketch:    s1,
		Extent:    document.ExtentUpToFace,
		ExtentRef: document.Ref(first),
		Op:        document.OpNew,
	})
	require.NoError(t, err)

	require.NoError(t, l.UpdateReferenceSetPreferred(e2, "extentRef", second))
	f, err := l.Document().Snapshot().Feature(e2)
	require.NoError(t, err)
	ref := f.(*document.Extrude).ExtentRef
	assert.Equal(t, second, ref.Preferred)
	assert.ElementsMatch(t, []string{first, second}, ref.Candidates)

	err = l.UpdateReferenceSetPreferred(e2, "sketch", second)
	assert.True(t, command.IsValidation(err))

	require.NoError(t, l.ModifyFeatureParam(e2, "extent", ir.String(document.ExtentBlind)))
	require.NoError(t, l.ModifyFeatureParam(e2, "distance", ir.Float(3)))
	require.NoError(t, l.ClearReference(e2, "extentRef"))
	f, err = l.Document().Snapshot().Feature(e2)
	require.NoError(t, err)
	assert.True(t, f.(*document.Extrude).ExtentRef.IsEmpty())
}

func TestVariables(t *testing.T) {
	l := testutil.NewLayer(t)

	require.NoError(t, l.SetVariable("width", ir.Float(20)))
	require.NoError(t, l.SetVariable("depth", ir.String("=width/2")))
	assert.Len(t, l.Document().Snapshot().Variables, 2)

	assert.True(t, command.IsValidation(l.SetVariable("2x", ir.Float(1))))
	assert.True(t, command.IsValidation(l.SetVariable("x", ir.String("abc"))))

	require.NoError(t, l.DeleteVariable("depth"))
	assert.True(t, command.IsNotFound(l.DeleteVariable("depth")))
	assert.Len(t, l.Document().Snapshot().Variables, 1)
}

func TestSketchEditing(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)

	lines := testutil.Rectangle(t, l, s1, 4, 2)
	assert.Equal(t, []string{"ln1@a", "ln2@a", "ln3@a", "ln4@a"}, lines)

	cn, err := l.AddConstraint(s1, "horizontal", []string{"ln1@a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "cn1@a", cn)

	_, err = l.AddConstraint(s1, "glue", []string{"ln1@a"}, nil)
	assert.True(t, command.IsValidation(err))
	_, err = l.AddConstraint(s1, "fixed", []string{"pt99@a"}, nil)
	assert.True(t, command.IsNotFound(err))

	require.NoError(t, l.MovePoint(s1, "pt3@a", 5, 2))
	assert.True(t, command.IsNotFound(l.MovePoint(s1, "pt9@a", 0, 0)))

	err = l.RemoveSketchElement(s1, "pt1@a")
	assert.True(t, command.IsValidation(err), "point is still used by a line")

	require.NoError(t, l.RemoveSketchElement(s1, "ln1@a"))
	f, err := l.Document().Snapshot().Feature(s1)
	require.NoError(t, err)
	data := f.(*document.Sketch).Data
	assert.NotContains(t, data.Entities, "ln1@a")
	assert.Empty(t, data.Constraints, "constraints on the removed line go with it")
	assert.Equal(t, document.Point{X: 5, Y: 2}, data.Points["pt3@a"])

	ln, err := l.AddLine(s1, "pt1@a", "pt2@a")
	require.NoError(t, err)
	assert.Equal(t, "ln5@a", ln, "ids are never reused")
}

func TestAddArc(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)

	c, err := l.AddPoint(s1, 0, 0)
	require.NoError(t, err)
	a, err := l.AddPoint(s1, 5, 0)
	require.NoError(t, err)
	b, err := l.AddPoint(s1, 0, 5)
	require.NoError(t, err)
	far, err := l.AddPoint(s1, 0, 9)
	require.NoError(t, err)

	id, err := l.AddArc(s1, c, a, b, true)
	require.NoError(t, err)
	assert.Equal(t, "ar1@a", id)

	_, err = l.AddArc(s1, c, a, far, true)
	assert.True(t, command.IsValidation(err))

	circle, err := l.AddArc(s1, c, a, a, true)
	require.NoError(t, err)
	assert.Equal(t, "ar2@a", circle)

	_, err = l.AddPoint(document.XYPlaneID, 0, 0)
	assert.True(t, command.IsValidation(err))
}

func TestMerge_DisjointCommandsConverge(t *testing.T) {
	a := testutil.NewLayer(t)
	b := command.New(testutil.NewDocument(t, "b"), command.WithIDGenerator(document.NewSequenceGenerator(1)))

	sa, ea := testutil.Box(t, a, 10, 10, 5)
	sb := sketchOnXY(t, b)
	pb, err := b.CreateOffsetPlane(command.OffsetPlaneParams{Base: string(document.XYPlaneID), Offset: document.Num(20)})
	require.NoError(t, err)

	blobA, err := a.Document().EncodeState()
	require.NoError(t, err)
	blobB, err := b.Document().EncodeState()
	require.NoError(t, err)
	require.NoError(t, a.Document().ApplyUpdate(blobB))
	require.NoError(t, b.Document().ApplyUpdate(blobA))

	snapA, snapB := a.Document().Snapshot(), b.Document().Snapshot()
	assert.Equal(t, snapA.Order, snapB.Order)
	assert.Equal(t, snapA.Gate, snapB.Gate)
	for _, id := range []document.FeatureID{sa, ea, sb, pb} {
		assert.True(t, snapA.Has(id), "merged order holds %s", id)
	}
	assert.Len(t, snapA.Order, 8)
	assert.Equal(t, document.PinnedIDs(), snapA.Order[:4])

	ha, err := snapA.Hash()
	require.NoError(t, err)
	hb, err := snapB.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestMerge_ConcurrentSketchEditsKeepEveryElement(t *testing.T) {
	a := testutil.NewLayer(t)
	s1 := sketchOnXY(t, a)

	docB, err := document.Open("b", document.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	fork, err := a.Document().EncodeState()
	require.NoError(t, err)
	require.NoError(t, docB.ApplyUpdate(fork))
	b := command.New(docB, command.WithIDGenerator(document.NewSequenceGenerator(1)))

	pa, err := a.AddPoint(s1, 100, 0)
	require.NoError(t, err)
	pb, err := b.AddPoint(s1, -100, 0)
	require.NoError(t, err)
	assert.NotEqual(t, pa, pb, "replicas allocate distinct ids")

	linesA := testutil.Rectangle(t, a, s1, 10, 10)
	linesB := testutil.Rectangle(t, b, s1, 4, 4)
	ca, err := a.AddConstraint(s1, "horizontal", linesA[:1], nil)
	require.NoError(t, err)
	cb, err := b.AddConstraint(s1, "vertical", linesB[1:2], nil)
	require.NoError(t, err)

	blobA, err := a.Document().EncodeState()
	require.NoError(t, err)
	blobB, err := b.Document().EncodeState()
	require.NoError(t, err)
	require.NoError(t, a.Document().ApplyUpdate(blobB))
	require.NoError(t, b.Document().ApplyUpdate(blobA))

	for _, l := range []*command.Layer{a, b} {
		f, err := l.Document().Snapshot().Feature(s1)
		require.NoError(t, err)
		data := f.(*document.Sketch).Data
		assert.Len(t, data.Points, 10)
		assert.Len(t, data.Entities, 8)
		assert.Len(t, data.Constraints, 2)
		assert.Equal(t, document.Point{X: 100, Y: 0}, data.Points[pa])
		assert.Equal(t, document.Point{X: -100, Y: 0}, data.Points[pb])
		assert.Equal(t, []string{linesA[0]}, data.Constraints[ca].Refs)
		assert.Equal(t, []string{linesB[1]}, data.Constraints[cb].Refs)
		for _, ln := range linesB {
			for _, pid := range data.Entities[ln].Points() {
				assert.Contains(t, pid, "@b", "b's lines still use b's points")
			}
		}
	}

	ha, err := a.Document().Snapshot().Hash()
	require.NoError(t, err)
	hb, err := b.Document().Snapshot().Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	next, err := b.AddPoint(s1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "pt6@b", next, "b continues its own counter after the merge")
}

func TestRun_RecoversPanics(t *testing.T) {
	res := command.Run(testutil.DiscardLogger(), func() (int, error) {
		panic("boom")
	})
	assert.False(t, res.OK)
	assert.Equal(t, command.CodeInternal, res.Code)
	assert.Contains(t, res.Error, "boom")

	ok := command.Run(nil, func() (string, error) { return "fine", nil })
	assert.True(t, ok.OK)
	assert.Equal(t, "fine", ok.Value)

	l := testutil.NewLayer(t)
	fail := command.Wrap(struct{}{}, l.DeleteFeature(document.OriginID))
	assert.Equal(t, command.CodeProtected, fail.Code)
}
