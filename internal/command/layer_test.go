package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/testutil"
)

func seq(n int) document.FeatureID { return testutil.SeqID(0, n) }

func sketchOnXY(t *testing.T, l *command.Layer) document.FeatureID {
	t.Helper()
	id, err := l.CreateSketch(command.SketchParams{Plane: string(document.XYPlaneID)})
	require.NoError(t, err)
	return id
}

func TestExampleScenario(t *testing.T) {
	l := testutil.NewLayer(t)

	s1 := sketchOnXY(t, l)
	testutil.Rectangle(t, l, s1, 10, 10)
	e1, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1, Distance: document.Num(10), Op: document.OpAdd})
	require.NoError(t, err)

	snap := l.Document().Snapshot()
	want := append(document.PinnedIDs(), s1, e1)
	assert.Equal(t, want, snap.Order)
	assert.Equal(t, e1, snap.Gate)

	err = l.DeleteFeature(document.XYPlaneID)
	require.Error(t, err)
	assert.True(t, command.IsProtected(err))
	assert.Equal(t, command.CodeProtected, command.Code(err))
	assert.Equal(t, want, l.Document().Snapshot().Order)
}

func TestCreate_GatePlacement(t *testing.T) {
	l := testutil.NewLayer(t)

	s1 := sketchOnXY(t, l)
	s2 := sketchOnXY(t, l)
	require.NoError(t, l.SetRebuildGate(s1))

	plane, err := l.CreateOffsetPlane(command.OffsetPlaneParams{Base: string(document.XZPlaneID), Offset: document.Num(5)})
	require.NoError(t, err)

	snap := l.Document().Snapshot()
	assert.Equal(t, snap.Index(s1)+1, snap.Index(plane))
	assert.Equal(t, plane, snap.Gate)
	assert.Equal(t, snap.Index(plane)+1, snap.Index(s2))
}

func TestCreate_GateInsidePinnedPrefix(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)
	require.NoError(t, l.SetRebuildGate(document.XYPlaneID))

	s2 := sketchOnXY(t, l)
	snap := l.Document().Snapshot()
	assert.Equal(t, 4, snap.Index(s2), "inserted right after the pinned prefix")
	assert.Equal(t, 5, snap.Index(s1))
	assert.Equal(t, s2, snap.Gate)
}

func TestCreate_ValidationLeavesDocumentUntouched(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)
	before, err := l.Document().Snapshot().Hash()
	require.NoError(t, err)

	cases := []struct {
		name string
		run  func() error
	}{
		{"sketch on missing plane", func() error {
			_, err := l.CreateSketch(command.SketchParams{Plane: string(seq(99))})
			return err
		}},
		{"sketch on a sketch", func() error {
			_, err := l.CreateSketch(command.SketchParams{Plane: string(s1)})
			return err
		}},
		{"sketch with malformed token", func() error {
			_, err := l.CreateSketch(command.SketchParams{Plane: "pr1.!!!"})
			return err
		}},
		{"extrude with bad op", func() error {
			_, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1, Distance: document.Num(1), Op: "melt"})
			return err
		}},
		{"extrude with zero distance", func() error {
			_, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1})
			return err
		}},
		{"extrude up to nothing", func() error {
			_, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1, Extent: document.ExtentUpToFace})
			return err
		}},
		{"extrude selected without targets", func() error {
			_, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1, Distance: document.Num(1), MergeScope: document.ScopeSelected})
			return err
		}},
		{"revolve around a plane", func() error {
			_, err := l.CreateRevolve(command.RevolveParams{Sketch: s1, Axis: string(document.XZPlaneID), Angle: document.Num(400)})
			return err
		}},
		{"boolean on a sketch", func() error {
			_, err := l.CreateBoolean(command.BooleanParams{Op: document.BoolUnion, Target: s1})
			return err
		}},
		{"axis with zero direction", func() error {
			_, err := l.CreateAxis(command.AxisParams{Point: &[3]float64{}, Direction: &[3]float64{}})
			return err
		}},
		{"blank name", func() error {
			_, err := l.CreateSketch(command.SketchParams{Plane: string(document.XYPlaneID), Name: "  "})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			assert.Equal(t, command.CodeValidation, command.Code(err), err.Error())
		})
	}

	after, err := l.Document().Snapshot().Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreate_InputsMustPrecedeInsertionPoint(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)
	sketchOnXY(t, l)
	require.NoError(t, l.SetRebuildGate(document.YZPlaneID))

	_, err := l.CreateExtrude(command.ExtrudeParams{Sketch: s1, Distance: document.Num(1)})
	require.Error(t, err)
	assert.True(t, command.IsValidation(err))
	assert.Contains(t, err.Error(), "after the insertion point")
}

func TestCreate_DefaultsAndNames(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)

	snap := l.Document().Snapshot()
	f, err := snap.Feature(e1)
	require.NoError(t, err)
	ex := f.(*document.Extrude)
	assert.Equal(t, s1, ex.Sketch)
	assert.Equal(t, document.OpAdd, ex.Op)
	assert.Equal(t, document.ExtentBlind, ex.Extent)
	assert.Equal(t, document.ScopeAll, ex.MergeScope)

	id, err := l.CreateSketch(command.SketchParams{Plane: string(document.XYPlaneID), Name: "  Café "})
	require.NoError(t, err)
	f, err = l.Document().Snapshot().Feature(id)
	require.NoError(t, err)
	assert.Equal(t, "Café", f.Base().Name)
}

func TestDelete(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)

	require.NoError(t, l.DeleteFeature(e1))
	snap := l.Document().Snapshot()
	assert.False(t, snap.Has(e1))
	assert.Equal(t, s1, snap.Gate, "gate moves to the predecessor")

	err := l.DeleteFeature(e1)
	assert.True(t, command.IsNotFound(err))

	for _, id := range document.PinnedIDs() {
		assert.True(t, command.IsProtected(l.DeleteFeature(id)))
	}
}

func TestDelete_NoCascade(t *testing.T) {
	l := testutil.NewLayer(t)
	s1, e1 := testutil.Box(t, l, 10, 10, 5)

	require.NoError(t, l.DeleteFeature(s1))
	snap := l.Document().Snapshot()
	assert.True(t, snap.Has(e1))
	assert.Equal(t, e1, snap.Gate)
}

func TestRenameSuppressVisibility(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)

	require.NoError(t, l.RenameFeature(s1, "Profile"))
	require.NoError(t, l.SuppressFeature(s1, true))
	require.NoError(t, l.SetVisibility(s1, false))

	f, err := l.Document().Snapshot().Feature(s1)
	require.NoError(t, err)
	assert.Equal(t, "Profile", f.Base().Name)
	assert.True(t, f.Base().Suppressed)
	assert.True(t, f.Base().Hidden)

	visible, err := l.ToggleVisibility(s1)
	require.NoError(t, err)
	assert.True(t, visible)

	assert.True(t, command.IsProtected(l.RenameFeature(document.OriginID, "x")))
	assert.True(t, command.IsProtected(l.SuppressFeature(document.XZPlaneID, true)))
	assert.NoError(t, l.SetVisibility(document.YZPlaneID, false), "datums can be hidden")
	assert.True(t, command.IsNotFound(l.SetVisibility(seq(42), false)))
}

func TestReorder(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)
	s2 := sketchOnXY(t, l)
	s3 := sketchOnXY(t, l)

	require.NoError(t, l.ReorderFeature(s3, ""))
	assert.Equal(t, append(document.PinnedIDs(), s3, s1, s2), l.Document().Snapshot().Order)

	require.NoError(t, l.ReorderFeature(s3, document.OriginID), "clamped out of the pinned prefix")
	assert.Equal(t, append(document.PinnedIDs(), s3, s1, s2), l.Document().Snapshot().Order)

	require.NoError(t, l.ReorderFeature(s3, s2))
	assert.Equal(t, append(document.PinnedIDs(), s1, s2, s3), l.Document().Snapshot().Order)

	assert.True(t, command.IsProtected(l.ReorderFeature(document.XYPlaneID, s3)))
	assert.True(t, command.IsValidation(l.ReorderFeature(s1, s1)))
	assert.True(t, command.IsNotFound(l.ReorderFeature(s1, seq(77))))
}

func TestSetRebuildGate(t *testing.T) {
	l := testutil.NewLayer(t)
	s1 := sketchOnXY(t, l)

	require.NoError(t, l.SetRebuildGate(""))
	assert.Equal(t, document.FeatureID(""), l.Document().Snapshot().Gate)
	require.NoError(t, l.SetRebuildGate(s1))
	assert.Equal(t, s1, l.Document().Snapshot().Gate)
	assert.True(t, command.IsNotFound(l.SetRebuildGate(seq(50))))
}

func TestDocumentSettings(t *testing.T) {
	l := testutil.NewLayer(t)

	require.NoError(t, l.RenameDocument(" Bracket "))
	require.NoError(t, l.SetUnits("in"))
	assert.True(t, command.IsValidation(l.SetUnits("furlong")))
	assert.True(t, command.IsValidation(l.RenameDocument("")))

	meta := l.Document().Snapshot().Meta
	assert.Equal(t, "Bracket", meta.Name)
	assert.Equal(t, "in", meta.Units)
}
