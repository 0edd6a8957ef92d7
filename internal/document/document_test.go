package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/ir"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func newDoc(t *testing.T, replica crdt.ReplicaID) *Document {
	t.Helper()
	d, err := New(replica, "bracket", WithClock(fixedNow))
	require.NoError(t, err)
	return d
}

func sketchOn(id FeatureID, plane FeatureID) *Sketch {
	return &Sketch{Common: Common{ID: id, Name: "Sketch"}, Plane: string(plane), Data: NewSketchData()}
}

func create(t *testing.T, d *Document, f Feature, after FeatureID) {
	t.Helper()
	_, err := d.Update(func(tx *Tx) error {
		if err := tx.Create(f, after); err != nil {
			return err
		}
		tx.SetGate(f.Base().ID)
		return nil
	})
	require.NoError(t, err)
}

func TestNew_Genesis(t *testing.T) {
	d := newDoc(t, "a")
	s := d.Snapshot()

	assert.Equal(t, PinnedIDs(), s.Order)
	assert.Equal(t, FeatureID(""), s.Gate)
	assert.Equal(t, "bracket", s.Meta.Name)
	assert.Equal(t, "2026-03-01T12:00:00Z", s.Meta.CreatedAt)
	assert.Equal(t, "2026-03-01T12:00:00Z", s.Meta.ModifiedAt)
	assert.Equal(t, 1, s.Meta.SchemaVersion)
	assert.Equal(t, "mm", s.Meta.Units)
	assert.Equal(t, 4, s.PinnedPrefixLen())
	assert.Empty(t, s.Anomalies)

	xy, err := s.Feature(XYPlaneID)
	require.NoError(t, err)
	assert.Equal(t, RoleXY, xy.(*Plane).Role)
}

func TestGenesis_Deterministic(t *testing.T) {
	a, err := buildGenesis()
	require.NoError(t, err)
	b, err := buildGenesis()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPinnedIDs_Stable(t *testing.T) {
	assert.True(t, IsPinned(OriginID))
	assert.True(t, IsPinned(YZPlaneID))
	assert.False(t, IsPinned("00000000-0000-4000-8000-000000000001"))

	_, err := ParseFeatureID(string(XZPlaneID))
	assert.NoError(t, err)
	_, err = ParseFeatureID("nope")
	assert.Error(t, err)
}

func TestUpdate_CreateAfterGate(t *testing.T) {
	d := newDoc(t, "a")
	s1 := FeatureID("00000000-0000-4000-8000-000000000001")
	s2 := FeatureID("00000000-0000-4000-8000-000000000002")

	create(t, d, sketchOn(s1, XYPlaneID), "")
	create(t, d, sketchOn(s2, XZPlaneID), s1)

	s := d.Snapshot()
	assert.Equal(t, append(PinnedIDs(), s1, s2), s.Order)
	assert.Equal(t, s2, s.Gate)
}

func TestUpdate_ErrorWritesNothing(t *testing.T) {
	d := newDoc(t, "a")
	before := d.StateVector()

	blob, err := d.Update(func(tx *Tx) error {
		tx.SetMeta(MetaName, ir.String("changed"))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, blob)
	assert.Equal(t, before, d.StateVector())
	assert.Equal(t, "bracket", d.Snapshot().Meta.Name)
}

func TestUpdate_DeleteAndMove(t *testing.T) {
	d := newDoc(t, "a")
	gen := NewSequenceGenerator(0)
	ids := []FeatureID{gen.Generate(), gen.Generate(), gen.Generate()}
	after := FeatureID("")
	for _, id := range ids {
		create(t, d, sketchOn(id, XYPlaneID), after)
		after = id
	}

	_, err := d.Update(func(tx *Tx) error { return tx.Move(ids[2], "") })
	require.NoError(t, err)
	assert.Equal(t, append(PinnedIDs(), ids[2], ids[0], ids[1]), d.Snapshot().Order)

	_, err = d.Update(func(tx *Tx) error { tx.Delete(ids[0]); return nil })
	require.NoError(t, err)
	s := d.Snapshot()
	assert.Equal(t, append(PinnedIDs(), ids[2], ids[1]), s.Order)
	assert.False(t, s.Has(ids[0]))
	assert.Empty(t, s.Anomalies)
}

func TestMerge_FreshDocumentsShareGenesis(t *testing.T) {
	a := newDoc(t, "a")
	b := newDoc(t, "b")
	sa := FeatureID("0000000a-0000-4000-8000-000000000001")
	sb := FeatureID("0000000b-0000-4000-8000-000000000001")
	create(t, a, sketchOn(sa, XYPlaneID), "")
	create(t, b, sketchOn(sb, YZPlaneID), "")

	ua, err := a.EncodeDiff(b.StateVector())
	require.NoError(t, err)
	ub, err := b.EncodeDiff(a.StateVector())
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(ub))
	require.NoError(t, b.ApplyUpdate(ua))

	snapA, snapB := a.Snapshot(), b.Snapshot()
	assert.Equal(t, snapA.Order, snapB.Order)
	assert.Equal(t, snapA.Gate, snapB.Gate)
	assert.Len(t, snapA.Order, 6)
	assert.Equal(t, PinnedIDs(), snapA.Order[:4])

	ha, err := snapA.Hash()
	require.NoError(t, err)
	hb, err := snapB.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestMerge_ConcurrentMovesKeepOneEntry(t *testing.T) {
	a := newDoc(t, "a")
	gen := NewSequenceGenerator(1)
	x, y, z := gen.Generate(), gen.Generate(), gen.Generate()
	create(t, a, sketchOn(x, XYPlaneID), "")
	create(t, a, sketchOn(y, XYPlaneID), x)
	create(t, a, sketchOn(z, XYPlaneID), y)

	b, err := Open("b", WithClock(fixedNow))
	require.NoError(t, err)
	state, err := a.EncodeState()
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(state))

	ua, err := a.Update(func(tx *Tx) error { return tx.Move(x, z) })
	require.NoError(t, err)
	ub, err := b.Update(func(tx *Tx) error { return tx.Move(x, y) })
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(ub))
	require.NoError(t, b.ApplyUpdate(ua))

	sa, sb := a.Snapshot(), b.Snapshot()
	assert.Equal(t, sa.Order, sb.Order)
	assert.Len(t, sa.Order, 7, "x appears exactly once")
	assert.NotEmpty(t, sa.Anomalies)
	assert.Equal(t, AnomalyDuplicateEntry, sa.Anomalies[0].Kind)
}

func TestMerge_DanglingGateReadsNull(t *testing.T) {
	a := newDoc(t, "a")
	x := FeatureID("00000000-0000-4000-8000-0000000000aa")
	create(t, a, sketchOn(x, XYPlaneID), "")

	b, err := Open("b")
	require.NoError(t, err)
	state, err := a.EncodeState()
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(state))

	// a deletes x and resets the gate; b concurrently points the gate at x
	// again with a later counter.
	ua, err := a.Update(func(tx *Tx) error { tx.Delete(x); tx.SetGate(""); return nil })
	require.NoError(t, err)
	ub, err := b.Update(func(tx *Tx) error {
		tx.SetMeta(MetaName, ir.String("bump"))
		tx.SetMeta(MetaUnits, ir.String("cm"))
		tx.SetGate(x)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(ub))
	require.NoError(t, b.ApplyUpdate(ua))

	for _, d := range []*Document{a, b} {
		s := d.Snapshot()
		assert.Equal(t, FeatureID(""), s.Gate)
		assert.Equal(t, AnomalyDanglingGate, s.Anomalies[len(s.Anomalies)-1].Kind)
	}
}

func TestOnUpdate_NotifiesLocalAndRemote(t *testing.T) {
	a := newDoc(t, "a")
	b := newDoc(t, "b")

	var local, remote int
	b.OnUpdate(func(blob []byte, isLocal bool) {
		if isLocal {
			local++
		} else {
			remote++
		}
	})

	_, err := b.Update(func(tx *Tx) error { tx.SetVariable("width", ir.Int(20)); return nil })
	require.NoError(t, err)
	state, err := a.EncodeState()
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(state))

	assert.Equal(t, 1, local)
	assert.Equal(t, 1, remote)
	assert.Equal(t, ir.Int(20), b.Snapshot().Variables["width"])
}

func TestSnapshot_TreeShape(t *testing.T) {
	d := newDoc(t, "a")
	s1 := FeatureID("00000000-0000-4000-8000-000000000001")
	sk := sketchOn(s1, XYPlaneID)
	sk.Data.Points["pt1"] = Point{X: 1, Y: 2}
	create(t, d, sk, "")

	tree := d.Snapshot().Tree()
	assert.Equal(t, map[string]any{"rebuildGate": string(s1)}, tree["state"])
	order := tree["order"].([]any)
	assert.Len(t, order, 5)

	features := tree["features"].(map[string]any)
	rec := features[string(s1)].(map[string]any)
	assert.Equal(t, "sketch", rec["type"])
	assert.Equal(t, map[string]any{"pt1": map[string]any{"x": int64(1), "y": int64(2)}}, rec["points"])
}
