package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopIDDeterminism(t *testing.T) {
	id1, err := LoopID([]string{"ln1", "ln2", "ln3", "ln4"})
	require.NoError(t, err)
	id2, err := LoopID([]string{"ln1", "ln2", "ln3", "ln4"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)
}

func TestLoopIDSensitiveToOrder(t *testing.T) {
	id1, err := LoopID([]string{"ln1", "ln2", "ln3"})
	require.NoError(t, err)
	id2, err := LoopID([]string{"ln1", "ln3", "ln2"})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2, "LoopID hashes the sequence as given")
}

func TestDomainSeparation(t *testing.T) {
	payload := Strings("ln1", "ln2")

	loop, err := Hash(DomainLoop, payload)
	require.NoError(t, err)
	snap, err := Hash(DomainSnapshot, payload)
	require.NoError(t, err)

	assert.NotEqual(t, loop, snap, "same payload under different domains must differ")
}

func TestUpdateIDIsStable(t *testing.T) {
	blob := []byte(`{"ops":[],"v":1}`)
	assert.Equal(t, UpdateID(blob), UpdateID(blob))
	assert.NotEqual(t, UpdateID(blob), UpdateID([]byte(`{"ops":[],"v":2}`)))
	assert.Len(t, UpdateID(blob), 64)
}

func TestSnapshotHashIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"order": []any{"x", "y"}, "meta": map[string]any{"name": "Part"}}
	b := map[string]any{"meta": map[string]any{"name": "Part"}, "order": []any{"x", "y"}}

	ha, err := SnapshotHash(a)
	require.NoError(t, err)
	hb, err := SnapshotHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
