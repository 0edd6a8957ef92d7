package crdt

import (
	"fmt"
	"slices"

	"github.com/roach88/parcad/internal/ir"
)

// Map is a replicated key/value container.
//
// Implementations must be convergent: applying the same set of ops in any
// order leaves every replica with identical Get/Keys results.
type Map interface {
	Get(key string) (ir.Value, bool)
	Keys() []string
	Len() int
	Apply(op Op) error
}

// Sequence is a replicated ordered list of string elements.
//
// Each inserted element is identified by the OpID of its insert. Values may
// repeat; callers that need uniqueness enforce it at materialization.
type Sequence interface {
	Elements() []Element
	Has(id OpID) bool
	Apply(op Op) error
}

// lwwEntry is one slot. Tombstones keep their OpID so that a delete can
// still lose against a concurrent later write.
type lwwEntry struct {
	id      OpID
	value   ir.Value
	deleted bool
}

// LWWMap is a last-writer-wins map. Every slot converges to the write with
// the greatest OpID.
type LWWMap struct {
	entries map[string]lwwEntry
}

// NewLWWMap creates an empty map.
func NewLWWMap() Map {
	return &LWWMap{entries: make(map[string]lwwEntry)}
}

// Get returns the live value for key.
func (m *LWWMap) Get(key string) (ir.Value, bool) {
	e, ok := m.entries[key]
	if !ok || e.deleted {
		return nil, false
	}
	return e.value, true
}

// Keys returns live keys in sorted order.
func (m *LWWMap) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if !e.deleted {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of live keys.
func (m *LWWMap) Len() int {
	n := 0
	for _, e := range m.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Apply merges a set or delete op. Ops older than the current slot are
// ignored, which makes Apply idempotent and order-independent.
func (m *LWWMap) Apply(op Op) error {
	switch op.Kind {
	case OpSet, OpDelete:
	default:
		return fmt.Errorf("lww map %q: cannot apply %s op", op.Target, op.Kind)
	}

	if cur, ok := m.entries[op.Key]; ok && !cur.id.Less(op.ID) {
		return nil
	}
	m.entries[op.Key] = lwwEntry{
		id:      op.ID,
		value:   op.Value,
		deleted: op.Kind == OpDelete,
	}
	return nil
}
