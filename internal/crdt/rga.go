package crdt

import "fmt"

// Element is a visible sequence element.
type Element struct {
	ID    OpID
	Value string
}

type rgaNode struct {
	id      OpID
	origin  OpID
	value   string
	deleted bool
}

// RGA is a replicated growable array.
//
// Inserts name the element they follow (their origin). Concurrent inserts
// after the same origin are ordered by descending OpID, so the replica id
// breaks ties between equal counters. Removes tombstone the element; the
// node stays in place as an anchor for later inserts.
//
// INVARIANTS:
//   - an insert is applied only after its origin (Doc buffers until then)
//   - a remove is applied only after the element it removes
//   - OpIDs carry Lamport counters, so an element inserted after observing
//     a sibling always sorts before that sibling
type RGA struct {
	nodes []rgaNode
	index map[OpID]int
}

// NewRGA creates an empty sequence.
func NewRGA() Sequence {
	return &RGA{index: make(map[OpID]int)}
}

// Elements returns visible elements in sequence order.
func (s *RGA) Elements() []Element {
	out := make([]Element, 0, len(s.nodes))
	for _, n := range s.nodes {
		if !n.deleted {
			out = append(out, Element{ID: n.id, Value: n.value})
		}
	}
	return out
}

// Has reports whether the element inserted by id is known, visible or not.
func (s *RGA) Has(id OpID) bool {
	_, ok := s.index[id]
	return ok
}

// Apply merges an insert or remove op.
func (s *RGA) Apply(op Op) error {
	switch op.Kind {
	case OpInsert:
		return s.insert(op)
	case OpRemove:
		i, ok := s.index[op.Ref]
		if !ok {
			return fmt.Errorf("rga %q: remove of unknown element %s", op.Target, op.Ref)
		}
		s.nodes[i].deleted = true
		return nil
	default:
		return fmt.Errorf("rga %q: cannot apply %s op", op.Target, op.Kind)
	}
}

func (s *RGA) insert(op Op) error {
	if _, ok := s.index[op.ID]; ok {
		return nil
	}

	pos := 0
	if !op.Origin.IsZero() {
		i, ok := s.index[op.Origin]
		if !ok {
			return fmt.Errorf("rga %q: insert %s after unknown element %s", op.Target, op.ID, op.Origin)
		}
		pos = i + 1
	}
	// Skip past concurrent siblings (and their subtrees) that sort first.
	for pos < len(s.nodes) && op.ID.Less(s.nodes[pos].id) {
		pos++
	}

	s.nodes = append(s.nodes, rgaNode{})
	copy(s.nodes[pos+1:], s.nodes[pos:])
	s.nodes[pos] = rgaNode{id: op.ID, origin: op.Origin, value: op.Elem}
	for i := pos; i < len(s.nodes); i++ {
		s.index[s.nodes[i].id] = i
	}
	return nil
}
