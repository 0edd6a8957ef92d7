package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/parcad/internal/document"
)

// FixedIDGenerator returns a fixed list of feature ids in order.
//
// Scenarios that name their ids up front use it so goldens can refer to
// features by id. It panics when the list is exhausted: a test that creates
// more features than it declared is a broken test.
//
// Thread-safety: safe for concurrent use.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []document.FeatureID
	pos int
}

// NewFixedIDGenerator creates a generator over ids.
func NewFixedIDGenerator(ids ...document.FeatureID) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedIDGenerator) Generate() document.FeatureID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pos >= len(g.ids) {
		panic(fmt.Sprintf("FixedIDGenerator exhausted after %d ids", len(g.ids)))
	}
	id := g.ids[g.pos]
	g.pos++
	return id
}

// Remaining returns how many ids are left.
func (g *FixedIDGenerator) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids) - g.pos
}
