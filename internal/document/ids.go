package document

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// FeatureID identifies a feature for the lifetime of a document.
// Non-pinned ids are random UUIDv4 strings chosen by the creating replica.
type FeatureID string

// datumNamespace seeds the name-based ids of the pinned datums.
var datumNamespace = uuid.MustParse("6f1d3c2a-8b4e-4f0a-9c5d-2e7b1a9f0c11")

// Pinned datum ids. They are identical in every document so that any two
// documents share a genesis and can merge.
var (
	OriginID  = FeatureID(uuid.NewSHA1(datumNamespace, []byte("origin")).String())
	XYPlaneID = FeatureID(uuid.NewSHA1(datumNamespace, []byte("plane/xy")).String())
	XZPlaneID = FeatureID(uuid.NewSHA1(datumNamespace, []byte("plane/xz")).String())
	YZPlaneID = FeatureID(uuid.NewSHA1(datumNamespace, []byte("plane/yz")).String())
)

// PinnedIDs returns the datum prefix every order starts with.
func PinnedIDs() []FeatureID {
	return []FeatureID{OriginID, XYPlaneID, XZPlaneID, YZPlaneID}
}

// IsPinned reports whether id is one of the four datum features.
func IsPinned(id FeatureID) bool {
	switch id {
	case OriginID, XYPlaneID, XZPlaneID, YZPlaneID:
		return true
	}
	return false
}

// ParseFeatureID validates s as a feature id.
func ParseFeatureID(s string) (FeatureID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid feature id %q: %w", s, err)
	}
	return FeatureID(s), nil
}

// IDGenerator produces new feature ids.
// Implemented by UUIDGenerator (production) and SequenceGenerator (tests).
type IDGenerator interface {
	Generate() FeatureID
}

// UUIDGenerator generates random UUIDv4 feature ids.
//
// Thread-safety: safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a new random feature id.
func (UUIDGenerator) Generate() FeatureID {
	return FeatureID(uuid.NewString())
}

// SequenceGenerator generates predictable v4-shaped ids:
// 00000000-0000-4000-8000-000000000001, ...002, and so on.
//
// Two generators created with the same prefix produce the same sequence,
// which makes documents built by different actors comparable.
//
// Thread-safety: safe for concurrent use (atomic counter).
type SequenceGenerator struct {
	prefix  uint32
	counter atomic.Uint64
}

// NewSequenceGenerator creates a generator. prefix fills the first group so
// that generators for different replicas never collide.
func NewSequenceGenerator(prefix uint32) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() FeatureID {
	n := g.counter.Add(1)
	return FeatureID(fmt.Sprintf("%08x-0000-4000-8000-%012x", g.prefix, n))
}
