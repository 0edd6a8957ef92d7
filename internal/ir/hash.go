package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainLoop     = "parcad/loop/v1"
	DomainUpdate   = "parcad/update/v1"
	DomainSnapshot = "parcad/snapshot/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the domain-separated hash of v's canonical JSON.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// LoopID hashes an ordered entity cycle. The caller is responsible for
// canonicalizing the cycle's start and direction.
func LoopID(cycle []string) (string, error) {
	h, err := Hash(DomainLoop, Strings(cycle...))
	if err != nil {
		return "", err
	}
	// 128 bits is plenty for identities scoped to one sketch.
	return h[:32], nil
}

// UpdateID identifies an encoded update blob. Blobs are already canonical,
// so the raw bytes are hashed directly.
func UpdateID(blob []byte) string {
	return hashWithDomain(DomainUpdate, blob)
}

// SnapshotHash fingerprints a materialized document tree.
func SnapshotHash(tree map[string]any) (string, error) {
	return Hash(DomainSnapshot, tree)
}
