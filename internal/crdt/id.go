package crdt

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplicaID identifies one replica (browser tab, AI executor, CLI process).
type ReplicaID string

// Validate rejects replica ids that cannot be embedded in an OpID string.
func (r ReplicaID) Validate() error {
	if r == "" {
		return fmt.Errorf("replica id must not be empty")
	}
	if strings.ContainsAny(string(r), "@ \t\n") {
		return fmt.Errorf("replica id %q must not contain '@' or whitespace", r)
	}
	return nil
}

// OpID identifies an op and totally orders ops across replicas:
// Lamport counter first, replica id as the tie-break.
type OpID struct {
	Counter uint64
	Replica ReplicaID
}

// IsZero reports whether id is the zero OpID (used for "sequence head").
func (id OpID) IsZero() bool {
	return id.Counter == 0 && id.Replica == ""
}

// Compare returns -1, 0 or 1.
func (id OpID) Compare(other OpID) int {
	switch {
	case id.Counter < other.Counter:
		return -1
	case id.Counter > other.Counter:
		return 1
	case id.Replica < other.Replica:
		return -1
	case id.Replica > other.Replica:
		return 1
	}
	return 0
}

// Less reports whether id orders before other.
func (id OpID) Less(other OpID) bool {
	return id.Compare(other) < 0
}

// String formats the id as "counter@replica".
func (id OpID) String() string {
	return strconv.FormatUint(id.Counter, 10) + "@" + string(id.Replica)
}

// ParseOpID parses the "counter@replica" form.
func ParseOpID(s string) (OpID, error) {
	counter, replica, ok := strings.Cut(s, "@")
	if !ok {
		return OpID{}, fmt.Errorf("op id %q: missing '@'", s)
	}
	n, err := strconv.ParseUint(counter, 10, 64)
	if err != nil || n == 0 {
		return OpID{}, fmt.Errorf("op id %q: invalid counter", s)
	}
	r := ReplicaID(replica)
	if err := r.Validate(); err != nil {
		return OpID{}, fmt.Errorf("op id %q: %w", s, err)
	}
	return OpID{Counter: n, Replica: r}, nil
}
