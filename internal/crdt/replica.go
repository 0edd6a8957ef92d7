package crdt

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/parcad/internal/ir"
)

// Doc is one replica of an operation-based replicated document: a set of
// named maps and named sequences plus the op log that produced them.
//
// Local edits are staged in a Batch and committed as one Update. Commit
// encodes the update and feeds the blob through ApplyUpdate, so local and
// remote ops take exactly the same decode/apply path.
//
// Thread-safety model:
//   - Doc is owned by one goroutine (the replica's command loop)
//   - encoded blobs and snapshots derived from it are immutable
//
// INVARIANTS:
//   - every op is applied at most once (seen set)
//   - an op whose causal dependency is missing is buffered, not dropped
//   - StateVector()[r] is the highest seq n such that ops 1..n of r are known
type Doc struct {
	replica ReplicaID
	clock   *Clock
	logger  *slog.Logger

	newMap func() Map
	newSeq func() Sequence
	maps   map[string]Map
	seqs   map[string]Sequence

	seen     map[OpID]struct{}
	received map[ReplicaID]uint64
	ahead    map[ReplicaID]map[uint64]struct{}
	pending  []Op
	log      []Op
	nextSeq  uint64
}

// DocOption configures a Doc.
type DocOption func(*Doc)

// WithMapFactory swaps the map merge algorithm.
func WithMapFactory(f func() Map) DocOption {
	return func(d *Doc) {
		d.newMap = f
	}
}

// WithSequenceFactory swaps the sequence merge algorithm.
func WithSequenceFactory(f func() Sequence) DocOption {
	return func(d *Doc) {
		d.newSeq = f
	}
}

// WithLogger sets the logger for buffering diagnostics.
func WithLogger(l *slog.Logger) DocOption {
	return func(d *Doc) {
		d.logger = l
	}
}

// NewDoc creates an empty replica.
func NewDoc(replica ReplicaID, opts ...DocOption) (*Doc, error) {
	if err := replica.Validate(); err != nil {
		return nil, err
	}
	d := &Doc{
		replica:  replica,
		clock:    NewClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		newMap:   NewLWWMap,
		newSeq:   NewRGA,
		maps:     make(map[string]Map),
		seqs:     make(map[string]Sequence),
		seen:     make(map[OpID]struct{}),
		received: make(map[ReplicaID]uint64),
		ahead:    make(map[ReplicaID]map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Replica returns this replica's id.
func (d *Doc) Replica() ReplicaID {
	return d.replica
}

// Map returns the named map, creating it empty if needed.
func (d *Doc) Map(name string) Map {
	m, ok := d.maps[name]
	if !ok {
		m = d.newMap()
		d.maps[name] = m
	}
	return m
}

// Sequence returns the named sequence, creating it empty if needed.
func (d *Doc) Sequence(name string) Sequence {
	s, ok := d.seqs[name]
	if !ok {
		s = d.newSeq()
		d.seqs[name] = s
	}
	return s
}

// MapNames returns the names of all maps that have received an op.
func (d *Doc) MapNames() []string {
	names := make([]string, 0, len(d.maps))
	for name := range d.maps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Pending returns the number of buffered ops waiting for dependencies.
func (d *Doc) Pending() int {
	return len(d.pending)
}

// Batch is a staged set of local ops. Nothing is visible until Commit.
type Batch struct {
	doc *Doc
	ops []Op
}

// Batch starts a new local transaction.
func (d *Doc) Batch() *Batch {
	return &Batch{doc: d}
}

func (b *Batch) next() OpID {
	return OpID{Counter: b.doc.clock.Next(), Replica: b.doc.replica}
}

// Set writes key in the named map.
func (b *Batch) Set(target, key string, v ir.Value) {
	b.ops = append(b.ops, Op{ID: b.next(), Kind: OpSet, Target: target, Key: key, Value: v})
}

// Delete tombstones key in the named map.
func (b *Batch) Delete(target, key string) {
	b.ops = append(b.ops, Op{ID: b.next(), Kind: OpDelete, Target: target, Key: key})
}

// Insert stages elem after origin (zero origin means the head) and returns
// the new element's id so later ops in the batch can anchor on it.
func (b *Batch) Insert(target string, origin OpID, elem string) OpID {
	id := b.next()
	b.ops = append(b.ops, Op{ID: id, Kind: OpInsert, Target: target, Origin: origin, Elem: elem})
	return id
}

// Remove tombstones the element inserted by ref.
func (b *Batch) Remove(target string, ref OpID) {
	b.ops = append(b.ops, Op{ID: b.next(), Kind: OpRemove, Target: target, Ref: ref})
}

// Len returns the number of staged ops.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies the batch locally and returns its update blob. An empty
// batch commits nothing and returns nil.
func (b *Batch) Commit() ([]byte, error) {
	if len(b.ops) == 0 {
		return nil, nil
	}
	ops := make([]Op, len(b.ops))
	for i, op := range b.ops {
		b.doc.nextSeq++
		op.Seq = b.doc.nextSeq
		ops[i] = op
	}
	b.ops = nil

	blob, err := EncodeUpdate(Update{Ops: ops})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if err := b.doc.ApplyUpdate(blob); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return blob, nil
}

// ApplyUpdate merges an update blob from any replica, including this one.
// Duplicate ops are ignored; ops with missing dependencies are buffered and
// applied once the dependency arrives.
func (d *Doc) ApplyUpdate(blob []byte) error {
	u, err := DecodeUpdate(blob)
	if err != nil {
		return err
	}
	for _, op := range u.Ops {
		if d.known(op.ID) {
			continue
		}
		d.pending = append(d.pending, op)
	}
	return d.drain()
}

func (d *Doc) known(id OpID) bool {
	if _, ok := d.seen[id]; ok {
		return true
	}
	for _, op := range d.pending {
		if op.ID == id {
			return true
		}
	}
	return false
}

// drain applies buffered ops until no more progress is possible.
func (d *Doc) drain() error {
	for progress := true; progress; {
		progress = false
		rest := d.pending[:0]
		for i, op := range d.pending {
			if !d.ready(op) {
				rest = append(rest, op)
				continue
			}
			if err := d.apply(op); err != nil {
				// rest aliases pending; drop the failed op and keep the unvisited tail
				d.pending = append(rest, d.pending[i+1:]...)
				return err
			}
			progress = true
		}
		d.pending = rest
	}
	if len(d.pending) > 0 {
		d.logger.Debug("ops buffered", "replica", d.replica, "pending", len(d.pending))
	}
	return nil
}

func (d *Doc) ready(op Op) bool {
	switch op.Kind {
	case OpInsert:
		return op.Origin.IsZero() || d.Sequence(op.Target).Has(op.Origin)
	case OpRemove:
		return d.Sequence(op.Target).Has(op.Ref)
	default:
		return true
	}
}

func (d *Doc) apply(op Op) error {
	var err error
	switch op.Kind {
	case OpSet, OpDelete:
		err = d.Map(op.Target).Apply(op)
	case OpInsert, OpRemove:
		err = d.Sequence(op.Target).Apply(op)
	default:
		err = fmt.Errorf("unknown op kind %q", op.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", op.ID, err)
	}

	d.seen[op.ID] = struct{}{}
	d.log = append(d.log, op)
	d.clock.Observe(op.ID.Counter)
	d.markReceived(op.ID.Replica, op.Seq)
	return nil
}

func (d *Doc) markReceived(r ReplicaID, seq uint64) {
	if r == d.replica && seq > d.nextSeq {
		// Resuming from persisted updates written by this replica.
		d.nextSeq = seq
	}
	if seq <= d.received[r] {
		return
	}
	set := d.ahead[r]
	if set == nil {
		set = make(map[uint64]struct{})
		d.ahead[r] = set
	}
	set[seq] = struct{}{}
	for {
		next := d.received[r] + 1
		if _, ok := set[next]; !ok {
			break
		}
		delete(set, next)
		d.received[r] = next
	}
}

// StateVector summarizes which ops this replica has applied.
type StateVector map[ReplicaID]uint64

// StateVector returns a copy of the current state vector.
func (d *Doc) StateVector() StateVector {
	sv := make(StateVector, len(d.received))
	for r, n := range d.received {
		sv[r] = n
	}
	return sv
}

// EncodeState returns one update containing every known op, applied or
// buffered. Applying it to an empty replica reproduces this replica.
func (d *Doc) EncodeState() ([]byte, error) {
	return d.EncodeDiff(nil)
}

// EncodeDiff returns an update with the ops the holder of sv is missing.
func (d *Doc) EncodeDiff(sv StateVector) ([]byte, error) {
	ops := make([]Op, 0, len(d.log)+len(d.pending))
	for _, op := range d.log {
		if op.Seq > sv[op.ID.Replica] {
			ops = append(ops, op)
		}
	}
	for _, op := range d.pending {
		if op.Seq > sv[op.ID.Replica] {
			ops = append(ops, op)
		}
	}
	return EncodeUpdate(Update{Ops: ops})
}

// Encode serializes a state vector canonically.
func (sv StateVector) Encode() ([]byte, error) {
	obj := make(ir.Object, len(sv))
	for r, n := range sv {
		obj[string(r)] = ir.Int(int64(n))
	}
	return ir.MarshalCanonical(obj)
}

// DecodeStateVector parses the output of StateVector.Encode.
func DecodeStateVector(data []byte) (StateVector, error) {
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode state vector: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("decode state vector: expected object")
	}
	sv := make(StateVector, len(obj))
	for k, val := range obj {
		n, ok := val.(ir.Int)
		if !ok || n < 0 {
			return nil, fmt.Errorf("decode state vector: replica %q: invalid seq", k)
		}
		sv[ReplicaID(k)] = uint64(n)
	}
	return sv, nil
}
