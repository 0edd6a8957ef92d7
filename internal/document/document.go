package document

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/ir"
)

// Container names inside the replicated document.
const (
	mapMeta      = "meta"
	mapState     = "state"
	mapVariables = "variables"
	mapFeatures  = "features"
	seqOrder     = "order"
	fieldPrefix  = "f:"

	keyGate = "rebuildGate"
)

// Meta keys.
const (
	MetaName          = "name"
	MetaCreatedAt     = "createdAt"
	MetaModifiedAt    = "modifiedAt"
	MetaSchemaVersion = "schemaVersion"
	MetaUnits         = "units"
)

// Units lists the supported unit systems.
var Units = []string{"mm", "cm", "m", "in"}

// genesisReplica writes the shared genesis update.
const genesisReplica crdt.ReplicaID = "genesis"

func fieldMap(id FeatureID) string {
	return fieldPrefix + string(id)
}

// Document is one replica of a parcad document.
//
// Reads go through Snapshot; writes go through Update, which stages every
// write of one command in a single transaction. The Command Layer is the
// only caller of Update.
//
// Thread-safety model:
//   - Update, ApplyUpdate and Snapshot are serialized by an internal mutex
//   - listeners run on the calling goroutine after the mutex is released
type Document struct {
	mu        sync.Mutex
	doc       *crdt.Doc
	now       func() time.Time
	logger    *slog.Logger
	crdtOpts  []crdt.DocOption
	listeners []func(blob []byte, local bool)
}

// Option configures a Document.
type Option func(*Document)

// WithClock sets the wall clock used for meta timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Document) {
		d.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		d.logger = l
	}
}

// WithCRDTOptions passes options to the underlying replica, e.g. to swap
// the merge algorithm.
func WithCRDTOptions(opts ...crdt.DocOption) Option {
	return func(d *Document) {
		d.crdtOpts = append(d.crdtOpts, opts...)
	}
}

// Open creates a replica holding only the shared genesis: the four pinned
// datums, default meta and a null gate. Used before replaying stored or
// received updates.
func Open(replica crdt.ReplicaID, opts ...Option) (*Document, error) {
	d := &Document{
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}

	crdtOpts := append([]crdt.DocOption{crdt.WithLogger(d.logger)}, d.crdtOpts...)
	doc, err := crdt.NewDoc(replica, crdtOpts...)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	d.doc = doc

	blob, err := Genesis()
	if err != nil {
		return nil, err
	}
	if err := d.doc.ApplyUpdate(blob); err != nil {
		return nil, fmt.Errorf("open document: genesis: %w", err)
	}
	return d, nil
}

// New creates a fresh document named name.
func New(replica crdt.ReplicaID, name string, opts ...Option) (*Document, error) {
	d, err := Open(replica, opts...)
	if err != nil {
		return nil, err
	}
	_, err = d.Update(func(tx *Tx) error {
		tx.SetMeta(MetaName, ir.String(name))
		tx.SetMeta(MetaCreatedAt, ir.String(d.timestamp()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	return d, nil
}

var genesis = sync.OnceValues(buildGenesis)

// Genesis returns the update every document starts from. It is identical
// on every replica, which is what lets independently created documents
// merge.
func Genesis() ([]byte, error) {
	return genesis()
}

func buildGenesis() ([]byte, error) {
	doc, err := crdt.NewDoc(genesisReplica)
	if err != nil {
		return nil, err
	}
	b := doc.Batch()
	b.Set(mapMeta, MetaSchemaVersion, ir.Int(ir.SchemaVersion))
	b.Set(mapMeta, MetaUnits, ir.String(Units[0]))
	b.Set(mapMeta, MetaName, ir.String("Untitled"))
	b.Set(mapState, keyGate, ir.Null{})

	datums := []Feature{
		&Origin{Common: Common{ID: OriginID, Name: "Origin"}},
		&Plane{Common: Common{ID: XYPlaneID, Name: "XY Plane"}, Role: RoleXY},
		&Plane{Common: Common{ID: XZPlaneID, Name: "XZ Plane"}, Role: RoleXZ},
		&Plane{Common: Common{ID: YZPlaneID, Name: "YZ Plane"}, Role: RoleYZ},
	}
	var prev crdt.OpID
	for _, f := range datums {
		writeFeature(b, f)
		prev = b.Insert(seqOrder, prev, string(f.Base().ID))
	}

	blob, err := b.Commit()
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return blob, nil
}

// RecordSlots flattens a record into its replicated slots. Sketch groups
// become "<group>.<id>" slots; "id" is implied by the container.
func RecordSlots(rec ir.Object) map[string]ir.Value {
	out := make(map[string]ir.Value, len(rec))
	for k, v := range rec {
		if k == "id" {
			continue
		}
		if isSketchGroup(k) {
			if obj, ok := v.(ir.Object); ok {
				for id, elem := range obj {
					out[k+"."+id] = elem
				}
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isSketchGroup(key string) bool {
	switch key {
	case GroupPoints, GroupEntities, GroupConstraints, GroupCounters:
		return true
	}
	return false
}

func writeFeature(b *crdt.Batch, f Feature) {
	id := f.Base().ID
	b.Set(mapFeatures, string(id), ir.Bool(true))
	slots := RecordSlots(EncodeFeature(f))
	for _, k := range ir.Object(slots).SortedKeys() {
		b.Set(fieldMap(id), k, slots[k])
	}
}

// Replica returns the replica id.
func (d *Document) Replica() crdt.ReplicaID {
	return d.doc.Replica()
}

// OnUpdate registers fn to receive every committed local update and every
// applied remote update.
func (d *Document) OnUpdate(fn func(blob []byte, local bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Document) notify(blob []byte, local bool) {
	d.mu.Lock()
	listeners := append([]func([]byte, bool){}, d.listeners...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(blob, local)
	}
}

func (d *Document) timestamp() string {
	return d.now().UTC().Format(time.RFC3339)
}

// Update runs fn against a new transaction. If fn returns an error nothing
// is written. Otherwise all staged writes, plus a modifiedAt stamp, commit
// as one update whose blob is returned.
func (d *Document) Update(fn func(tx *Tx) error) ([]byte, error) {
	d.mu.Lock()
	tx := &Tx{
		batch:   d.doc.Batch(),
		snap:    d.snapshotLocked(),
		created: make(map[FeatureID]crdt.OpID),
	}
	if err := fn(tx); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if tx.batch.Len() == 0 {
		d.mu.Unlock()
		return nil, nil
	}
	tx.SetMeta(MetaModifiedAt, ir.String(d.timestamp()))
	blob, err := tx.batch.Commit()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	d.logger.Debug("update committed", "replica", d.Replica(), "ops", tx.ops, "bytes", len(blob))
	d.notify(blob, true)
	return blob, nil
}

// ApplyUpdate merges an update blob from another replica.
func (d *Document) ApplyUpdate(blob []byte) error {
	d.mu.Lock()
	err := d.doc.ApplyUpdate(blob)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	d.notify(blob, false)
	return nil
}

// EncodeState returns an update that reproduces this replica.
func (d *Document) EncodeState() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.EncodeState()
}

// EncodeDiff returns the update a replica at sv is missing.
func (d *Document) EncodeDiff(sv crdt.StateVector) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.EncodeDiff(sv)
}

// StateVector returns the replica's state vector.
func (d *Document) StateVector() crdt.StateVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.StateVector()
}

// Pending returns the number of buffered remote ops.
func (d *Document) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Pending()
}

// Snapshot materializes the current state.
func (d *Document) Snapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Tx stages the writes of one command.
type Tx struct {
	batch   *crdt.Batch
	snap    *Snapshot
	created map[FeatureID]crdt.OpID
	ops     int
}

// Snapshot returns the state the transaction started from.
func (tx *Tx) Snapshot() *Snapshot {
	return tx.snap
}

func (tx *Tx) anchor(after FeatureID) (crdt.OpID, error) {
	if after == "" {
		pinned := PinnedIDs()
		after = pinned[len(pinned)-1]
	}
	if id, ok := tx.created[after]; ok {
		return id, nil
	}
	if id, ok := tx.snap.anchors[after]; ok {
		return id, nil
	}
	return crdt.OpID{}, fmt.Errorf("feature %s is not in the order", after)
}

// Create writes a new feature record and inserts it after the given
// feature ("" means after the pinned datums).
func (tx *Tx) Create(f Feature, after FeatureID) error {
	origin, err := tx.anchor(after)
	if err != nil {
		return err
	}
	writeFeature(tx.batch, f)
	id := f.Base().ID
	tx.created[id] = tx.batch.Insert(seqOrder, origin, string(id))
	tx.ops++
	return nil
}

// Delete removes a feature from features and every occurrence from order.
// Field slots are left behind; without the existence key they are ignored.
func (tx *Tx) Delete(id FeatureID) {
	tx.batch.Delete(mapFeatures, string(id))
	for _, occ := range tx.snap.occurrences[id] {
		tx.batch.Remove(seqOrder, occ)
	}
	tx.ops++
}

// Move re-inserts id after the given feature ("" means after the pinned
// datums). Reorder is a remove plus an insert of the same id.
func (tx *Tx) Move(id, after FeatureID) error {
	origin, err := tx.anchor(after)
	if err != nil {
		return err
	}
	for _, occ := range tx.snap.occurrences[id] {
		tx.batch.Remove(seqOrder, occ)
	}
	tx.created[id] = tx.batch.Insert(seqOrder, origin, string(id))
	tx.ops++
	return nil
}

// SetField writes one field slot of a feature record.
func (tx *Tx) SetField(id FeatureID, key string, v ir.Value) {
	tx.batch.Set(fieldMap(id), key, v)
	tx.ops++
}

// DeleteField clears one field slot of a feature record.
func (tx *Tx) DeleteField(id FeatureID, key string) {
	tx.batch.Delete(fieldMap(id), key)
	tx.ops++
}

// SetGate writes state.rebuildGate; "" writes null.
func (tx *Tx) SetGate(id FeatureID) {
	var v ir.Value = ir.Null{}
	if id != "" {
		v = ir.String(id)
	}
	tx.batch.Set(mapState, keyGate, v)
	tx.ops++
}

// SetMeta writes one meta field.
func (tx *Tx) SetMeta(key string, v ir.Value) {
	tx.batch.Set(mapMeta, key, v)
	tx.ops++
}

// SetVariable writes a document variable.
func (tx *Tx) SetVariable(name string, v ir.Value) {
	tx.batch.Set(mapVariables, name, v)
	tx.ops++
}

// DeleteVariable removes a document variable.
func (tx *Tx) DeleteVariable(name string) {
	tx.batch.Delete(mapVariables, name)
	tx.ops++
}

func (d *Document) snapshotLocked() *Snapshot {
	s := &Snapshot{
		Records:     make(map[FeatureID]ir.Object),
		Variables:   make(map[string]ir.Value),
		anchors:     make(map[FeatureID]crdt.OpID),
		occurrences: make(map[FeatureID][]crdt.OpID),
	}

	meta := d.doc.Map(mapMeta)
	s.Meta.Name = metaString(meta, MetaName)
	s.Meta.CreatedAt = metaString(meta, MetaCreatedAt)
	s.Meta.ModifiedAt = metaString(meta, MetaModifiedAt)
	s.Meta.Units = metaString(meta, MetaUnits)
	if v, ok := meta.Get(MetaSchemaVersion); ok {
		if n, ok := v.(ir.Int); ok {
			s.Meta.SchemaVersion = int(n)
		}
	}

	vars := d.doc.Map(mapVariables)
	for _, k := range vars.Keys() {
		v, _ := vars.Get(k)
		s.Variables[k] = v
	}

	features := d.doc.Map(mapFeatures)
	for _, k := range features.Keys() {
		id := FeatureID(k)
		rec := ir.Object{"id": ir.String(k)}
		fields := d.doc.Map(fieldMap(id))
		for _, key := range fields.Keys() {
			v, _ := fields.Get(key)
			group, elem, nested := strings.Cut(key, ".")
			if nested && isSketchGroup(group) {
				g, ok := rec[group].(ir.Object)
				if !ok {
					g = ir.Object{}
					rec[group] = g
				}
				g[elem] = v
				continue
			}
			rec[key] = v
		}
		s.Records[id] = rec
	}

	s.materializeOrder(d.doc.Sequence(seqOrder).Elements())

	if v, ok := d.doc.Map(mapState).Get(keyGate); ok {
		if gate, ok := ir.AsString(v); ok && gate != "" {
			s.Gate = FeatureID(gate)
			if s.Index(s.Gate) < 0 {
				s.addAnomaly(AnomalyDanglingGate, s.Gate, "rebuild gate is not in the order; treated as null")
				s.Gate = ""
			}
		}
	}
	return s
}

func metaString(m crdt.Map, key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := ir.AsString(v)
	return s
}
