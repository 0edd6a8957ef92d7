package document

import (
	"slices"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/ir"
)

// Meta is the document metadata. It never drives invariants.
type Meta struct {
	Name          string
	CreatedAt     string
	ModifiedAt    string
	SchemaVersion int
	Units         string
}

// Anomaly kinds recorded while materializing a snapshot. They describe how
// a merged state was normalized; none of them is an error by itself.
const (
	AnomalyDuplicateEntry = "duplicate-order-entry"
	AnomalyMissingRecord  = "missing-record"
	AnomalyOrphanRecord   = "orphan-record"
	AnomalyDanglingGate   = "dangling-gate"
)

// Anomaly describes one normalization step.
type Anomaly struct {
	Kind    string
	Feature FeatureID
	Detail  string
}

// Snapshot is an immutable, materialized view of a document.
//
// Materialization is deterministic: two replicas holding the same ops
// produce identical snapshots.
//   - order keeps one occurrence per feature (the one inserted last)
//   - order entries without a record are dropped
//   - records without an order entry are appended in id order
//   - a gate outside the order reads as null
type Snapshot struct {
	Meta      Meta
	Gate      FeatureID // "" means null
	Order     []FeatureID
	Records   map[FeatureID]ir.Object
	Variables map[string]ir.Value
	Anomalies []Anomaly

	anchors     map[FeatureID]crdt.OpID
	occurrences map[FeatureID][]crdt.OpID
}

func (s *Snapshot) addAnomaly(kind string, id FeatureID, detail string) {
	s.Anomalies = append(s.Anomalies, Anomaly{Kind: kind, Feature: id, Detail: detail})
}

func (s *Snapshot) materializeOrder(elems []crdt.Element) {
	for _, e := range elems {
		id := FeatureID(e.Value)
		s.occurrences[id] = append(s.occurrences[id], e.ID)
		if cur, ok := s.anchors[id]; !ok || cur.Less(e.ID) {
			s.anchors[id] = e.ID
		}
	}

	placed := make(map[FeatureID]bool)
	for _, e := range elems {
		id := FeatureID(e.Value)
		if _, ok := s.Records[id]; !ok {
			if !placed[id] {
				s.addAnomaly(AnomalyMissingRecord, id, "order entry without a feature record dropped")
				placed[id] = true
			}
			continue
		}
		if s.anchors[id] != e.ID {
			s.addAnomaly(AnomalyDuplicateEntry, id, "earlier order entry dropped")
			continue
		}
		s.Order = append(s.Order, id)
		placed[id] = true
	}

	var orphans []FeatureID
	for id := range s.Records {
		if !placed[id] {
			orphans = append(orphans, id)
		}
	}
	slices.Sort(orphans)
	for _, id := range orphans {
		s.addAnomaly(AnomalyOrphanRecord, id, "feature record without order entry appended")
		s.Order = append(s.Order, id)
	}
	for id := range s.anchors {
		if _, ok := s.Records[id]; !ok {
			delete(s.anchors, id)
		}
	}
}

// Has reports whether id is a feature of the document.
func (s *Snapshot) Has(id FeatureID) bool {
	_, ok := s.Records[id]
	return ok
}

// Index returns the position of id in Order, or -1.
func (s *Snapshot) Index(id FeatureID) int {
	return slices.Index(s.Order, id)
}

// Feature decodes the record of id.
func (s *Snapshot) Feature(id FeatureID) (Feature, error) {
	rec, ok := s.Records[id]
	if !ok {
		return nil, &DecodeError{ID: id, Reason: "no such feature"}
	}
	return DecodeFeature(rec)
}

// Kind returns the record's type without decoding the whole record.
func (s *Snapshot) Kind(id FeatureID) (Kind, bool) {
	rec, ok := s.Records[id]
	if !ok {
		return "", false
	}
	k, ok := ir.AsString(rec["type"])
	return Kind(k), ok
}

// PinnedPrefixLen scans the order from the start while features are the
// origin or pinned datum planes.
func (s *Snapshot) PinnedPrefixLen() int {
	n := 0
	for _, id := range s.Order {
		f, err := s.Feature(id)
		if err != nil || !IsDatum(f) {
			break
		}
		n++
	}
	return n
}

// Tree returns the plain JSON-like form of the document.
func (s *Snapshot) Tree() map[string]any {
	return ir.ToAny(s.TreeValue()).(map[string]any)
}

// TreeValue returns the document as an ir.Object.
func (s *Snapshot) TreeValue() ir.Object {
	features := make(ir.Object, len(s.Records))
	for id, rec := range s.Records {
		features[string(id)] = rec
	}
	vars := make(ir.Object, len(s.Variables))
	for k, v := range s.Variables {
		vars[k] = v
	}
	order := make(ir.Array, len(s.Order))
	for i, id := range s.Order {
		order[i] = ir.String(id)
	}
	var gate ir.Value = ir.Null{}
	if s.Gate != "" {
		gate = ir.String(s.Gate)
	}

	meta := ir.Object{
		MetaName:          ir.String(s.Meta.Name),
		MetaSchemaVersion: ir.Int(int64(s.Meta.SchemaVersion)),
		MetaUnits:         ir.String(s.Meta.Units),
	}
	if s.Meta.CreatedAt != "" {
		meta[MetaCreatedAt] = ir.String(s.Meta.CreatedAt)
	}
	if s.Meta.ModifiedAt != "" {
		meta[MetaModifiedAt] = ir.String(s.Meta.ModifiedAt)
	}

	return ir.Object{
		"meta":      meta,
		"state":     ir.Object{keyGate: gate},
		"variables": vars,
		"features":  features,
		"order":     order,
	}
}

// Hash fingerprints the snapshot, ignoring meta timestamps.
func (s *Snapshot) Hash() (string, error) {
	tree := s.Tree()
	if meta, ok := tree["meta"].(map[string]any); ok {
		delete(meta, MetaCreatedAt)
		delete(meta, MetaModifiedAt)
	}
	return ir.SnapshotHash(tree)
}
