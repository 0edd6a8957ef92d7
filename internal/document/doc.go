// Package document implements the parcad feature-graph document.
//
// A document is { meta, state, features, order } stored in a crdt.Doc:
//
//	meta       LWW map: name, timestamps, schema version, units
//	state      LWW map: rebuildGate (a FeatureID or null)
//	variables  LWW map: name -> number or "=expr"
//	features   LWW map: FeatureID -> true (existence; delete tombstones it)
//	f:<id>     LWW map per feature: one slot per record field
//	order      RGA sequence of FeatureIDs
//
// Feature records are a closed union (Origin, Plane, Axis, Sketch, Extrude,
// Revolve, Boolean) dispatched through Visitor. Sketch elements are stored as
// individual slots ("points.pt1", "entities.ln2", "constraints.cn1").
//
// INVARIANTS:
//   - order starts with origin, xy, xz, yz; the Command Layer never
//     deletes or moves them
//   - Snapshot materializes a bijection between order and features
//   - Snapshot.Gate is empty or a member of Snapshot.Order
//
// Every document starts from the same Genesis update, so documents created
// independently on different replicas can still be merged.
package document
