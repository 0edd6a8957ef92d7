// Package harness runs scripted parcad scenarios for conformance testing.
//
// A scenario drives one or more replicas through tool calls, exchanges
// their state, rebuilds, and asserts on the outcome. The same tool
// executor used by AI agents runs every step, so scenarios exercise the
// real command layer, document and rebuild code.
//
// # Scenario Format
//
//	name: box_then_delete_datum
//	description: "Datums cannot be deleted"
//	replicas: [a, b]                 # optional, default [a]
//	steps:
//	  - tool: createSketch
//	    replica: a                   # optional, default first replica
//	    args: { plane: $xy }
//	    as: s1                       # bind the returned id
//	  - tool: deleteFeature
//	    args: { id: $xy }
//	    expect: { ok: false, code: PROTECTED }
//	  - sync: [a, b]                 # exchange full state
//	  - rebuild: { replica: a, mode: full, as: r1 }
//	assertions:
//	  - type: order
//	    expect: [$origin, $xy, $xz, $yz, $s1]
//	  - type: gate
//	    expect: $s1
//	  - type: status
//	    rebuild: r1
//	    feature: $s1
//	    expect: computed
//	  - type: invariants
//	  - type: converged
//	  - type: check
//	    expr: "doc.order.size() == 5"
//
// Strings of the form $name are replaced by bound values. The pinned
// datums are pre-bound as $origin, $xy, $xz and $yz.
//
// # Assertion Types
//
//   - order: a replica's materialized order
//   - gate: a replica's rebuild gate (empty or omitted expect means null)
//   - status: a feature's status in a named rebuild
//   - invariants: ValidateDocument reports no errors
//   - converged: every replica has the same snapshot hash
//   - check: a CEL expression over doc, rebuild, bindings and last
//
// # Deterministic Testing
//
// Each replica gets a deterministic clock and a sequence id generator
// whose prefix is the replica's index, so runs are reproducible and golden
// snapshots are stable. Golden snapshots replace bound ids with $name.
package harness
