// Package rebuild evaluates a document snapshot into geometry.
//
// The Orchestrator walks the feature order, resolves each feature's inputs
// through the naming package and hands them to a Kernel. Every feature ends a
// pass in exactly one Status: computed, error, suppressed or gated. A failing
// feature is recorded as a BuildError and the pass moves on; downstream
// features that consume its output fail their own resolution.
//
// INVARIANTS:
//   - Rebuild never writes to the document and never panics
//   - two passes over the same snapshot with the same kernel version produce
//     equal Results
//   - only the latest Worker request is delivered
package rebuild
