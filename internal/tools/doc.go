// Package tools exposes the command layer as JSON tool calls for AI agents.
//
// Every tool decodes its arguments and calls exactly the command layer
// method the UI calls, so a tool call and the equivalent UI action leave
// identical document state.
//
// Thread-safety model:
//   - Executor is safe for concurrent use; serialization happens inside the
//     document transaction.
//
// INVARIANTS:
//   - Execute never panics and never returns a Go error: every failure is
//     a Result with ok=false and an error code.
//   - Unknown argument fields are rejected before the command runs.
package tools
