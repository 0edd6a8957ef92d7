// Package command is the only mutation path into a parcad document.
//
// Every UI interaction and every AI tool call ends in a Layer method. A
// command validates its arguments against a snapshot read inside the
// document transaction, then stages all of its writes in that transaction,
// so it either applies completely or leaves the document untouched.
//
// Thread-safety model:
//   - a Layer may be shared; Document.Update serializes commands
//   - id generation happens before the transaction and is goroutine-safe
//
// INVARIANTS:
//   - the four pinned datums are never deleted, renamed, suppressed,
//     modified or moved
//   - a created feature lands at index(gate)+1 (or right after the pinned
//     prefix) and becomes the new gate
//   - commands never leave an undecodable record behind
//
// CRITICAL PATTERNS:
//
// Errors are typed (ValidationError, NotFoundError, ProtectedFeatureError)
// and mapped to an ErrorCode by Code. Callers at the tool boundary use Run
// to turn (value, error) pairs and panics into a Result.
package command
