// Package store provides SQLite-backed durable storage for parcad documents.
//
// A document is stored as an append-only log of CRDT update blobs. Loading
// a document opens a fresh replica and applies the log in order; because
// updates commute, any replica that has seen the same set of updates
// reaches the same state.
//
// # Critical Patterns
//
// Content-addressed updates:
//   - An update's id is ir.UpdateID(payload), a domain-separated SHA-256
//   - INSERT ... ON CONFLICT DO NOTHING makes appends idempotent, so a
//     blob received twice (from two peers, or replayed) is stored once
//
// Logical ordering:
//   - seq is a per-document counter assigned at append time, never a
//     timestamp
//   - All reads use ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
