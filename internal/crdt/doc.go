// Package crdt implements the replicated state underneath a parcad document.
//
// A Doc holds named last-writer-wins maps and named RGA sequences. Every
// mutation is an Op identified by a Lamport OpID; a Batch of ops committed
// together forms one Update, which is the unit of replication.
//
// ARCHITECTURE:
//
// Merge properties:
// - Commutative: updates may be applied in any order
// - Associative: batching updates together changes nothing
// - Idempotent: re-applying an update is a no-op
//
// Update Flow:
// 1. Batch stages ops (Set/Delete/Insert/Remove), stamping Lamport counters
// 2. Commit assigns per-replica seq numbers and encodes canonical JSON
// 3. The blob is applied locally through ApplyUpdate
// 4. The same blob is shipped to other replicas, which call ApplyUpdate
//
// CRITICAL PATTERNS:
//
// Total order on writes:
// OpIDs compare by (counter, replica). LWW slots keep the greatest OpID;
// RGA siblings sort by descending OpID. No wall-clock time is involved.
//
// Causal buffering:
// Inserts wait for their origin element, removes wait for their target.
// Everything else applies immediately.
//
// The merge algorithms sit behind the Map and Sequence interfaces so that
// a different CRDT can be swapped in through DocOptions.
package crdt
