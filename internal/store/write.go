package store

import (
	"context"
	"fmt"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/ir"
)

// DocumentRecord is one row of the documents table.
type DocumentRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// Update is one stored update blob.
type Update struct {
	ID      string
	DocID   string
	Seq     int64
	Replica crdt.ReplicaID
	Payload []byte
}

// CreateDocument registers a document. Uses ON CONFLICT(id) DO NOTHING:
// registering the same id twice keeps the first row.
func (s *Store) CreateDocument(ctx context.Context, doc DocumentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.ID, doc.Name, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// AppendUpdate stores payload at the end of a document's log and returns
// its id and whether a new row was inserted. A payload already in the log
// keeps its original seq.
//
// Note: The document must exist (foreign key constraint).
func (s *Store) AppendUpdate(ctx context.Context, docID string, replica crdt.ReplicaID, payload []byte) (id string, inserted bool, err error) {
	if len(payload) == 0 {
		return "", false, fmt.Errorf("append update: empty payload")
	}
	id = ir.UpdateID(payload)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("append update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM updates WHERE doc_id = ?
	`, docID).Scan(&seq); err != nil {
		return "", false, fmt.Errorf("append update: next seq: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO updates (doc_id, id, seq, replica, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, id) DO NOTHING
	`, docID, id, seq, string(replica), payload)
	if err != nil {
		return "", false, fmt.Errorf("append update: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("append update: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("append update: commit: %w", err)
	}
	return id, rowsAffected > 0, nil
}

// ReplaceLog atomically replaces a document's log with a single update.
// Used to compact a long log into one state blob.
func (s *Store) ReplaceLog(ctx context.Context, docID string, replica crdt.ReplicaID, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("replace log: empty payload")
	}
	id := ir.UpdateID(payload)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("replace log: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM updates WHERE doc_id = ?`, docID); err != nil {
		return "", fmt.Errorf("replace log: delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO updates (doc_id, id, seq, replica, payload)
		VALUES (?, ?, 1, ?, ?)
	`, docID, id, string(replica), payload); err != nil {
		return "", fmt.Errorf("replace log: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("replace log: commit: %w", err)
	}
	return id, nil
}
