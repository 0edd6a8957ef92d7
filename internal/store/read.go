package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/parcad/internal/crdt"
)

// ErrDocumentNotFound is returned when a document id is not registered.
var ErrDocumentNotFound = errors.New("document not found")

// ReadDocument returns a registered document.
// Returns ErrDocumentNotFound if the id is unknown.
func (s *Store) ReadDocument(ctx context.Context, id string) (DocumentRecord, error) {
	var doc DocumentRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Name, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, fmt.Errorf("read document %s: %w", id, ErrDocumentNotFound)
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("read document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns every registered document ordered by id.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM documents ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentRecord{}
	for rows.Next() {
		var doc DocumentRecord
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// ReadUpdates returns a document's log in replay order.
// Returns an empty slice (not nil) if the log is empty.
func (s *Store) ReadUpdates(ctx context.Context, docID string) ([]Update, error) {
	return s.readUpdates(ctx, docID, 0)
}

// ReadUpdatesAfter returns the updates with seq greater than after.
func (s *Store) ReadUpdatesAfter(ctx context.Context, docID string, after int64) ([]Update, error) {
	return s.readUpdates(ctx, docID, after)
}

func (s *Store) readUpdates(ctx context.Context, docID string, after int64) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, seq, replica, payload
		FROM updates
		WHERE doc_id = ? AND seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, docID, after)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	updates := []Update{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

// LatestSeq returns the highest seq in a document's log, or 0.
func (s *Store) LatestSeq(ctx context.Context, docID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM updates WHERE doc_id = ?
	`, docID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq, nil
}

func scanUpdate(rows *sql.Rows) (Update, error) {
	var (
		u       Update
		replica string
	)
	if err := rows.Scan(&u.ID, &u.DocID, &u.Seq, &replica, &u.Payload); err != nil {
		return Update{}, fmt.Errorf("scan update: %w", err)
	}
	u.Replica = crdt.ReplicaID(replica)
	return u, nil
}
