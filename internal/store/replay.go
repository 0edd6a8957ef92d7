package store

import (
	"context"
	"fmt"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/document"
)

// SaveDocument registers a new document and stores its full state as the
// first update.
func (s *Store) SaveDocument(ctx context.Context, id string, doc *document.Document) error {
	snap := doc.Snapshot()
	if err := s.CreateDocument(ctx, DocumentRecord{ID: id, Name: snap.Meta.Name, CreatedAt: snap.Meta.CreatedAt}); err != nil {
		return err
	}
	blob, err := doc.EncodeState()
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	if _, _, err := s.AppendUpdate(ctx, id, doc.Replica(), blob); err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

// LoadDocument opens a replica and replays a document's log into it.
// Returns ErrDocumentNotFound for an unknown id.
func (s *Store) LoadDocument(ctx context.Context, id string, replica crdt.ReplicaID, opts ...document.Option) (*document.Document, error) {
	if _, err := s.ReadDocument(ctx, id); err != nil {
		return nil, err
	}
	updates, err := s.ReadUpdates(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}

	doc, err := document.Open(replica, opts...)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := doc.ApplyUpdate(u.Payload); err != nil {
			return nil, fmt.Errorf("load document %s: update %d (%s): %w", id, u.Seq, u.ID, err)
		}
	}
	if n := doc.Pending(); n > 0 {
		s.logger.Warn("document loaded with buffered ops", "document", id, "pending", n)
	}
	s.logger.Debug("document loaded", "document", id, "updates", len(updates))
	return doc, nil
}

// Attach persists every later update of doc, local or remote, to the
// document's log. Failures are logged; the in-memory document stays
// authoritative and the next SaveDocument or Compact catches up.
func (s *Store) Attach(id string, doc *document.Document) {
	doc.OnUpdate(func(blob []byte, local bool) {
		replica := doc.Replica()
		if !local {
			replica = ""
		}
		if _, _, err := s.AppendUpdate(context.Background(), id, replica, blob); err != nil {
			s.logger.Error("persist update failed", "document", id, "local", local, "error", err)
		}
	})
}

// Compact replaces a document's log with the document's current state.
func (s *Store) Compact(ctx context.Context, id string, doc *document.Document) error {
	blob, err := doc.EncodeState()
	if err != nil {
		return fmt.Errorf("compact %s: %w", id, err)
	}
	if _, err := s.ReplaceLog(ctx, id, doc.Replica(), blob); err != nil {
		return fmt.Errorf("compact %s: %w", id, err)
	}
	return nil
}
