package command

import (
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/parcad/internal/document"
)

// Layer is the single mutation path into a document. The UI and the tool
// executor call the same methods with the same arguments, so both actors
// produce identical document state.
//
// Every command validates against a snapshot taken inside the document
// transaction and then stages all of its writes in that transaction: it
// either fully applies or writes nothing.
type Layer struct {
	doc    *document.Document
	ids    document.IDGenerator
	logger *slog.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithIDGenerator sets the feature id source. Tests use a deterministic
// generator; production uses random UUIDv4 ids.
func WithIDGenerator(g document.IDGenerator) Option {
	return func(l *Layer) {
		if g != nil {
			l.ids = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Layer) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a command layer over doc.
func New(doc *document.Document, opts ...Option) *Layer {
	l := &Layer{
		doc:    doc,
		ids:    document.UUIDGenerator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Document returns the underlying document.
func (l *Layer) Document() *document.Document {
	return l.doc
}

// Logger returns the layer's logger.
func (l *Layer) Logger() *slog.Logger {
	return l.logger
}

// update runs fn in a document transaction and logs the outcome.
func (l *Layer) update(op string, fn func(tx *document.Tx) error) error {
	_, err := l.doc.Update(fn)
	if err != nil {
		l.logger.Debug("command rejected", "op", op, "error", err)
		return err
	}
	l.logger.Debug("command applied", "op", op)
	return nil
}

// cleanName normalizes a user-supplied name: NFC, trimmed, non-empty.
func cleanName(field, name string) (string, error) {
	s := strings.TrimSpace(norm.NFC.String(name))
	if s == "" {
		return "", invalid(field, "must not be empty")
	}
	return s, nil
}

// existing returns the decoded feature id, or NotFoundError.
func existing(snap *document.Snapshot, id document.FeatureID) (document.Feature, error) {
	if !snap.Has(id) {
		return nil, featureNotFound(id)
	}
	f, err := snap.Feature(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: err.Error(), Err: err}
	}
	return f, nil
}

// mutable is existing plus the pinned-datum check.
func mutable(snap *document.Snapshot, id document.FeatureID, op string) (document.Feature, error) {
	if document.IsPinned(id) {
		return nil, &ProtectedFeatureError{ID: id, Operation: op}
	}
	return existing(snap, id)
}
