package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/kernel/prismatic"
	"github.com/roach88/parcad/internal/rebuild"
	"github.com/roach88/parcad/internal/store"
	"github.com/roach88/parcad/internal/tools"
)

// openStore opens the configured database.
func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Config.Database, store.WithLogger(o.Logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", o.Config.Database), err)
	}
	return st, nil
}

// session is one loaded document with its store attached, so every edit
// made through it is persisted.
type session struct {
	id    string
	store *store.Store
	doc   *document.Document
	opts  *RootOptions
}

// openSession opens the database and loads document id.
func (o *RootOptions) openSession(ctx context.Context, id string) (*session, error) {
	st, err := o.openStore()
	if err != nil {
		return nil, err
	}
	doc, err := st.LoadDocument(ctx, id, o.Config.ReplicaID(), document.WithLogger(o.Logger))
	if err != nil {
		st.Close()
		if errors.Is(err, store.ErrDocumentNotFound) {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("document %s not found", id), err)
		}
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load document %s", id), err)
	}
	st.Attach(id, doc)
	return &session{id: id, store: st, doc: doc, opts: o}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// executor returns a tool executor over the session's document.
func (s *session) executor() *tools.Executor {
	layer := command.New(s.doc, command.WithLogger(s.opts.Logger))
	return tools.New(layer, tools.WithLogger(s.opts.Logger))
}

// orchestrator builds a rebuild orchestrator from the configuration.
func (o *RootOptions) orchestrator() *rebuild.Orchestrator {
	return rebuild.NewOrchestrator(prismatic.New(),
		rebuild.WithTolerance(o.Config.Tolerance),
		rebuild.WithLogger(o.Logger),
	)
}
