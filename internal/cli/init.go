package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	ID string
}

// InitResult is the output of the init command.
type InitResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Units string `json:"units"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new document",
		Long: `Create a new document holding only the datum features.

The document gets a random id unless --id is given. Units come from the
config file.

Examples:
  parcad init bracket
  parcad init bracket --id 3f0c... --db parts.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return initDocument(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "document id (default: random)")

	return cmd
}

func initDocument(ctx context.Context, opts *InitOptions, name string, cmd *cobra.Command) error {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	doc, err := document.New(opts.Config.ReplicaID(), name, document.WithLogger(opts.Logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create document", err)
	}
	if opts.Config.Units != doc.Snapshot().Meta.Units {
		if err := command.New(doc, command.WithLogger(opts.Logger)).SetUnits(opts.Config.Units); err != nil {
			return WrapExitError(ExitCommandError, "failed to set units", err)
		}
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.ReadDocument(ctx, id); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("document %s already exists", id))
	}
	if err := st.SaveDocument(ctx, id, doc); err != nil {
		return WrapExitError(ExitCommandError, "failed to save document", err)
	}
	opts.Logger.Debug("document created", "document", id, "replica", doc.Replica())

	snap := doc.Snapshot()
	result := InitResult{ID: id, Name: snap.Meta.Name, Units: snap.Meta.Units}
	return newFormatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Created document %s (%s, %s)\n", result.ID, result.Name, result.Units)
	})
}

// ListResult is the output of the list command.
type ListResult struct {
	Documents []store.DocumentRecord `json:"documents"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			docs, err := st.ListDocuments(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list documents", err)
			}
			return newFormatter(rootOpts, cmd).Success(ListResult{Documents: docs}, func(w io.Writer) {
				if len(docs) == 0 {
					fmt.Fprintln(w, "No documents.")
					return
				}
				for _, d := range docs {
					fmt.Fprintf(w, "%s  %s  %s\n", d.ID, d.CreatedAt, d.Name)
				}
			})
		},
	}
}
