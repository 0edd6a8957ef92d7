package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/parcad/internal/store"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	From string // database holding the source document
}

// MergeResult is the output of the merge command.
type MergeResult struct {
	Document string `json:"document"`
	Source   string `json:"source"`
	Applied  int    `json:"applied"`
	Before   string `json:"before"`
	After    string `json:"after"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <document> <source>",
		Short: "Merge another document's edits into a document",
		Long: `Apply every stored update of the source document to the target.

Any two documents share the datum genesis, so any two can be merged; the
result is the same whichever side merges first. The source may live in
another database (--from).

Examples:
  parcad merge $DOC $OTHER
  parcad merge $DOC $DOC --from laptop.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mergeDocuments(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "database holding the source (default: --db)")

	return cmd
}

func mergeDocuments(opts *MergeOptions, docID, sourceID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, err := opts.openSession(ctx, docID)
	if err != nil {
		return err
	}
	defer s.Close()

	src := s.store
	if opts.From != "" {
		src, err = store.Open(opts.From, store.WithLogger(opts.Logger))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.From), err)
		}
		defer src.Close()
	}
	if _, err := src.ReadDocument(ctx, sourceID); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("source document %s not found", sourceID), err)
	}
	updates, err := src.ReadUpdates(ctx, sourceID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read source updates", err)
	}

	before, err := s.doc.Snapshot().Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash document", err)
	}
	for _, u := range updates {
		if err := s.doc.ApplyUpdate(u.Payload); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to apply update %s", u.ID), err)
		}
	}
	after, err := s.doc.Snapshot().Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash document", err)
	}
	if n := s.doc.Pending(); n > 0 {
		opts.Logger.Warn("merge left buffered ops", "document", docID, "pending", n)
	}

	result := MergeResult{Document: docID, Source: sourceID, Applied: len(updates), Before: before, After: after}
	return newFormatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
		if before == after {
			fmt.Fprintf(w, "Already up to date (%d update(s) checked)\n", len(updates))
			return
		}
		fmt.Fprintf(w, "Merged %s into %s (%d update(s))\n", sourceID, docID, len(updates))
	})
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact <document>",
		Short: "Replace a document's update log with one state update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			before, err := s.store.ReadUpdates(ctx, s.id)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read updates", err)
			}
			if err := s.store.Compact(ctx, s.id, s.doc); err != nil {
				return WrapExitError(ExitCommandError, "failed to compact", err)
			}
			data := map[string]any{"document": s.id, "updates": len(before)}
			return newFormatter(rootOpts, cmd).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "Compacted %s (%d update(s) -> 1)\n", s.id, len(before))
			})
		},
	}
}
