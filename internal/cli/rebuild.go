package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/parcad/internal/rebuild"
)

// RebuildOptions holds flags for the rebuild command.
type RebuildOptions struct {
	*RootOptions
	Mode string
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebuild <document>",
		Short: "Rebuild a document's geometry",
		Long: `Evaluate a document's features in order with the built-in kernel.

Gated mode stops at the rebuild gate; full mode evaluates every feature.
The default mode comes from the config file.

Exit codes:
  0 - Every evaluated feature computed
  1 - One or more features failed
  2 - Command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "rebuild mode (gated|full)")

	return cmd
}

func runRebuild(opts *RebuildOptions, docID string, cmd *cobra.Command) error {
	mode := opts.Config.RebuildMode
	if opts.Mode != "" {
		m, ok := rebuild.ParseMode(opts.Mode)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q: must be gated or full", opts.Mode))
		}
		mode = m
	}

	s, err := opts.openSession(cmd.Context(), docID)
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.doc.Snapshot()
	res := opts.orchestrator().Rebuild(cmd.Context(), snap, mode)

	out := newFormatter(opts.RootOptions, cmd)
	if err := out.Success(res.Summary(), func(w io.Writer) {
		fmt.Fprintf(w, "Rebuild (%s, kernel %s)\n", res.Mode, res.KernelVersion)
		for _, id := range res.Order {
			line := fmt.Sprintf("  %-10s %s", res.Status[id], id)
			if e, ok := res.ErrorFor(id); ok {
				line += fmt.Sprintf("  %s: %s", e.Code, e.Message)
			}
			fmt.Fprintln(w, line)
		}
		for _, b := range res.Bodies {
			fmt.Fprintf(w, "Body %s: volume %g, %d faces\n", b.ID, b.Volume, len(b.Faces))
		}
	}); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d feature(s) failed to rebuild", len(res.Errors)))
	}
	return nil
}
