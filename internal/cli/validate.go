package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/parcad/internal/validate"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document>",
		Short: "Check a document against its schema and invariants",
		Long: `Check a document's tree against the CUE schema, decode every feature
record and check the document invariants.

Warnings (dangling references, merge anomalies) do not fail validation.

Exit codes:
  0 - Document is valid
  1 - Document has errors
  2 - Command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			report := validate.ValidateDocument(s.doc.Snapshot())
			out := newFormatter(rootOpts, cmd)
			if !report.OK && rootOpts.Format == "json" {
				if err := out.Error(CodeInvalid, fmt.Sprintf("%d error(s)", len(report.Errors)), report); err != nil {
					return err
				}
			} else if err := out.Success(report, func(w io.Writer) { writeReport(w, report) }); err != nil {
				return err
			}
			if !report.OK {
				return NewExitError(ExitFailure, fmt.Sprintf("document has %d error(s)", len(report.Errors)))
			}
			return nil
		},
	}
}

func writeReport(w io.Writer, report validate.Report) {
	for _, e := range report.Errors {
		fmt.Fprintf(w, "error   %s\n", e.Error())
	}
	for _, e := range report.Warnings {
		fmt.Fprintf(w, "warning %s\n", e.Error())
	}
	if report.OK {
		fmt.Fprintf(w, "✓ valid (%d warning(s))\n", len(report.Warnings))
	} else {
		fmt.Fprintf(w, "✗ %d error(s), %d warning(s)\n", len(report.Errors), len(report.Warnings))
	}
}
