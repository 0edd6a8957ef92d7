package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/parcad/internal/document"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document>",
		Short: "Print a document",
		Long: `Print a document's features in evaluation order.

JSON output is the full document tree: meta, state, variables, features
and order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			snap := s.doc.Snapshot()
			return newFormatter(rootOpts, cmd).Success(snap.Tree(), func(w io.Writer) {
				writeDocument(w, snap)
			})
		},
	}
}

// writeDocument renders a snapshot as text.
func writeDocument(w io.Writer, snap *document.Snapshot) {
	fmt.Fprintf(w, "Document: %s (%s)\n", snap.Meta.Name, snap.Meta.Units)
	gate := "none"
	if snap.Gate != "" {
		gate = string(snap.Gate)
	}
	fmt.Fprintf(w, "Gate: %s\n", gate)

	fmt.Fprintln(w, "Features:")
	for i, id := range snap.Order {
		marker := " "
		if id == snap.Gate {
			marker = ">"
		}
		f, err := snap.Feature(id)
		if err != nil {
			fmt.Fprintf(w, "%s %2d  %s  <undecodable: %v>\n", marker, i, id, err)
			continue
		}
		c := f.Base()
		var flags []string
		if c.Suppressed {
			flags = append(flags, "suppressed")
		}
		if c.Hidden {
			flags = append(flags, "hidden")
		}
		line := fmt.Sprintf("%s %2d  %s  %-8s %s", marker, i, id, f.Kind(), c.Name)
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	if len(snap.Variables) > 0 {
		fmt.Fprintln(w, "Variables:")
		names := make([]string, 0, len(snap.Variables))
		for name := range snap.Variables {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s = %v\n", name, snap.Variables[name])
		}
	}

	for _, a := range snap.Anomalies {
		fmt.Fprintf(w, "Anomaly: %s %s %s\n", a.Kind, a.Feature, a.Detail)
	}
}
