package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/tools"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Args string
	List bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <document> <tool>",
		Short: "Run one tool call against a document",
		Long: `Run one tool call against a stored document and persist the edit.

Tool calls are the same operations an AI agent issues. Use --list to see
every tool and its parameters.

Exit codes:
  0 - The call succeeded
  1 - The call was rejected (validation, not found, protected)
  2 - Command error (bad --args, missing document)

Examples:
  parcad exec --list
  parcad exec $DOC createSketch --args '{"plane":"<xy plane id>"}'
  parcad exec $DOC renameFeature --args '{"id":"...","name":"Base"}' --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.List {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.List {
				return listTools(opts, cmd)
			}
			return execTool(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "tool arguments as JSON")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list available tools")

	return cmd
}

func listTools(opts *ExecOptions, cmd *cobra.Command) error {
	defs := tools.Definitions()
	return newFormatter(opts.RootOptions, cmd).Success(defs, func(w io.Writer) {
		for _, d := range defs {
			fmt.Fprintf(w, "%s - %s\n", d.Name, d.Description)
			for _, p := range d.Params {
				req := ""
				if p.Required {
					req = " (required)"
				}
				fmt.Fprintf(w, "    %s %s%s\n", p.Name, p.Type, req)
			}
		}
	})
}

func execTool(opts *ExecOptions, docID, name string, cmd *cobra.Command) error {
	if !json.Valid([]byte(opts.Args)) {
		return NewExitError(ExitCommandError, "invalid --args JSON")
	}

	s, err := opts.openSession(cmd.Context(), docID)
	if err != nil {
		return err
	}
	defer s.Close()

	out := newFormatter(opts.RootOptions, cmd)
	out.VerboseLog("exec %s on %s as replica %s", name, docID, s.doc.Replica())

	res := s.executor().Execute(cmd.Context(), tools.Call{Name: name, Args: json.RawMessage(opts.Args)})
	if !res.OK {
		if err := out.Error(CodeToolFailed, res.Error, map[string]any{"tool": name, "code": res.Code}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s failed: %s", name, res.Code))
	}
	return out.Success(res, func(w io.Writer) {
		switch v := res.Value.(type) {
		case nil:
			fmt.Fprintf(w, "%s: ok\n", name)
		case document.FeatureID, string, bool:
			fmt.Fprintf(w, "%s: %v\n", name, v)
		default:
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				fmt.Fprintf(w, "%s: %v\n", name, v)
				return
			}
			fmt.Fprintf(w, "%s: %s\n", name, data)
		}
	})
}
