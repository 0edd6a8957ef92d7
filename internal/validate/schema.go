package validate

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/parcad/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// schema holds the compiled #Document definition. A cue.Context is not safe
// for concurrent use, so every check holds mu.
type schema struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

var loadSchema = sync.OnceValues(func() (*schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Document"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Document: %w", err)
	}
	return &schema{ctx: ctx, def: def}, nil
})

// checkSchema unifies tree with #Document and records every violation.
func checkSchema(tree ir.Object, c *collector) {
	s, err := loadSchema()
	if err != nil {
		c.errorf(CodeSchema, "", "%v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.def.Unify(s.ctx.Encode(ir.ToAny(tree)))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		c.errs = append(c.errs, cueIssues(err)...)
	}
}

// documentPath joins a CUE error path without the leading definition
// selectors, so "#Document.meta.units" reads "meta.units".
func documentPath(sel []string) string {
	for len(sel) > 0 && strings.HasPrefix(sel[0], "#") {
		sel = sel[1:]
	}
	return strings.Join(sel, ".")
}

// cueIssues flattens a CUE error list into issues keyed by document path.
func cueIssues(err error) []Issue {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return []Issue{{Code: CodeSchema, Message: err.Error()}}
	}
	seen := make(map[string]bool)
	var out []Issue
	for _, e := range errs {
		path := documentPath(e.Path())
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if pos := errors.Positions(e); len(pos) > 0 && path == "" {
			msg = fmt.Sprintf("%s (%s)", msg, pos[0])
		}
		key := path + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Issue{Code: CodeSchema, Path: path, Message: msg})
	}
	return out
}
