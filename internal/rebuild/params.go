package rebuild

import (
	"fmt"
	"math"
	"strings"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
)

// ExpressionError reports a parameter or variable that failed to evaluate.
type ExpressionError struct {
	Expr   string
	Reason string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Reason)
}

// CycleError reports variables that depend on themselves.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "variable cycle: " + strings.Join(e.Path, " -> ")
}

// builtins are available to every expression alongside expr's own builtins
// (abs, min, max, floor, ceil, round).
var builtins = map[string]any{
	"pi":   math.Pi,
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"rad":  func(deg float64) float64 { return deg * math.Pi / 180 },
	"deg":  func(rad float64) float64 { return rad * 180 / math.Pi },
}

// visit states for variable resolution
const (
	unvisited = iota
	visiting
	done
)

// Scope evaluates numeric parameters against document variables.
//
// Variables are either numbers or "=expr" strings that may reference other
// variables. Each variable is evaluated at most once per Scope; a variable
// reached again while it is being evaluated is a cycle.
type Scope struct {
	vars   map[string]ir.Value
	state  map[string]int
	values map[string]float64
	errs   map[string]error
	stack  []string
}

// NewScope returns a scope over vars.
func NewScope(vars map[string]ir.Value) *Scope {
	return &Scope{
		vars:   vars,
		state:  make(map[string]int),
		values: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

// Eval returns the value of a parameter.
func (s *Scope) Eval(p document.Param) (float64, error) {
	if !p.IsExpr() {
		return p.Value, nil
	}
	return s.evalExpr(p.Expr)
}

// Variable returns the value of a named variable.
func (s *Scope) Variable(name string) (float64, error) {
	switch s.state[name] {
	case done:
		return s.values[name], s.errs[name]
	case visiting:
		i := 0
		for j, n := range s.stack {
			if n == name {
				i = j
				break
			}
		}
		path := append(append([]string{}, s.stack[i:]...), name)
		return 0, &CycleError{Path: path}
	}

	v, ok := s.vars[name]
	if !ok {
		return 0, fmt.Errorf("unknown variable %q", name)
	}
	s.state[name] = visiting
	s.stack = append(s.stack, name)

	var val float64
	var err error
	if f, isNum := ir.AsFloat(v); isNum {
		val = f
	} else if code, isStr := ir.AsString(v); isStr && strings.HasPrefix(code, "=") {
		val, err = s.evalExpr(strings.TrimPrefix(code, "="))
	} else {
		err = fmt.Errorf("variable %q must be a number or an =expression", name)
	}

	s.stack = s.stack[:len(s.stack)-1]
	s.state[name] = done
	s.values[name] = val
	s.errs[name] = err
	return val, err
}

// Values evaluates every variable. Variables that fail are reported in errs.
func (s *Scope) Values() (map[string]float64, map[string]error) {
	vals := make(map[string]float64)
	errs := make(map[string]error)
	for name := range s.vars {
		if v, err := s.Variable(name); err != nil {
			errs[name] = err
		} else {
			vals[name] = v
		}
	}
	return vals, errs
}

type identCollector struct {
	names []string
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c.names = append(c.names, id.Value)
	}
}

func (s *Scope) evalExpr(code string) (float64, error) {
	tree, err := parser.Parse(code)
	if err != nil {
		return 0, &ExpressionError{Expr: code, Reason: err.Error()}
	}
	var idents identCollector
	ast.Walk(&tree.Node, &idents)

	env := make(map[string]any, len(builtins)+len(idents.names))
	for k, v := range builtins {
		env[k] = v
	}
	for _, name := range idents.names {
		if _, isVar := s.vars[name]; !isVar {
			continue
		}
		v, err := s.Variable(name)
		if err != nil {
			return 0, err
		}
		env[name] = v
	}

	program, err := exprlang.Compile(code, exprlang.Env(env), exprlang.AsFloat64())
	if err != nil {
		return 0, &ExpressionError{Expr: code, Reason: err.Error()}
	}
	out, err := exprlang.Run(program, env)
	if err != nil {
		return 0, &ExpressionError{Expr: code, Reason: err.Error()}
	}
	f, ok := out.(float64)
	if !ok {
		return 0, &ExpressionError{Expr: code, Reason: fmt.Sprintf("result is %T, want a number", out)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ExpressionError{Expr: code, Reason: "result is not finite"}
	}
	return f, nil
}
