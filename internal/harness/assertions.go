package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/rebuild"
	"github.com/roach88/parcad/internal/validate"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Kind {
			case "tool":
				fmt.Fprintf(&buf, "  [%d] %s@%s %v ok=%t\n", event.Step, event.Tool, event.Replica, event.Args, event.OK)
			default:
				fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Step, event.Kind, event.Replica)
			}
		}
	}
	return buf.String()
}

// AssertionContext provides the final state assertions are evaluated
// against.
type AssertionContext struct {
	Ctx       context.Context
	Replicas  []string
	Snapshots map[string]*document.Snapshot
	Rebuilds  map[string]*rebuild.Result
	Bindings  map[string]string
	Last      any
}

func (actx *AssertionContext) snapshot(replica string) *document.Snapshot {
	if replica == "" {
		replica = actx.Replicas[0]
	}
	return actx.Snapshots[replica]
}

// alias replaces bound ids in s with $name for readable messages.
func (actx *AssertionContext) alias(s string) string {
	return aliasString(s, actx.Bindings)
}

// assertOrder checks a replica's materialized order.
func assertOrder(actx *AssertionContext, a Assertion) error {
	want, err := substitute(a.Expect, actx.Bindings)
	if err != nil {
		return fmt.Errorf("order: %w", err)
	}
	wantIDs := make([]string, 0)
	for _, v := range want.([]any) {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("order: expect entries must be strings, got %T", v)
		}
		wantIDs = append(wantIDs, s)
	}

	snap := actx.snapshot(a.Replica)
	got := make([]string, len(snap.Order))
	for i, id := range snap.Order {
		got[i] = string(id)
	}
	if !reflect.DeepEqual(got, wantIDs) {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: actx.alias(strings.Join(wantIDs, ", ")),
			Actual:   actx.alias(strings.Join(got, ", ")),
		}
	}
	return nil
}

// assertGate checks a replica's rebuild gate. A missing or empty expect
// means no gate.
func assertGate(actx *AssertionContext, a Assertion) error {
	want := ""
	if a.Expect != nil {
		v, err := substitute(a.Expect, actx.Bindings)
		if err != nil {
			return fmt.Errorf("gate: %w", err)
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("gate: expect must be a string, got %T", v)
		}
		want = s
	}
	got := string(actx.snapshot(a.Replica).Gate)
	if got != want {
		return &AssertionError{
			Type:     AssertGate,
			Expected: orNull(actx.alias(want)),
			Actual:   orNull(actx.alias(got)),
		}
	}
	return nil
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

// assertStatus checks a feature's status in a named rebuild.
func assertStatus(actx *AssertionContext, a Assertion) error {
	res := actx.Rebuilds[a.Rebuild]
	feature, err := substitute(a.Feature, actx.Bindings)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	id := document.FeatureID(feature.(string))
	got, ok := res.Status[id]
	actual := string(got)
	if !ok {
		actual = "absent"
	}
	if actual != a.Expect.(string) {
		if e, has := res.ErrorFor(id); has {
			actual = fmt.Sprintf("%s (%s: %s)", actual, e.Code, e.Message)
		}
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s is %s in %s", a.Feature, a.Expect, a.Rebuild),
			Actual:   actual,
		}
	}
	return nil
}

// assertInvariants checks that document validation reports no errors.
func assertInvariants(actx *AssertionContext, a Assertion) error {
	names := actx.Replicas
	if a.Replica != "" {
		names = []string{a.Replica}
	}
	for _, name := range names {
		report := validate.ValidateDocument(actx.Snapshots[name])
		if report.OK {
			continue
		}
		msgs := make([]string, len(report.Errors))
		for i, issue := range report.Errors {
			msgs[i] = actx.alias(issue.Error())
		}
		return &AssertionError{
			Type:     AssertInvariants,
			Expected: fmt.Sprintf("replica %s is valid", name),
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// assertConverged checks that every replica has the same snapshot hash.
func assertConverged(actx *AssertionContext) error {
	var first string
	for i, name := range actx.Replicas {
		h, err := actx.Snapshots[name].Hash()
		if err != nil {
			return fmt.Errorf("converged: %s: %w", name, err)
		}
		if i == 0 {
			first = h
			continue
		}
		if h != first {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s and %s have the same state", actx.Replicas[0], name),
				Actual:   fmt.Sprintf("hash %s != %s", first, h),
			}
		}
	}
	return nil
}

// assertCheck evaluates a CEL expression.
func assertCheck(actx *AssertionContext, a Assertion) error {
	vars := map[string]any{
		"doc":      normalize(actx.snapshot(a.Replica).Tree()),
		"rebuild":  map[string]any{},
		"bindings": normalize(actx.Bindings),
		"last":     actx.Last,
	}
	if a.Rebuild != "" {
		vars["rebuild"] = normalize(actx.Rebuilds[a.Rebuild].Summary())
	}
	ok, err := evalCheck(a.Expr, vars)
	if err != nil {
		return fmt.Errorf("check %q: %w", a.Expr, err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertCheck,
			Expected: a.Expr,
			Actual:   "false",
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOrder:
			err = assertOrder(actx, assertion)
		case AssertGate:
			err = assertGate(actx, assertion)
		case AssertStatus:
			err = assertStatus(actx, assertion)
		case AssertInvariants:
			err = assertInvariants(actx, assertion)
		case AssertConverged:
			err = assertConverged(actx)
		case AssertCheck:
			err = assertCheck(actx, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errors
}
