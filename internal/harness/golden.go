package harness

import (
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/parcad/internal/ir"
)

// TraceSnapshot captures the observable outcome of a scenario execution.
// Bound ids are replaced by $name so snapshots survive id scheme changes.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Replicas     map[string]map[string]any
	Rebuilds     map[string]map[string]any
	Bindings     map[string]string
}

// NewTraceSnapshot builds the snapshot of a finished run.
func NewTraceSnapshot(name string, result *Result) *TraceSnapshot {
	s := &TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Replicas:     make(map[string]map[string]any, len(result.Documents)),
		Rebuilds:     make(map[string]map[string]any, len(result.Rebuilds)),
		Bindings:     result.Bindings,
	}
	for replica, tree := range result.Documents {
		state, _ := tree["state"].(map[string]any)
		s.Replicas[replica] = map[string]any{
			"order": tree["order"],
			"gate":  state["rebuildGate"],
		}
	}
	for name, summary := range result.Rebuilds {
		bodies := make([]any, 0)
		if list, ok := summary["bodies"].([]any); ok {
			for _, b := range list {
				body := b.(map[string]any)
				bodies = append(bodies, map[string]any{
					"features": body["features"],
					"volume":   body["volume"],
				})
			}
		}
		errs := make([]any, 0)
		if list, ok := summary["errors"].([]any); ok {
			for _, e := range list {
				entry := e.(map[string]any)
				errs = append(errs, map[string]any{
					"feature": entry["feature"],
					"code":    entry["code"],
				})
			}
		}
		s.Rebuilds[name] = map[string]any{
			"status": summary["status"],
			"bodies": bodies,
			"errors": errs,
		}
	}
	return s
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step": int64(event.Step),
			"kind": event.Kind,
			"ok":   event.OK,
		}
		if event.Replica != "" {
			eventMap["replica"] = event.Replica
		}
		if event.Tool != "" {
			eventMap["tool"] = event.Tool
		}
		if event.Args != nil {
			eventMap["args"] = event.Args
		}
		if event.Code != "" {
			eventMap["code"] = event.Code
		}
		if event.Value != nil {
			eventMap["value"] = event.Value
		}
		traceList[i] = eventMap
	}

	replicas := make(map[string]any, len(s.Replicas))
	for k, v := range s.Replicas {
		replicas[k] = v
	}
	rebuilds := make(map[string]any, len(s.Rebuilds))
	for k, v := range s.Rebuilds {
		rebuilds[k] = v
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"replicas":      replicas,
		"rebuilds":      rebuilds,
	}
	return aliasValue(normalize(out), s.Bindings).(map[string]any)
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewTraceSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// reverseBindings maps bound values to $name. When several names share a
// value the alphabetically first wins.
func reverseBindings(bindings map[string]string) map[string]string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make(map[string]string, len(names))
	for _, name := range names {
		if _, taken := out[bindings[name]]; !taken {
			out[bindings[name]] = "$" + name
		}
	}
	return out
}

// aliasString replaces a bound value with its $name. Bound feature ids are
// also replaced inside longer strings such as error messages; short values
// like sketch element ids only match whole strings.
func aliasString(s string, bindings map[string]string) string {
	rev := reverseBindings(bindings)
	if name, ok := rev[s]; ok {
		return name
	}
	values := make([]string, 0, len(rev))
	for v := range rev {
		if len(v) >= 36 {
			values = append(values, v)
		}
	}
	slices.Sort(values)
	for _, v := range values {
		s = strings.ReplaceAll(s, v, rev[v])
	}
	return s
}

// aliasValue applies aliasString to every string and map key in v.
func aliasValue(v any, bindings map[string]string) any {
	switch x := v.(type) {
	case string:
		return aliasString(x, bindings)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = aliasValue(e, bindings)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[aliasString(k, bindings)] = aliasValue(e, bindings)
		}
		return out
	}
	return v
}
