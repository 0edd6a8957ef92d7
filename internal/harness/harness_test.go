package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/document"
)

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/box_then_delete_datum.yaml")
	require.NoError(t, err)
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, string(document.XYPlaneID), result.Bindings["xy"])
	assert.Contains(t, result.Rebuilds, "r1")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/concurrent_sketches.yaml")
	require.NoError(t, err)
	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := NewTraceSnapshot(scenario.Name, first).MarshalCanonical()
	require.NoError(t, err)
	b, err := NewTraceSnapshot(scenario.Name, second).MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Documents, second.Documents)
}

func TestRun_ExpectMismatchStopsSteps(t *testing.T) {
	s := parse(t, `
name: mismatch
description: deleting a datum is expected to succeed
steps:
  - tool: deleteFeature
    args: { id: $xy }
  - tool: createSketch
    args: { plane: $xy }
assertions:
  - type: invariants
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected success, got PROTECTED")
	assert.Len(t, result.Trace, 1)
}

func TestRun_ExpectValueAndCode(t *testing.T) {
	s := parse(t, `
name: expect
description: expect clauses check values and codes
steps:
  - tool: createSketch
    args: { plane: $xy }
    as: s1
  - tool: addPoint
    args: { sketch: $s1, x: 1, y: 2 }
    expect: { value: pt1@a }
  - tool: toggleVisibility
    args: { id: $s1 }
    expect: { value: false }
  - tool: renameFeature
    args: { id: $s1, name: "  " }
    expect: { code: VALIDATION }
  - tool: addPoint
    args: { sketch: $s1, x: 1, y: 2 }
    expect: { value: pt1@a }
assertions:
  - type: invariants
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[4] addPoint: expected value pt1@a, got pt2@a")
}

func TestRun_UnboundName(t *testing.T) {
	s := parse(t, `
name: unbound
description: names must be bound before use
steps:
  - tool: createSketch
    args: { plane: $nope }
assertions:
  - type: invariants
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unbound name $nope")
	assert.Empty(t, result.Trace)
}

func TestRun_AssertionFailuresUseNames(t *testing.T) {
	s := parse(t, `
name: failing
description: failed assertions report bound names
steps:
  - tool: createSketch
    args: { plane: $xy }
    as: s1
  - rebuild: { as: r1 }
assertions:
  - type: order
    expect: [$origin, $xy, $xz, $yz]
  - type: gate
  - type: status
    rebuild: r1
    feature: $s1
    expect: gated
  - type: check
    expr: "doc.order.size() == 4"
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Actual: $origin, $xy, $xz, $yz, $s1")
	assert.Contains(t, result.Errors[1], "Expected: null")
	assert.Contains(t, result.Errors[1], "Actual: $s1")
	assert.Contains(t, result.Errors[2], "Actual: computed")
	assert.Contains(t, result.Errors[3], "doc.order.size() == 4")
	assert.Contains(t, result.Errors[3], "createSketch@a")
}

func TestRun_ConvergedFailsWithoutSync(t *testing.T) {
	s := parse(t, `
name: diverged
description: replicas diverge until they sync
replicas: [a, b]
steps:
  - tool: createSketch
    replica: a
    args: { plane: $xy }
assertions:
  - type: converged
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: converged")
}

func TestParseScenario_Invalid(t *testing.T) {
	const head = "name: x\ndescription: y\n"
	const tool = "steps:\n  - tool: getDocument\n"
	const inv = "assertions:\n  - type: invariants\n"
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown field", head + tool + inv + "extra: 1\n", "failed to parse YAML"},
		{"missing name", "description: y\n" + tool + inv, "name is required"},
		{"missing steps", head + inv, "steps list is required"},
		{"missing assertions", head + tool, "assertions list is required"},
		{"bad replica", head + "replicas: [\"a b\"]\n" + tool + inv, "not a valid replica id"},
		{"duplicate replica", head + "replicas: [a, a]\n" + tool + inv, "duplicate replica"},
		{"two kinds", head + "steps:\n  - tool: getDocument\n    sync: [a, b]\n" + inv, "exactly one of"},
		{"unknown step replica", head + "steps:\n  - tool: getDocument\n    replica: z\n" + inv, "unknown replica \"z\""},
		{"short sync", head + "replicas: [a, b]\nsteps:\n  - sync: [a]\n" + inv, "at least two replicas"},
		{"rebuild without name", head + "steps:\n  - rebuild: { mode: full }\n" + inv, "rebuild.as is required"},
		{"bad mode", head + "steps:\n  - rebuild: { mode: fast, as: r }\n" + inv, "unknown rebuild mode"},
		{"args on sync", head + "replicas: [a, b]\nsteps:\n  - sync: [a, b]\n    as: x\n" + inv, "only apply to tool steps"},
		{"unknown assertion", head + tool + "assertions:\n  - type: nope\n", "unknown assertion type"},
		{"order without list", head + tool + "assertions:\n  - type: order\n", "expect list is required"},
		{"status without rebuild", head + tool + "assertions:\n  - type: status\n    feature: $xy\n    expect: computed\n", "rebuild and feature are required"},
		{"unknown rebuild", head + tool + "assertions:\n  - type: status\n    rebuild: r\n    feature: $xy\n    expect: computed\n", "unknown rebuild \"r\""},
		{"check without expr", head + tool + "assertions:\n  - type: check\n", "expr is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_DefaultReplica(t *testing.T) {
	s := parse(t, "name: x\ndescription: y\nsteps:\n  - tool: getDocument\nassertions:\n  - type: invariants\n")
	assert.Equal(t, []string{"a"}, s.Replicas)
}

func TestSubstitute(t *testing.T) {
	bindings := map[string]string{"s1": "id-1"}
	got, err := substitute(map[string]any{
		"sketch": "$s1",
		"list":   []any{"$s1", "$$literal", 3},
		"plain":  "text",
	}, bindings)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"sketch": "id-1",
		"list":   []any{"id-1", "$literal", 3},
		"plain":  "text",
	}, got)

	_, err = substitute([]any{"$missing"}, bindings)
	assert.EqualError(t, err, "unbound name $missing")
}

func TestAliasString(t *testing.T) {
	bindings := map[string]string{
		"p1": "pt1",
		"s1": string(document.XYPlaneID),
		"xy": string(document.XYPlaneID),
	}
	assert.Equal(t, "$p1", aliasString("pt1", bindings))
	assert.Equal(t, "pt10", aliasString("pt10", bindings))
	assert.Equal(t, "$s1", aliasString(string(document.XYPlaneID), bindings))
	assert.Equal(t, "feature $s1 is protected", aliasString("feature "+string(document.XYPlaneID)+" is protected", bindings))
}

func TestEvalCheck(t *testing.T) {
	vars := map[string]any{"doc": map[string]any{"order": []any{"a", "b"}}}

	ok, err := evalCheck("doc.order.size() == 2", vars)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = evalCheck("doc.order.size()", vars)
	assert.ErrorContains(t, err, "want bool")

	_, err = evalCheck("doc.order.size( ==", vars)
	assert.Error(t, err)
}
