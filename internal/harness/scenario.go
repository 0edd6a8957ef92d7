package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/rebuild"
)

// Scenario defines a conformance test scenario.
// Scenarios drive replicas through tool calls and assert on the resulting
// documents and rebuilds.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas lists the replica ids. Defaults to [a].
	Replicas []string `yaml:"replicas,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario step. Exactly one of Tool, Sync and Rebuild is set.
type Step struct {
	// Tool is the tool to call.
	Tool string `yaml:"tool,omitempty"`

	// Replica runs the tool or rebuild. Defaults to the first replica.
	Replica string `yaml:"replica,omitempty"`

	// Args are the tool arguments. $name strings are substituted.
	Args map[string]any `yaml:"args,omitempty"`

	// As binds the tool's returned value to a name.
	As string `yaml:"as,omitempty"`

	// Expect checks the tool result. If nil, the call must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Sync exchanges full state between the listed replicas.
	Sync []string `yaml:"sync,omitempty"`

	// Rebuild runs a rebuild pass.
	Rebuild *RebuildStep `yaml:"rebuild,omitempty"`
}

// ExpectClause specifies the expected tool result.
type ExpectClause struct {
	// OK is the expected success flag. Defaults to true unless Code is set.
	OK *bool `yaml:"ok,omitempty"`

	// Code is the expected error code (e.g. PROTECTED).
	Code string `yaml:"code,omitempty"`

	// Value is the expected returned value after substitution.
	Value any `yaml:"value,omitempty"`
}

// RebuildStep runs a rebuild and names its result.
type RebuildStep struct {
	Replica string `yaml:"replica,omitempty"`
	Mode    string `yaml:"mode,omitempty"`
	As      string `yaml:"as"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "order": a replica's feature order
	// - "gate": a replica's rebuild gate
	// - "status": a feature's status in a named rebuild
	// - "invariants": document validation reports no errors
	// - "converged": every replica has the same snapshot hash
	// - "check": a CEL expression evaluates to true
	Type string `yaml:"type"`

	// Replica selects the document (order, gate, invariants, check).
	Replica string `yaml:"replica,omitempty"`

	// Rebuild names a rebuild result (status, check).
	Rebuild string `yaml:"rebuild,omitempty"`

	// Feature is the feature whose status is checked.
	Feature string `yaml:"feature,omitempty"`

	// Expect is the expected value (order, gate, status).
	Expect any `yaml:"expect,omitempty"`

	// Expr is the CEL expression (check).
	Expr string `yaml:"expr,omitempty"`
}

// Assertion type constants.
const (
	AssertOrder      = "order"
	AssertGate       = "gate"
	AssertStatus     = "status"
	AssertInvariants = "invariants"
	AssertConverged  = "converged"
	AssertCheck      = "check"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(scenario.Replicas) == 0 {
		scenario.Replicas = []string{"a"}
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Replicas))
	for i, r := range s.Replicas {
		if err := crdt.ReplicaID(r).Validate(); err != nil || r == "genesis" {
			return fmt.Errorf("replicas[%d]: %q is not a valid replica id", i, r)
		}
		if seen[r] {
			return fmt.Errorf("replicas[%d]: duplicate replica %q", i, r)
		}
		seen[r] = true
	}

	rebuilds := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, s.Replicas); err != nil {
			return err
		}
		if step.Rebuild != nil {
			rebuilds[step.Rebuild.As] = true
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, s.Replicas, rebuilds); err != nil {
			return err
		}
	}
	return nil
}

func checkReplica(field, r string, replicas []string) error {
	if r != "" && !slices.Contains(replicas, r) {
		return fmt.Errorf("%s: unknown replica %q", field, r)
	}
	return nil
}

// validateStep checks that exactly one step kind is set.
func validateStep(index int, step *Step, replicas []string) error {
	field := fmt.Sprintf("steps[%d]", index)
	kinds := 0
	if step.Tool != "" {
		kinds++
	}
	if step.Sync != nil {
		kinds++
	}
	if step.Rebuild != nil {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("%s: exactly one of tool, sync and rebuild is required", field)
	}
	if err := checkReplica(field, step.Replica, replicas); err != nil {
		return err
	}

	switch {
	case step.Sync != nil:
		if len(step.Sync) < 2 {
			return fmt.Errorf("%s: sync needs at least two replicas", field)
		}
		for _, r := range step.Sync {
			if err := checkReplica(field, r, replicas); err != nil {
				return err
			}
		}
	case step.Rebuild != nil:
		if step.Rebuild.As == "" {
			return fmt.Errorf("%s: rebuild.as is required", field)
		}
		if err := checkReplica(field, step.Rebuild.Replica, replicas); err != nil {
			return err
		}
		if step.Rebuild.Mode != "" {
			if _, ok := rebuild.ParseMode(step.Rebuild.Mode); !ok {
				return fmt.Errorf("%s: unknown rebuild mode %q", field, step.Rebuild.Mode)
			}
		}
	}
	if step.Tool == "" && (step.Args != nil || step.As != "" || step.Expect != nil) {
		return fmt.Errorf("%s: args, as and expect only apply to tool steps", field)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, replicas []string, rebuilds map[string]bool) error {
	field := fmt.Sprintf("assertions[%d]", index)
	if a.Type == "" {
		return fmt.Errorf("%s: type is required", field)
	}
	if err := checkReplica(field, a.Replica, replicas); err != nil {
		return err
	}
	if a.Rebuild != "" && !rebuilds[a.Rebuild] {
		return fmt.Errorf("%s: unknown rebuild %q", field, a.Rebuild)
	}

	switch a.Type {
	case AssertOrder:
		if _, ok := a.Expect.([]any); !ok {
			return fmt.Errorf("%s: expect list is required for order", field)
		}
	case AssertGate:
	case AssertStatus:
		if a.Rebuild == "" || a.Feature == "" {
			return fmt.Errorf("%s: rebuild and feature are required for status", field)
		}
		if _, ok := a.Expect.(string); !ok {
			return fmt.Errorf("%s: expect status is required for status", field)
		}
	case AssertInvariants, AssertConverged:
	case AssertCheck:
		if a.Expr == "" {
			return fmt.Errorf("%s: expr is required for check", field)
		}
	default:
		return fmt.Errorf("%s: unknown assertion type %q", field, a.Type)
	}
	return nil
}
