package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"reflect"
	"strings"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/kernel/prismatic"
	"github.com/roach88/parcad/internal/rebuild"
	"github.com/roach88/parcad/internal/store"
	"github.com/roach88/parcad/internal/testutil"
	"github.com/roach88/parcad/internal/tools"
)

// datumBindings are the names bound before the first step.
var datumBindings = map[string]document.FeatureID{
	"origin": document.OriginID,
	"xy":     document.XYPlaneID,
	"xz":     document.XZPlaneID,
	"yz":     document.YZPlaneID,
}

// replica is one participant in a scenario.
type replica struct {
	id       string
	doc      *document.Document
	executor *tools.Executor
}

// Harness is the test execution engine.
// It runs scenarios with deterministic clocks and feature ids.
type Harness struct {
	store        *store.Store
	replicas     map[string]*replica
	names        []string
	orchestrator *rebuild.Orchestrator
	bindings     map[string]string
	rebuilds     map[string]*rebuild.Result
	last         any
	logger       *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. Every
// replica's updates are persisted to it, and the final documents are
// reloaded from the log to check that the log reproduces them.
//
// Execution flow:
// 1. Create fresh in-memory database and replicas
// 2. Execute steps with expect validation
// 3. Reload every replica from the store
// 4. Evaluate assertions
// 5. Return result with pass/fail, trace, and errors
//
// A returned error means the scenario could not run; expectation and
// assertion failures are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.Memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store:        st,
		replicas:     make(map[string]*replica, len(scenario.Replicas)),
		names:        scenario.Replicas,
		orchestrator: rebuild.NewOrchestrator(prismatic.New(), rebuild.WithLogger(logger)),
		bindings:     make(map[string]string),
		rebuilds:     make(map[string]*rebuild.Result),
		logger:       logger,
	}
	for name, id := range datumBindings {
		h.bindings[name] = string(id)
	}

	ctx := context.Background()
	if err := h.createReplicas(ctx); err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	for _, name := range h.names {
		if err := h.checkPersisted(ctx, name); err != nil {
			result.AddError(err.Error())
		}
	}

	if result.Pass {
		actx := &AssertionContext{
			Ctx:       ctx,
			Replicas:  h.names,
			Snapshots: make(map[string]*document.Snapshot, len(h.names)),
			Rebuilds:  h.rebuilds,
			Bindings:  h.bindings,
			Last:      h.last,
		}
		for _, name := range h.names {
			actx.Snapshots[name] = h.replicas[name].doc.Snapshot()
		}
		for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
			result.AddError(msg)
		}
	}

	maps.Copy(result.Bindings, h.bindings)
	for _, name := range h.names {
		result.Documents[name] = h.replicas[name].doc.Snapshot().Tree()
	}
	for name, r := range h.rebuilds {
		result.Rebuilds[name] = r.Summary()
	}
	return result, nil
}

// createReplicas creates the first replica's document and opens the others
// from its state, then attaches each to the store.
func (h *Harness) createReplicas(ctx context.Context) error {
	var state []byte
	for i, name := range h.names {
		clock := testutil.NewDeterministicClock()
		opts := []document.Option{document.WithClock(clock.Now), document.WithLogger(h.logger)}

		var doc *document.Document
		var err error
		if i == 0 {
			doc, err = document.New(crdt.ReplicaID(name), "scenario", opts...)
			if err == nil {
				state, err = doc.EncodeState()
			}
		} else {
			doc, err = document.Open(crdt.ReplicaID(name), opts...)
			if err == nil {
				err = doc.ApplyUpdate(state)
			}
		}
		if err != nil {
			return fmt.Errorf("failed to create replica %s: %w", name, err)
		}

		if err := h.store.SaveDocument(ctx, name, doc); err != nil {
			return fmt.Errorf("failed to save replica %s: %w", name, err)
		}
		h.store.Attach(name, doc)

		layer := command.New(doc,
			command.WithIDGenerator(document.NewSequenceGenerator(uint32(i))),
			command.WithLogger(h.logger),
		)
		h.replicas[name] = &replica{
			id:       name,
			doc:      doc,
			executor: tools.New(layer, tools.WithLogger(h.logger)),
		}
	}
	return nil
}

// replicaOr returns the named replica, or the first one for "".
func (h *Harness) replicaOr(name string) *replica {
	if name == "" {
		name = h.names[0]
	}
	return h.replicas[name]
}

// executeSteps runs all steps and validates expect clauses. Execution
// stops at the first failed expectation.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		var ok bool
		var err error
		switch {
		case step.Tool != "":
			ok, err = h.executeTool(ctx, i, step, result)
		case step.Sync != nil:
			ok, err = h.executeSync(i, step.Sync, result)
		case step.Rebuild != nil:
			ok, err = h.executeRebuild(ctx, i, step.Rebuild, result)
		}
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// executeTool calls one tool and checks the expect clause.
func (h *Harness) executeTool(ctx context.Context, index int, step Step, result *Result) (bool, error) {
	r := h.replicaOr(step.Replica)
	args, err := substitute(step.Args, h.bindings)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d] %s: %v", index, step.Tool, err))
		return false, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return false, fmt.Errorf("failed to encode args: %w", err)
	}

	res := r.executor.Execute(ctx, tools.Call{Name: step.Tool, Args: raw})
	value := normalize(res.Value)
	h.last = value
	event := TraceEvent{
		Step:    index,
		Kind:    "tool",
		Replica: r.id,
		Tool:    step.Tool,
		Args:    normalize(args),
		OK:      res.OK,
		Code:    string(res.Code),
		Error:   res.Error,
	}
	if step.Tool != "getDocument" {
		event.Value = value
	}
	result.Trace = append(result.Trace, event)

	h.logger.Info("tool step completed", "step", index, "tool", step.Tool, "replica", r.id, "ok", res.OK)

	if msg := h.checkExpect(step.Expect, res, value); msg != "" {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", index, step.Tool, msg))
		return false, nil
	}
	if step.As != "" && res.OK {
		s, isString := value.(string)
		if !isString {
			result.AddError(fmt.Sprintf("steps[%d] %s: cannot bind %T to %q", index, step.Tool, value, step.As))
			return false, nil
		}
		h.bindings[step.As] = s
	}
	return true, nil
}

// checkExpect compares a tool result with its expect clause and returns a
// failure message, or "" when it matches.
func (h *Harness) checkExpect(expect *ExpectClause, res command.Result[any], value any) string {
	wantOK := true
	if expect != nil {
		if expect.OK != nil {
			wantOK = *expect.OK
		} else if expect.Code != "" {
			wantOK = false
		}
	}
	if res.OK != wantOK {
		if res.OK {
			return "expected failure, got success"
		}
		return fmt.Sprintf("expected success, got %s: %s", res.Code, res.Error)
	}
	if expect == nil {
		return ""
	}
	if expect.Code != "" && string(res.Code) != expect.Code {
		return fmt.Sprintf("expected code %s, got %s (%s)", expect.Code, res.Code, res.Error)
	}
	if expect.Value != nil {
		want, err := substitute(expect.Value, h.bindings)
		if err != nil {
			return err.Error()
		}
		if !reflect.DeepEqual(normalize(want), value) {
			return fmt.Sprintf("expected value %v, got %v", want, value)
		}
	}
	return ""
}

// executeSync exchanges full state between every pair of the listed
// replicas. Applying state twice is harmless, so the order does not matter.
func (h *Harness) executeSync(index int, names []string, result *Result) (bool, error) {
	states := make(map[string][]byte, len(names))
	for _, name := range names {
		blob, err := h.replicas[name].doc.EncodeState()
		if err != nil {
			return false, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		states[name] = blob
	}
	for _, to := range names {
		for _, from := range names {
			if from == to {
				continue
			}
			if err := h.replicas[to].doc.ApplyUpdate(states[from]); err != nil {
				return false, fmt.Errorf("failed to apply %s to %s: %w", from, to, err)
			}
		}
	}
	result.Trace = append(result.Trace, TraceEvent{
		Step:    index,
		Kind:    "sync",
		Replica: strings.Join(names, ","),
		OK:      true,
	})
	h.logger.Info("sync step completed", "step", index, "replicas", names)
	return true, nil
}

// executeRebuild runs a rebuild pass and stores its result under step.As.
func (h *Harness) executeRebuild(ctx context.Context, index int, step *RebuildStep, result *Result) (bool, error) {
	r := h.replicaOr(step.Replica)
	mode := rebuild.ModeGated
	if step.Mode != "" {
		mode, _ = rebuild.ParseMode(step.Mode)
	}
	res := h.orchestrator.Rebuild(ctx, r.doc.Snapshot(), mode)
	h.rebuilds[step.As] = res

	counts := make(map[string]any)
	for s, n := range res.Counts() {
		counts[string(s)] = int64(n)
	}
	result.Trace = append(result.Trace, TraceEvent{
		Step:    index,
		Kind:    "rebuild",
		Replica: r.id,
		OK:      len(res.Errors) == 0,
		Value:   counts,
	})
	h.logger.Info("rebuild step completed", "step", index, "replica", r.id, "mode", mode, "errors", len(res.Errors))
	return true, nil
}

// checkPersisted reloads a replica from the store and compares hashes.
func (h *Harness) checkPersisted(ctx context.Context, name string) error {
	r := h.replicas[name]
	loaded, err := h.store.LoadDocument(ctx, name, crdt.ReplicaID(name+"-reload"))
	if err != nil {
		return fmt.Errorf("replica %s: reload failed: %w", name, err)
	}
	want, err := r.doc.Snapshot().Hash()
	if err != nil {
		return fmt.Errorf("replica %s: %w", name, err)
	}
	got, err := loaded.Snapshot().Hash()
	if err != nil {
		return fmt.Errorf("replica %s: reload: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("replica %s: persisted log does not reproduce the document", name)
	}
	return nil
}

// substitute replaces "$name" strings with bound values. "$$" escapes a
// literal leading dollar.
func substitute(v any, bindings map[string]string) (any, error) {
	switch x := v.(type) {
	case string:
		if strings.HasPrefix(x, "$$") {
			return x[1:], nil
		}
		if name, ok := strings.CutPrefix(x, "$"); ok {
			val, bound := bindings[name]
			if !bound {
				return nil, fmt.Errorf("unbound name $%s", name)
			}
			return val, nil
		}
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			s, err := substitute(e, bindings)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			s, err := substitute(e, bindings)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	}
	return v, nil
}

// normalize round-trips v through JSON so YAML values, tool results and
// document trees compare and evaluate alike: numbers become float64, maps
// become map[string]any.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
