package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Kind    string `json:"kind"` // "tool", "sync" or "rebuild"
	Replica string `json:"replica,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Args    any    `json:"args,omitempty"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Bindings maps names to bound values, including the pinned datums.
	Bindings map[string]string `json:"bindings"`

	// Documents holds each replica's final document tree.
	Documents map[string]map[string]any `json:"documents"`

	// Rebuilds holds the summary of each named rebuild.
	Rebuilds map[string]map[string]any `json:"rebuilds,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Bindings:  make(map[string]string),
		Documents: make(map[string]map[string]any),
		Rebuilds:  make(map[string]map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
