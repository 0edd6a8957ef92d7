package rebuild

import (
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/naming"
)

// Mode selects how far a pass evaluates.
type Mode string

const (
	// ModeGated stops at the rebuild gate.
	ModeGated Mode = "gated"
	// ModeFull ignores the gate.
	ModeFull Mode = "full"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeGated, ModeFull:
		return Mode(s), true
	}
	return "", false
}

// Status is a feature's terminal state in one pass.
type Status string

const (
	StatusComputed   Status = "computed"
	StatusError      Status = "error"
	StatusSuppressed Status = "suppressed"
	StatusGated      Status = "gated"
)

// BindingRecord records how one reference parameter was bound in a pass.
type BindingRecord struct {
	Feature document.FeatureID
	Param   string
	Ref     string
	Method  naming.Method
	Handle  string
}

// Result is the transient output of one pass. It is recomputed from scratch
// by each replica and never replicated.
type Result struct {
	KernelVersion string
	Mode          Mode
	Order         []document.FeatureID
	Status        map[document.FeatureID]Status
	Errors        []BuildError
	Bodies        []geom.Body
	SketchSolves  map[document.FeatureID]SketchSolve
	Bindings      []BindingRecord

	geometry map[document.FeatureID]*geom.FeatureGeometry
	hidden   map[document.FeatureID]bool
}

func newResult(version string, mode Mode) *Result {
	return &Result{
		KernelVersion: version,
		Mode:          mode,
		Status:        make(map[document.FeatureID]Status),
		SketchSolves:  make(map[document.FeatureID]SketchSolve),
		geometry:      make(map[document.FeatureID]*geom.FeatureGeometry),
		hidden:        make(map[document.FeatureID]bool),
	}
}

// FeatureGeometry returns the geometry of a computed feature. It makes Result
// a naming.GeometrySource.
func (r *Result) FeatureGeometry(id document.FeatureID) (*geom.FeatureGeometry, bool) {
	g, ok := r.geometry[id]
	return g, ok
}

// Visible reports whether a consumer should draw the feature's output.
// Gated, suppressed and failed features are never visible; their geometry
// from earlier passes is not carried over.
func (r *Result) Visible(id document.FeatureID) bool {
	return r.Status[id] == StatusComputed && !r.hidden[id]
}

// Body returns the body with the given id.
func (r *Result) Body(id string) (geom.Body, bool) {
	for _, b := range r.Bodies {
		if b.ID == id {
			return b, true
		}
	}
	return geom.Body{}, false
}

// ErrorFor returns the build error of a feature.
func (r *Result) ErrorFor(id document.FeatureID) (BuildError, bool) {
	for _, e := range r.Errors {
		if e.Feature == id {
			return e, true
		}
	}
	return BuildError{}, false
}

// Counts tallies features by status.
func (r *Result) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, s := range r.Status {
		out[s]++
	}
	return out
}

// Summary renders the result as a plain tree for assertions and output.
func (r *Result) Summary() map[string]any {
	status := make(map[string]any, len(r.Status))
	for id, s := range r.Status {
		status[string(id)] = string(s)
	}
	errs := make([]any, 0, len(r.Errors))
	for _, e := range r.Errors {
		entry := map[string]any{
			"feature": string(e.Feature),
			"code":    string(e.Code),
			"message": e.Message,
		}
		if e.Param != "" {
			entry["param"] = e.Param
		}
		if len(e.Candidates) > 0 {
			cands := make([]any, len(e.Candidates))
			for i, c := range e.Candidates {
				cands[i] = c
			}
			entry["candidates"] = cands
		}
		errs = append(errs, entry)
	}
	bodies := make([]any, 0, len(r.Bodies))
	for _, b := range r.Bodies {
		features := make([]any, len(b.Features))
		for i, f := range b.Features {
			features[i] = f
		}
		bodies = append(bodies, map[string]any{
			"id":       b.ID,
			"features": features,
			"volume":   b.Volume,
			"faces":    int64(len(b.Faces)),
		})
	}
	solves := make(map[string]any, len(r.SketchSolves))
	for id, s := range r.SketchSolves {
		loops := make([]any, len(s.Loops))
		for i, l := range s.Loops {
			loops[i] = l
		}
		solves[string(id)] = map[string]any{"status": s.Status, "loops": loops}
	}
	return map[string]any{
		"kernel":       r.KernelVersion,
		"mode":         string(r.Mode),
		"status":       status,
		"errors":       errs,
		"bodies":       bodies,
		"sketchSolves": solves,
	}
}
