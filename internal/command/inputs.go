package command

import (
	"math"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/naming"
)

var (
	planeKinds  = []document.Kind{document.KindPlane}
	axisKinds   = []document.Kind{document.KindAxis}
	sketchKinds = []document.Kind{document.KindSketch}
	solidKinds  = []document.Kind{document.KindExtrude, document.KindRevolve, document.KindBoolean}
)

// insertionPoint returns the feature a new feature is inserted after: the
// gate, or the end of the pinned prefix when the gate is null or inside it.
func insertionPoint(snap *document.Snapshot) document.FeatureID {
	prefix := snap.PinnedPrefixLen()
	if snap.Gate != "" && snap.Index(snap.Gate) >= prefix {
		return snap.Gate
	}
	if prefix == 0 {
		return ""
	}
	return snap.Order[prefix-1]
}

// limitFor returns the last order index an input of a new feature may
// occupy.
func limitFor(snap *document.Snapshot) int {
	after := insertionPoint(snap)
	if after == "" {
		return -1
	}
	return snap.Index(after)
}

// checkFeature validates a FeatureID input: it exists, has one of kinds and
// is evaluated before index limit.
func checkFeature(snap *document.Snapshot, field string, id document.FeatureID, limit int, kinds []document.Kind) error {
	if id == "" {
		return invalid(field, "is required")
	}
	k, ok := snap.Kind(id)
	if !ok {
		return invalid(field, "feature %s does not exist", id)
	}
	if !slices.Contains(kinds, k) {
		return invalid(field, "feature %s is a %s, want one of %v", id, k, kinds)
	}
	if snap.Index(id) > limit {
		return invalid(field, "feature %s is evaluated after the insertion point", id)
	}
	return nil
}

// checkToken validates a persistent reference token.
func checkToken(snap *document.Snapshot, field, token string, want geom.ElementType) error {
	ref, err := naming.Decode(token)
	if err != nil {
		return &ValidationError{Field: field, Message: err.Error(), Err: err}
	}
	if ref.ExpectedType != want {
		return invalid(field, "reference is a %s, want a %s", ref.ExpectedType, want)
	}
	if !snap.Has(ref.OriginFeatureID) {
		return invalid(field, "reference origin %s does not exist", ref.OriginFeatureID)
	}
	return nil
}

// checkTarget validates an input that is either a FeatureID or a token.
func checkTarget(snap *document.Snapshot, field, target string, limit int, want geom.ElementType, kinds []document.Kind) error {
	if document.IsRefToken(target) {
		return checkToken(snap, field, target, want)
	}
	return checkFeature(snap, field, document.FeatureID(target), limit, kinds)
}

func checkRefParam(snap *document.Snapshot, field string, rp document.RefParam, want geom.ElementType) error {
	for _, t := range rp.Tokens() {
		if err := checkToken(snap, field, t, want); err != nil {
			return err
		}
	}
	return nil
}

func checkEnum(field, v string, allowed ...string) error {
	if !slices.Contains(allowed, v) {
		return invalid(field, "%q is not one of %v", v, allowed)
	}
	return nil
}

func checkParam(field string, p document.Param) error {
	if !p.IsExpr() && (math.IsNaN(p.Value) || math.IsInf(p.Value, 0)) {
		return invalid(field, "must be finite")
	}
	return nil
}

func checkVec(field string, v *[3]float64) error {
	if v == nil {
		return nil
	}
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return invalid(field, "must be finite")
		}
	}
	return nil
}
