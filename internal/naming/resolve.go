package naming

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
)

// Method records how a reference was bound.
type Method string

const (
	// MethodSelector means the local selector matched exactly one element.
	MethodSelector Method = "selector"
	// MethodFingerprint means the selector failed and exactly one element
	// matched the fingerprint within tolerance.
	MethodFingerprint Method = "fingerprint"
)

// Tolerance bounds fingerprint matching.
type Tolerance struct {
	// Distance is the maximum centroid distance in model units.
	Distance float64
	// NormalDot is the minimum dot product between unit normals.
	NormalDot float64
	// SizeRatio is the maximum relative size difference.
	SizeRatio float64
}

// DefaultTolerance is used when no tolerance is configured.
func DefaultTolerance() Tolerance {
	return Tolerance{Distance: 0.5, NormalDot: 0.99, SizeRatio: 0.1}
}

// maxCandidates bounds the near-miss list of a broken reference.
const maxCandidates = 3

// GeometrySource exposes the geometry of computed features.
// rebuild.Result implements it.
type GeometrySource interface {
	FeatureGeometry(id document.FeatureID) (*geom.FeatureGeometry, bool)
}

// Binding is a resolved reference.
type Binding struct {
	Element geom.Element
	Method  Method
}

// BrokenReferenceError reports a reference that did not resolve. Candidates
// are tokens for the nearest elements; none of them has been bound.
type BrokenReferenceError struct {
	Ref        string
	Reason     string
	Candidates []string
}

func (e *BrokenReferenceError) Error() string {
	msg := fmt.Sprintf("broken reference %s: %s", abbreviate(e.Ref), e.Reason)
	if len(e.Candidates) > 0 {
		msg += fmt.Sprintf(" (%d candidates)", len(e.Candidates))
	}
	return msg
}

// IsBroken reports whether err is a BrokenReferenceError.
func IsBroken(err error) bool {
	var be *BrokenReferenceError
	return errors.As(err, &be)
}

// Resolve binds ref against the latest rebuild output:
//  1. look up the origin feature's geometry
//  2. apply the local selector; exactly one match binds
//  3. otherwise fall back to the fingerprint within tol; exactly one match binds
//  4. otherwise return a BrokenReferenceError with near-miss candidates
//
// Ambiguous matches never bind.
func Resolve(ref PersistentRef, src GeometrySource, tol Tolerance) (Binding, error) {
	token, err := Encode(ref)
	if err != nil {
		return Binding{}, &BrokenReferenceError{Reason: err.Error()}
	}
	broken := func(reason string, cands []geom.Element) error {
		return &BrokenReferenceError{Ref: token, Reason: reason, Candidates: captureAll(ref.OriginFeatureID, cands)}
	}

	g, ok := src.FeatureGeometry(ref.OriginFeatureID)
	if !ok {
		return Binding{}, broken(fmt.Sprintf("feature %s has no computed geometry", ref.OriginFeatureID), nil)
	}
	pool := g.ElementsOf(ref.ExpectedType)

	var matches []geom.Element
	for _, e := range pool {
		if e.Selector.Equal(ref.Selector) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 1:
		return Binding{Element: matches[0], Method: MethodSelector}, nil
	case 0:
	default:
		return Binding{}, broken(fmt.Sprintf("selector %s matches %d elements", ref.Selector.Kind, len(matches)), matches)
	}

	var fits []geom.Element
	for _, e := range pool {
		if withinTolerance(ref.Fingerprint, e, tol) {
			fits = append(fits, e)
		}
	}
	switch len(fits) {
	case 1:
		return Binding{Element: fits[0], Method: MethodFingerprint}, nil
	case 0:
		return Binding{}, broken("no element matches the selector or fingerprint", nearest(ref.Fingerprint, pool))
	default:
		return Binding{}, broken(fmt.Sprintf("fingerprint matches %d elements", len(fits)), fits)
	}
}

// ResolveToken decodes and resolves a token.
func ResolveToken(token string, src GeometrySource, tol Tolerance) (Binding, error) {
	ref, err := Decode(token)
	if err != nil {
		return Binding{}, err
	}
	return Resolve(ref, src, tol)
}

// ResolveParam resolves a reference parameter. Only the preferred reference
// of a set is resolved; candidates are never chosen automatically.
func ResolveParam(p document.RefParam, src GeometrySource, tol Tolerance) (Binding, error) {
	if p.Preferred == "" {
		return Binding{}, &BrokenReferenceError{
			Reason:     "no preferred reference selected",
			Candidates: slices.Clone(p.Candidates),
		}
	}
	b, err := ResolveToken(p.Preferred, src, tol)
	if err != nil && p.IsSet {
		var be *BrokenReferenceError
		if errors.As(err, &be) {
			for _, c := range p.Candidates {
				if c != p.Preferred && !slices.Contains(be.Candidates, c) {
					be.Candidates = append(be.Candidates, c)
				}
			}
		}
	}
	return b, err
}

func withinTolerance(fp Fingerprint, e geom.Element, tol Tolerance) bool {
	if fp.Centroid.Dist(e.Centroid) > tol.Distance {
		return false
	}
	if !fp.Normal.IsZero() && !e.Normal.IsZero() {
		if fp.Normal.Unit().Dot(e.Normal.Unit()) < tol.NormalDot {
			return false
		}
	}
	scale := math.Max(fp.Size, e.Size)
	if scale > 0 && math.Abs(fp.Size-e.Size)/scale > tol.SizeRatio {
		return false
	}
	return true
}

// nearest returns up to maxCandidates elements ordered by centroid distance.
func nearest(fp Fingerprint, pool []geom.Element) []geom.Element {
	sorted := slices.Clone(pool)
	slices.SortStableFunc(sorted, func(a, b geom.Element) int {
		da, db := fp.Centroid.Dist(a.Centroid), fp.Centroid.Dist(b.Centroid)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return strings.Compare(a.Handle, b.Handle)
	})
	if len(sorted) > maxCandidates {
		sorted = sorted[:maxCandidates]
	}
	return sorted
}

func captureAll(origin document.FeatureID, elems []geom.Element) []string {
	var out []string
	for _, e := range elems {
		if token, err := Encode(Capture(origin, e)); err == nil {
			out = append(out, token)
		}
	}
	return out
}
