package command

import (
	"maps"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/ir"
)

// refParam looks up a reference-capable parameter of an existing feature.
func refParam(snap *document.Snapshot, id document.FeatureID, param string) (document.ParamSpec, error) {
	f, err := mutable(snap, id, "edit references of")
	if err != nil {
		return document.ParamSpec{}, err
	}
	spec, ok := document.LookupParam(f.Kind(), param)
	if !ok || !spec.IsReference() {
		return document.ParamSpec{}, invalid(param, "not a reference parameter of %s", f.Kind())
	}
	return spec, nil
}

func expectedType(param string) geom.ElementType {
	if param == "axis" || param == "ref" {
		return geom.Edge
	}
	return geom.Face
}

// RepairReference replaces a reference parameter with newRef. The token must
// decode and point at an existing feature. A reference set is replaced by
// the single token.
func (l *Layer) RepairReference(id document.FeatureID, param, newRef string) error {
	return l.update("repairReference", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		spec, err := refParam(snap, id, param)
		if err != nil {
			return err
		}
		if err := checkToken(snap, param, newRef, expectedType(param)); err != nil {
			return err
		}
		var v ir.Value = ir.String(newRef)
		if spec.Type == document.ParamRef {
			v = document.Ref(newRef).ToValue()
		}
		tx.SetField(id, param, v)
		return nil
	})
}

// ClearReference empties an optional reference parameter. Required inputs
// can only be repaired.
func (l *Layer) ClearReference(id document.FeatureID, param string) error {
	return l.update("clearReference", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		spec, err := refParam(snap, id, param)
		if err != nil {
			return err
		}
		if spec.Type != document.ParamRef && !spec.Optional {
			return invalid(param, "is required; repair it instead")
		}
		rec := maps.Clone(snap.Records[id])
		rec[param] = ir.Null{}
		if _, err := document.DecodeFeature(rec); err != nil {
			return &ValidationError{Field: param, Message: err.Error(), Err: err}
		}
		tx.SetField(id, param, ir.Null{})
		return nil
	})
}

// UpdateReferenceSetPreferred selects token as the preferred reference of a
// reference set, appending it to the candidates if needed. A single
// reference becomes a set holding both tokens.
func (l *Layer) UpdateReferenceSetPreferred(id document.FeatureID, param, token string) error {
	return l.update("updateReferenceSetPreferred", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		spec, err := refParam(snap, id, param)
		if err != nil {
			return err
		}
		if spec.Type != document.ParamRef {
			return invalid(param, "does not hold a reference set")
		}
		if err := checkToken(snap, param, token, expectedType(param)); err != nil {
			return err
		}
		cur, err := document.RefParamFromValue(snap.Records[id][param])
		if err != nil {
			return invalid(param, "%v", err)
		}
		cands := slices.Clone(cur.Candidates)
		if cur.Preferred != "" && !slices.Contains(cands, cur.Preferred) {
			cands = append(cands, cur.Preferred)
		}
		if !slices.Contains(cands, token) {
			cands = append(cands, token)
		}
		tx.SetField(id, param, document.RefSet(token, cands...).ToValue())
		return nil
	})
}
