package command

import (
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/ir"
)

// DeleteFeature removes a feature from the order and the feature map.
// Dependents are not deleted; their references stop resolving. A gate on
// the deleted feature moves to its predecessor.
func (l *Layer) DeleteFeature(id document.FeatureID) error {
	return l.update("deleteFeature", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		if _, err := mutable(snap, id, "delete"); err != nil {
			return err
		}
		if snap.Gate == id {
			i := snap.Index(id)
			var prev document.FeatureID
			if i > 0 {
				prev = snap.Order[i-1]
			}
			tx.SetGate(prev)
		}
		tx.Delete(id)
		return nil
	})
}

// RenameFeature sets a feature's display name (NFC, trimmed, non-empty).
func (l *Layer) RenameFeature(id document.FeatureID, name string) error {
	clean, err := cleanName("name", name)
	if err != nil {
		return err
	}
	return l.update("renameFeature", func(tx *document.Tx) error {
		if _, err := mutable(tx.Snapshot(), id, "rename"); err != nil {
			return err
		}
		tx.SetField(id, "name", ir.String(clean))
		return nil
	})
}

// SuppressFeature sets whether a feature is skipped by rebuilds.
func (l *Layer) SuppressFeature(id document.FeatureID, suppressed bool) error {
	return l.update("suppressFeature", func(tx *document.Tx) error {
		if _, err := mutable(tx.Snapshot(), id, "suppress"); err != nil {
			return err
		}
		tx.SetField(id, "suppressed", ir.Bool(suppressed))
		return nil
	})
}

// SetVisibility shows or hides a feature. Datums may be hidden.
func (l *Layer) SetVisibility(id document.FeatureID, visible bool) error {
	return l.update("setVisibility", func(tx *document.Tx) error {
		if _, err := existing(tx.Snapshot(), id); err != nil {
			return err
		}
		tx.SetField(id, "visible", ir.Bool(visible))
		return nil
	})
}

// ToggleVisibility flips a feature's visibility and returns the new value.
func (l *Layer) ToggleVisibility(id document.FeatureID) (bool, error) {
	var visible bool
	err := l.update("toggleVisibility", func(tx *document.Tx) error {
		f, err := existing(tx.Snapshot(), id)
		if err != nil {
			return err
		}
		visible = f.Base().Hidden
		tx.SetField(id, "visible", ir.Bool(visible))
		return nil
	})
	return visible, err
}

// ModifyFeatureParam writes one parameter of a feature. The key must be a
// writable parameter of the feature's kind and the resulting record must
// still decode.
func (l *Layer) ModifyFeatureParam(id document.FeatureID, key string, value ir.Value) error {
	return l.update("modifyFeatureParam", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		f, err := mutable(snap, id, "modify")
		if err != nil {
			return err
		}
		spec, ok := document.LookupParam(f.Kind(), key)
		if !ok {
			return invalid(key, "not a writable parameter of %s", f.Kind())
		}
		v, err := normalizeParam(snap, id, spec, value)
		if err != nil {
			return err
		}
		rec := maps.Clone(snap.Records[id])
		rec[key] = v
		if _, err := document.DecodeFeature(rec); err != nil {
			return &ValidationError{Field: key, Message: err.Error(), Err: err}
		}
		tx.SetField(id, key, v)
		return nil
	})
}

// normalizeParam validates value against spec and returns its stored form.
// Inputs of an existing feature must be evaluated before it.
func normalizeParam(snap *document.Snapshot, id document.FeatureID, spec document.ParamSpec, value ir.Value) (ir.Value, error) {
	key := spec.Key
	limit := snap.Index(id) - 1
	if value == nil {
		value = ir.Null{}
	}
	_, isNull := value.(ir.Null)
	if isNull && spec.Optional {
		return ir.Null{}, nil
	}

	switch spec.Type {
	case document.ParamNumber:
		p, err := document.ParamFromValue(value)
		if err != nil {
			return nil, invalid(key, "%v", err)
		}
		if err := checkParam(key, p); err != nil {
			return nil, err
		}
		return p.ToValue(), nil

	case document.ParamEnum:
		s, _ := ir.AsString(value)
		if err := checkEnum(key, s, spec.Enum...); err != nil {
			return nil, err
		}
		return ir.String(s), nil

	case document.ParamTarget:
		s, ok := ir.AsString(value)
		if !ok || s == "" {
			return nil, invalid(key, "must be a feature id or reference token")
		}
		want, kinds := geom.Face, planeKinds
		if key == "axis" || key == "ref" {
			want, kinds = geom.Edge, axisKinds
		}
		if err := checkTarget(snap, key, s, limit, want, kinds); err != nil {
			return nil, err
		}
		return ir.String(s), nil

	case document.ParamRef:
		rp, err := document.RefParamFromValue(value)
		if err != nil {
			return nil, invalid(key, "%v", err)
		}
		if err := checkRefParam(snap, key, rp, geom.Face); err != nil {
			return nil, err
		}
		return rp.ToValue(), nil

	case document.ParamFeature:
		s, _ := ir.AsString(value)
		kinds := solidKinds
		if key == "sketch" {
			kinds = sketchKinds
		}
		if err := checkFeature(snap, key, document.FeatureID(s), limit, kinds); err != nil {
			return nil, err
		}
		return ir.String(s), nil

	case document.ParamFeatures:
		ids, ok := ir.AsStrings(value)
		if !ok {
			return nil, invalid(key, "must be a list of feature ids")
		}
		for _, s := range ids {
			if err := checkFeature(snap, key, document.FeatureID(s), limit, solidKinds); err != nil {
				return nil, err
			}
		}
		return ir.Strings(ids...), nil

	case document.ParamVector:
		arr, ok := value.(ir.Array)
		if !ok || len(arr) != 3 {
			return nil, invalid(key, "must be [x, y, z]")
		}
		out := make(ir.Array, 3)
		for i, c := range arr {
			f, ok := ir.AsFloat(c)
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, invalid(key, "must be [x, y, z]")
			}
			out[i] = ir.Float(f)
		}
		return out, nil
	}
	return nil, invalid(key, "unsupported parameter type")
}

// ReorderFeature moves id to just after the given feature; "" means the
// front of the user region. The target is clamped so nothing lands inside
// the pinned prefix, and datums cannot be moved.
func (l *Layer) ReorderFeature(id, after document.FeatureID) error {
	return l.update("reorderFeature", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		if _, err := mutable(snap, id, "reorder"); err != nil {
			return err
		}
		if after == id {
			return invalid("after", "cannot move a feature after itself")
		}
		prefix := snap.PinnedPrefixLen()
		switch {
		case after == "":
		case !snap.Has(after):
			return featureNotFound(after)
		case snap.Index(after) < prefix-1:
			after = ""
		}
		if after == "" && prefix > 0 {
			after = snap.Order[prefix-1]
		}
		return tx.Move(id, after)
	})
}

// SetRebuildGate sets the edit-in-context boundary; "" clears it.
func (l *Layer) SetRebuildGate(id document.FeatureID) error {
	return l.update("setRebuildGate", func(tx *document.Tx) error {
		snap := tx.Snapshot()
		if id != "" && snap.Index(id) < 0 {
			return featureNotFound(id)
		}
		tx.SetGate(id)
		return nil
	})
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SetVariable writes a document variable: a finite number or an
// "=expression" over other variables.
func (l *Layer) SetVariable(name string, value ir.Value) error {
	if !identRe.MatchString(name) {
		return invalid("name", "%q is not an identifier", name)
	}
	var stored ir.Value
	if f, ok := ir.AsFloat(value); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return invalid("value", "must be finite")
		}
		stored = value
	} else if s, ok := ir.AsString(value); ok && strings.HasPrefix(strings.TrimSpace(s), "=") {
		p, err := document.ParseParam(s)
		if err != nil {
			return invalid("value", "%v", err)
		}
		stored = p.ToValue()
	} else {
		return invalid("value", "must be a number or an =expression")
	}
	return l.update("setVariable", func(tx *document.Tx) error {
		tx.SetVariable(name, stored)
		return nil
	})
}

// DeleteVariable removes a document variable.
func (l *Layer) DeleteVariable(name string) error {
	return l.update("deleteVariable", func(tx *document.Tx) error {
		if _, ok := tx.Snapshot().Variables[name]; !ok {
			return &NotFoundError{What: "variable", ID: name}
		}
		tx.DeleteVariable(name)
		return nil
	})
}

// RenameDocument sets the document name.
func (l *Layer) RenameDocument(name string) error {
	clean, err := cleanName("name", name)
	if err != nil {
		return err
	}
	return l.update("renameDocument", func(tx *document.Tx) error {
		tx.SetMeta(document.MetaName, ir.String(clean))
		return nil
	})
}

// SetUnits sets the document's unit system.
func (l *Layer) SetUnits(units string) error {
	if !slices.Contains(document.Units, units) {
		return invalid("units", "%q is not one of %v", units, document.Units)
	}
	return l.update("setUnits", func(tx *document.Tx) error {
		tx.SetMeta(document.MetaUnits, ir.String(units))
		return nil
	})
}
