package naming

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/geom"
	"github.com/roach88/parcad/internal/ir"
)

// Fingerprint summarizes an element's geometry for fallback matching.
type Fingerprint struct {
	Centroid geom.Vec3
	Normal   geom.Vec3
	Size     float64
}

// PersistentRef points at geometry produced by an earlier feature.
//
// Selector.Data is nil when the selector carries no data.
type PersistentRef struct {
	Version         int
	ExpectedType    geom.ElementType
	OriginFeatureID document.FeatureID
	Selector        geom.Selector
	Fingerprint     Fingerprint
}

// DecodeError reports a malformed reference token.
type DecodeError struct {
	Token  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed reference %s: %s", abbreviate(e.Token), e.Reason)
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func abbreviate(token string) string {
	if len(token) > 24 {
		return token[:24] + "..."
	}
	return token
}

func vecValue(v geom.Vec3) ir.Value {
	return ir.Array{ir.Float(v[0]), ir.Float(v[1]), ir.Float(v[2])}
}

// toObject renders ref in its canonical object form.
func (ref PersistentRef) toObject() ir.Object {
	data := make(ir.Object, len(ref.Selector.Data))
	for k, v := range ref.Selector.Data {
		data[k] = ir.String(v)
	}
	return ir.Object{
		"version":         ir.Int(int64(ref.Version)),
		"expectedType":    ir.String(ref.ExpectedType),
		"originFeatureId": ir.String(ref.OriginFeatureID),
		"localSelector": ir.Object{
			"kind": ir.String(ref.Selector.Kind),
			"data": data,
		},
		"fingerprint": ir.Object{
			"centroid": vecValue(ref.Fingerprint.Centroid),
			"normal":   vecValue(ref.Fingerprint.Normal),
			"size":     ir.Float(ref.Fingerprint.Size),
		},
	}
}

// Encode serializes ref as "pr1." + base64url(canonical JSON).
// Encoding is deterministic: equal refs produce equal tokens.
func Encode(ref PersistentRef) (string, error) {
	data, err := ir.MarshalCanonical(ref.toObject())
	if err != nil {
		return "", fmt.Errorf("encode reference: %w", err)
	}
	return document.RefTokenPrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// MustEncode is Encode for refs known to be finite, such as those built by
// Capture from kernel output.
func MustEncode(ref PersistentRef) string {
	token, err := Encode(ref)
	if err != nil {
		panic(err)
	}
	return token
}

// Decode parses and validates a token.
func Decode(token string) (PersistentRef, error) {
	fail := func(format string, args ...any) (PersistentRef, error) {
		return PersistentRef{}, &DecodeError{Token: token, Reason: fmt.Sprintf(format, args...)}
	}

	payload, ok := strings.CutPrefix(token, document.RefTokenPrefix)
	if !ok {
		return fail("missing %q prefix", document.RefTokenPrefix)
	}
	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return fail("invalid base64url: %v", err)
	}
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return fail("invalid JSON: %v", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return fail("payload must be an object")
	}
	if err := exactKeys(obj, "version", "expectedType", "originFeatureId", "localSelector", "fingerprint"); err != nil {
		return fail("%v", err)
	}

	var ref PersistentRef
	version, ok := obj["version"].(ir.Int)
	if !ok || int(version) != ir.RefVersion {
		return fail("unsupported version %v", ir.ToAny(obj["version"]))
	}
	ref.Version = int(version)

	typ, _ := ir.AsString(obj["expectedType"])
	ref.ExpectedType = geom.ElementType(typ)
	if !ref.ExpectedType.Valid() {
		return fail("expectedType must be face, edge or vertex")
	}

	origin, _ := ir.AsString(obj["originFeatureId"])
	if origin == "" {
		return fail("originFeatureId must be a non-empty string")
	}
	ref.OriginFeatureID = document.FeatureID(origin)

	sel, ok := obj["localSelector"].(ir.Object)
	if !ok {
		return fail("localSelector must be an object")
	}
	if err := exactKeys(sel, "kind", "data"); err != nil {
		return fail("localSelector: %v", err)
	}
	kind, _ := ir.AsString(sel["kind"])
	if kind == "" {
		return fail("localSelector.kind must be a non-empty string")
	}
	ref.Selector.Kind = kind
	selData, ok := sel["data"].(ir.Object)
	if !ok {
		return fail("localSelector.data must be an object")
	}
	if len(selData) > 0 {
		ref.Selector.Data = make(map[string]string, len(selData))
		for k, v := range selData {
			s, ok := ir.AsString(v)
			if !ok {
				return fail("localSelector.data.%s must be a string", k)
			}
			ref.Selector.Data[k] = s
		}
	}

	fp, ok := obj["fingerprint"].(ir.Object)
	if !ok {
		return fail("fingerprint must be an object")
	}
	if err := exactKeys(fp, "centroid", "normal", "size"); err != nil {
		return fail("fingerprint: %v", err)
	}
	if ref.Fingerprint.Centroid, ok = vecFromValue(fp["centroid"]); !ok {
		return fail("fingerprint.centroid must be [x, y, z]")
	}
	if ref.Fingerprint.Normal, ok = vecFromValue(fp["normal"]); !ok {
		return fail("fingerprint.normal must be [x, y, z]")
	}
	size, ok := ir.AsFloat(fp["size"])
	if !ok || size < 0 {
		return fail("fingerprint.size must be a non-negative number")
	}
	ref.Fingerprint.Size = size

	return ref, nil
}

func exactKeys(obj ir.Object, keys ...string) error {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing %q", k)
		}
	}
	if len(obj) != len(keys) {
		for _, k := range obj.SortedKeys() {
			known := false
			for _, want := range keys {
				known = known || k == want
			}
			if !known {
				return fmt.Errorf("unknown field %q", k)
			}
		}
	}
	return nil
}

func vecFromValue(v ir.Value) (geom.Vec3, bool) {
	arr, ok := v.(ir.Array)
	if !ok || len(arr) != 3 {
		return geom.Vec3{}, false
	}
	var out geom.Vec3
	for i, elem := range arr {
		f, ok := ir.AsFloat(elem)
		if !ok {
			return geom.Vec3{}, false
		}
		out[i] = f
	}
	return out, true
}

// Capture builds a reference to an element produced by feature origin,
// e.g. the face a user just picked.
func Capture(origin document.FeatureID, e geom.Element) PersistentRef {
	sel := geom.Selector{Kind: e.Selector.Kind}
	if len(e.Selector.Data) > 0 {
		sel.Data = make(map[string]string, len(e.Selector.Data))
		for k, v := range e.Selector.Data {
			sel.Data[k] = v
		}
	}
	return PersistentRef{
		Version:         ir.RefVersion,
		ExpectedType:    e.Type,
		OriginFeatureID: origin,
		Selector:        sel,
		Fingerprint: Fingerprint{
			Centroid: e.Centroid,
			Normal:   e.Normal,
			Size:     e.Size,
		},
	}
}
