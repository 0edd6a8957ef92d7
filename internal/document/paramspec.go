package document

import "slices"

// ParamType classifies the writable parameters of a feature kind.
type ParamType int

const (
	// ParamNumber is a Param (number or "=expr").
	ParamNumber ParamType = iota + 1
	// ParamEnum is a string from a fixed set.
	ParamEnum
	// ParamTarget is a FeatureID or a ref token.
	ParamTarget
	// ParamRef is a RefParam (empty, token or reference set).
	ParamRef
	// ParamFeature is a single FeatureID.
	ParamFeature
	// ParamFeatures is a list of FeatureIDs.
	ParamFeatures
	// ParamVector is an [x, y, z] triple.
	ParamVector
)

// ParamSpec describes one writable parameter.
type ParamSpec struct {
	Key      string
	Type     ParamType
	Enum     []string
	Optional bool
}

// IsReference reports whether the parameter can hold a persistent reference.
func (p ParamSpec) IsReference() bool {
	return p.Type == ParamTarget || p.Type == ParamRef
}

var paramSpecs = map[Kind][]ParamSpec{
	KindOrigin: nil,
	KindPlane: {
		{Key: "base", Type: ParamTarget},
		{Key: "offset", Type: ParamNumber},
	},
	KindAxis: {
		{Key: "ref", Type: ParamTarget, Optional: true},
		{Key: "point", Type: ParamVector, Optional: true},
		{Key: "direction", Type: ParamVector, Optional: true},
	},
	KindSketch: {
		{Key: "plane", Type: ParamTarget},
	},
	KindExtrude: {
		{Key: "sketch", Type: ParamFeature},
		{Key: "distance", Type: ParamNumber},
		{Key: "op", Type: ParamEnum, Enum: solidOps},
		{Key: "extent", Type: ParamEnum, Enum: extents},
		{Key: "extentRef", Type: ParamRef, Optional: true},
		{Key: "mergeScope", Type: ParamEnum, Enum: mergeScopes},
		{Key: "targetBodies", Type: ParamFeatures, Optional: true},
	},
	KindRevolve: {
		{Key: "sketch", Type: ParamFeature},
		{Key: "axis", Type: ParamTarget},
		{Key: "angle", Type: ParamNumber},
		{Key: "op", Type: ParamEnum, Enum: solidOps},
	},
	KindBoolean: {
		{Key: "op", Type: ParamEnum, Enum: booleanOps},
		{Key: "target", Type: ParamFeature},
		{Key: "tools", Type: ParamFeatures},
	},
}

// ParamSpecs returns the writable parameters of kind.
func ParamSpecs(k Kind) []ParamSpec {
	return slices.Clone(paramSpecs[k])
}

// LookupParam finds a writable parameter by key.
func LookupParam(k Kind, key string) (ParamSpec, bool) {
	for _, p := range paramSpecs[k] {
		if p.Key == key {
			return p, true
		}
	}
	return ParamSpec{}, false
}
