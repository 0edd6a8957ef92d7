package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/parcad/internal/ir"
)

// RefTokenPrefix marks a string as a persistent reference token rather than
// a feature id. The naming package owns the token format.
const RefTokenPrefix = "pr1."

// IsRefToken reports whether s looks like a persistent reference token.
func IsRefToken(s string) bool {
	return strings.HasPrefix(s, RefTokenPrefix)
}

// Param is a numeric parameter: either a literal number or an expression
// over document variables written as "=expr".
type Param struct {
	Value float64
	Expr  string
}

// Num returns a literal parameter.
func Num(v float64) Param {
	return Param{Value: v}
}

// Expr returns an expression parameter. The leading '=' is optional.
func Expr(code string) Param {
	return Param{Expr: strings.TrimPrefix(code, "=")}
}

// IsExpr reports whether p must be evaluated against variables.
func (p Param) IsExpr() bool {
	return p.Expr != ""
}

// String renders p the way users type it.
func (p Param) String() string {
	if p.IsExpr() {
		return "=" + p.Expr
	}
	return ir.FormatFloat(p.Value)
}

// ToValue encodes p as a replicated value.
func (p Param) ToValue() ir.Value {
	if p.IsExpr() {
		return ir.String("=" + p.Expr)
	}
	return ir.Float(p.Value)
}

// ParamFromValue decodes a replicated value into a Param.
func ParamFromValue(v ir.Value) (Param, error) {
	if f, ok := ir.AsFloat(v); ok {
		return Num(f), nil
	}
	if s, ok := ir.AsString(v); ok {
		return ParseParam(s)
	}
	return Param{}, fmt.Errorf("parameter must be a number or \"=expression\", got %T", v)
}

// ParseParam accepts "=expr" or a numeric literal.
func ParseParam(s string) (Param, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=") {
		code := strings.TrimSpace(s[1:])
		if code == "" {
			return Param{}, fmt.Errorf("empty expression")
		}
		return Param{Expr: code}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Param{}, fmt.Errorf("invalid parameter %q", s)
	}
	return Num(f), nil
}

// MarshalJSON encodes literals as numbers and expressions as strings.
func (p Param) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(p.ToValue())
}

// UnmarshalJSON accepts a JSON number or a string.
func (p *Param) UnmarshalJSON(data []byte) error {
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return err
	}
	parsed, err := ParamFromValue(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RefParam is a reference-valued parameter: empty, a single token, or a
// reference set {preferred, candidates} kept for ambiguous matches.
type RefParam struct {
	Preferred  string
	Candidates []string
	IsSet      bool
}

// Ref returns a single-token parameter.
func Ref(token string) RefParam {
	return RefParam{Preferred: token}
}

// RefSet returns a reference set.
func RefSet(preferred string, candidates ...string) RefParam {
	return RefParam{Preferred: preferred, Candidates: candidates, IsSet: true}
}

// IsEmpty reports whether nothing is referenced.
func (r RefParam) IsEmpty() bool {
	return r.Preferred == "" && !r.IsSet
}

// Tokens returns every token held by the parameter, preferred first.
func (r RefParam) Tokens() []string {
	var out []string
	if r.Preferred != "" {
		out = append(out, r.Preferred)
	}
	for _, c := range r.Candidates {
		if c != r.Preferred {
			out = append(out, c)
		}
	}
	return out
}

// ToValue encodes the parameter as a replicated value.
func (r RefParam) ToValue() ir.Value {
	if r.IsSet {
		var preferred ir.Value = ir.Null{}
		if r.Preferred != "" {
			preferred = ir.String(r.Preferred)
		}
		return ir.Object{
			"preferred":  preferred,
			"candidates": ir.Strings(r.Candidates...),
		}
	}
	if r.Preferred == "" {
		return ir.Null{}
	}
	return ir.String(r.Preferred)
}

// RefParamFromValue decodes a replicated value.
func RefParamFromValue(v ir.Value) (RefParam, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return RefParam{}, nil
	case ir.String:
		if val == "" {
			return RefParam{}, nil
		}
		return Ref(string(val)), nil
	case ir.Object:
		r := RefParam{IsSet: true}
		if p, ok := val["preferred"].(ir.String); ok {
			r.Preferred = string(p)
		}
		if c, ok := val["candidates"]; ok {
			cands, ok := ir.AsStrings(c)
			if !ok {
				return RefParam{}, fmt.Errorf("reference set candidates must be strings")
			}
			r.Candidates = cands
		}
		return r, nil
	default:
		return RefParam{}, fmt.Errorf("reference must be null, a token or a reference set, got %T", v)
	}
}

// MarshalJSON mirrors ToValue.
func (r RefParam) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(r.ToValue())
}

// UnmarshalJSON mirrors RefParamFromValue.
func (r *RefParam) UnmarshalJSON(data []byte) error {
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return err
	}
	parsed, err := RefParamFromValue(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
