package rebuild

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
)

func TestScope_Eval(t *testing.T) {
	s := NewScope(map[string]ir.Value{
		"width":  ir.Float(20),
		"count":  ir.Int(3),
		"half":   ir.String("=width / 2"),
		"radius": ir.String("=half - 1"),
	})

	cases := []struct {
		expr string
		want float64
	}{
		{"width * 2", 40},
		{"half + radius", 19},
		{"count * 2", 6},
		{"max(width, 30.0)", 30},
		{"sqrt(16.0) + abs(-1.0)", 5},
		{"deg(pi)", 180},
		{"cos(rad(180.0))", -1},
		{"width > 10 ? 1 : 2", 1},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := s.Eval(document.Expr(tc.expr))
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}

	got, err := s.Eval(document.Num(7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)
}

func TestScope_Errors(t *testing.T) {
	s := NewScope(map[string]ir.Value{
		"a":    ir.String("=b + 1"),
		"b":    ir.String("=c + 1"),
		"c":    ir.String("=a + 1"),
		"zero": ir.Float(0),
		"bad":  ir.Bool(true),
	})

	_, err := s.Eval(document.Expr("a"))
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"a", "b", "c", "a"}, ce.Path)

	for _, expr := range []string{"nope + 1", "1 +", "1 / zero", `"text"`, "bad * 2"} {
		t.Run(expr, func(t *testing.T) {
			_, err := s.Eval(document.Expr(expr))
			require.Error(t, err)
		})
	}

	_, err = s.Eval(document.Expr("1 / zero"))
	var ee *ExpressionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Reason, "not finite")
}

func TestScope_Values(t *testing.T) {
	s := NewScope(map[string]ir.Value{
		"w":    ir.Float(2),
		"area": ir.String("=w * w"),
		"loop": ir.String("=loop"),
	})
	vals, errs := s.Values()
	assert.Equal(t, map[string]float64{"w": 2, "area": 4}, vals)
	require.Contains(t, errs, "loop")
	assert.Equal(t, "variable cycle: loop -> loop", errs["loop"].Error())
	assert.False(t, math.IsNaN(vals["area"]))
}
