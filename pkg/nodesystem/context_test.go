package nodesystem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/plantarium/pkg/expr"
	"github.com/chazu/plantarium/pkg/geometry"
)

func TestHandleParameterLiterals(t *testing.T) {
	ctx := newContext("n1", Settings{}, nil)

	v, err := ctx.HandleParameter(2.5, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = ctx.HandleParameter(3, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = ctx.HandleParameter(true, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = ctx.HandleParameter("tall", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = ctx.HandleParameter(&Result{}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestHandleParameterVariation(t *testing.T) {
	ctx := newContext("n1", Settings{}, nil)
	pv := ParameterValue{Value: 10, Variation: 0.5}

	for i := 0; i < 20; i++ {
		v, err := ctx.HandleParameter(pv, i, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 5.0)
		assert.LessOrEqual(t, v, 10.0)

		again, err := newContext("n1", Settings{}, nil).HandleParameter(pv, i, 0)
		require.NoError(t, err)
		assert.Equal(t, v, again, "variation is deterministic per node and index")
	}

	a, _ := newContext("n1", Settings{}, nil).HandleParameter(pv, 0, 0)
	b, _ := newContext("n2", Settings{}, nil).HandleParameter(pv, 0, 0)
	assert.NotEqual(t, a, b)
}

func TestHandleParameterCurve(t *testing.T) {
	ctx := newContext("n1", Settings{}, nil)
	pv := ParameterValue{Value: 4, Curve: []geometry.CurvePoint{{X: 0, Y: 0}, {X: 1, Y: 1}}}

	v, err := ctx.HandleParameter(pv, 0, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9)

	v, err = ctx.HandleParameter(map[string]any{"value": 4.0, "curve": []any{
		map[string]any{"x": 0.0, "y": 1.0},
		map[string]any{"x": 1.0, "y": 0.0},
	}}, 0, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9)
}

func TestHandleParameterExpression(t *testing.T) {
	ctx := newContext("n1", Settings{}, expr.NewEvaluator(time.Second))

	v, err := ctx.HandleParameter(ParameterValue{Value: 2, Expr: "(* value 3)"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	v, err = ctx.HandleParameter(ParameterValue{Value: 1, Expr: "(+ value i alpha)"}, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = ctx.HandleParameter(ParameterValue{Value: 1, Expr: "(+ value"}, 0, 0)
	assert.Error(t, err)

	_, err = newContext("n1", Settings{}, nil).HandleParameter(ParameterValue{Value: 1, Expr: "value"}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestContextIntRounds(t *testing.T) {
	ctx := newContext("n1", Settings{}, nil)
	n, err := ctx.Int(Parameters{"count": 2.6}, "count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = ctx.Int(Parameters{"count": -2.6}, "count")
	require.NoError(t, err)
	assert.Equal(t, -3, n)
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()
	assert.Equal(t, DefaultResX, s.ResX)
	assert.Equal(t, geometry.DefaultSphereCells, s.SphereCells)
	assert.Equal(t, 16, Settings{ResX: 16}.withDefaults().ResX)
}

func TestExpressionParameterInGraph(t *testing.T) {
	f := newFixture(t, true)
	f.chain(t)
	require.NoError(t, f.sys.SetParameter("scale", "factor", ParameterValue{Value: 2, Expr: "(+ value 1)"}))
	assert.Equal(t, float32(3), tipY(t, f.sys.Result()))
}
