package nodesystem

import (
	"fmt"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/chazu/plantarium/pkg/expr"
	"github.com/chazu/plantarium/pkg/geometry"
)

// DefaultResX is the default number of vertices per tube ring.
const DefaultResX = 8

// Settings are generation settings shared by every node of a system.
type Settings struct {
	ResX        int `json:"resX" yaml:"resX" mapstructure:"res_x"`
	SphereCells int `json:"sphereCells" yaml:"sphereCells" mapstructure:"sphere_cells"`
}

func (s Settings) withDefaults() Settings {
	if s.ResX < geometry.MinRingResolution {
		s.ResX = DefaultResX
	}
	if s.SphereCells <= 0 {
		s.SphereCells = geometry.DefaultSphereCells
	}
	return s
}

// Context is handed to a node's compute functions.
type Context struct {
	NodeID   string
	Settings Settings

	seed uint64
	expr *expr.Evaluator
}

// NewContext creates the context a node's compute functions receive. It is
// exported so node types can be exercised without a System; ev may be nil,
// which disables expressions.
func NewContext(nodeID string, settings Settings, ev *expr.Evaluator) *Context {
	return newContext(nodeID, settings.withDefaults(), ev)
}

func newContext(nodeID string, settings Settings, ev *expr.Evaluator) *Context {
	return &Context{
		NodeID:   nodeID,
		Settings: settings,
		seed:     xxhash.Sum64String(nodeID),
		expr:     ev,
	}
}

// Random returns a value in [0, 1) that is fixed for this node and index.
func (c *Context) Random(index int) float64 {
	return rand.New(rand.NewPCG(c.seed, uint64(index))).Float64()
}

// HandleParameter resolves a parameter value to a number for the given
// element index and position alpha in [0,1].
//
// Literal numbers are returned as is. Value objects are resolved in order:
// the expression (with value, alpha and i bound) replaces the value, the
// variation scales it down by up to variation*value using Random(index), and
// the curve multiplies it by the curve sampled at alpha.
func (c *Context) HandleParameter(v any, index int, alpha float64) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case ParameterValue:
		return c.resolve(x, index, alpha)
	case *ParameterValue:
		if x == nil {
			return 0, nil
		}
		return c.resolve(*x, index, alpha)
	case *Result:
		return 0, fmt.Errorf("%w: connected socket is not a number", ErrInvalidParameter)
	}
	nv, err := normalizeValue(v)
	if err != nil {
		return 0, err
	}
	if _, ok := nv.(string); ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidParameter, nv)
	}
	return c.HandleParameter(nv, index, alpha)
}

func (c *Context) resolve(pv ParameterValue, index int, alpha float64) (float64, error) {
	v := pv.Value
	if pv.Expr != "" {
		if c.expr == nil {
			return 0, fmt.Errorf("%w: expressions are disabled", ErrInvalidParameter)
		}
		r, err := c.expr.Eval(pv.Expr, map[string]float64{
			"value": v,
			"alpha": alpha,
			"i":     float64(index),
		})
		if err != nil {
			return 0, fmt.Errorf("expression %q: %w", pv.Expr, err)
		}
		v = r
	}
	if pv.Variation != 0 {
		v -= v * pv.Variation * c.Random(index)
	}
	if len(pv.Curve) > 0 {
		v *= geometry.SampleCurve(pv.Curve, alpha)
	}
	return v, nil
}

// Float resolves the named parameter with index 0 at alpha 0.
func (c *Context) Float(p Parameters, name string) (float64, error) {
	v, err := c.HandleParameter(p[name], 0, 0)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Int resolves the named parameter and rounds it to the nearest integer.
func (c *Context) Int(p Parameters, name string) (int, error) {
	v, err := c.Float(p, name)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return int(v - 0.5), nil
	}
	return int(v + 0.5), nil
}
