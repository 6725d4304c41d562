package nodesystem

import (
	"strings"

	"github.com/chazu/plantarium/pkg/geometry"
)

// AnyType is the wildcard socket type; it is compatible with every type.
const AnyType = "*"

// ParameterSpec describes one node parameter.
type ParameterSpec struct {
	Type      string   `json:"type" yaml:"type" validate:"required"`
	Label     string   `json:"label,omitempty" yaml:"label,omitempty"`
	External  bool     `json:"external,omitempty" yaml:"external,omitempty"`   // exposed as an input socket
	InputType string   `json:"inputType,omitempty" yaml:"inputType,omitempty"` // ui hint: slider, curve, select
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step      *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Value     any      `json:"value,omitempty" yaml:"value,omitempty"` // default; nil means required
	Values    []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Parameter is a named parameter spec. Node types keep parameters ordered so
// socket order is stable.
type Parameter struct {
	Name string
	Spec ParameterSpec
}

// ComputeSkeletonFunc produces a node's skeleton from resolved parameters.
type ComputeSkeletonFunc func(p Parameters, ctx *Context) (*Result, error)

// ComputeGeometryFunc turns a skeleton result into renderable geometry.
type ComputeGeometryFunc func(p Parameters, skeleton *Result, ctx *Context) (*Result, error)

// NodeType is an immutable node kind definition, registered once per store.
type NodeType struct {
	Title           string
	Type            string
	Parameters      []Parameter
	Outputs         []string
	ComputeSkeleton ComputeSkeletonFunc
	ComputeGeometry ComputeGeometryFunc
}

// Parameter returns the spec of the named parameter.
func (t *NodeType) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p.Spec, true
		}
	}
	return ParameterSpec{}, false
}

// ExternalParameters returns the parameters exposed as input sockets.
func (t *NodeType) ExternalParameters() []Parameter {
	var out []Parameter
	for _, p := range t.Parameters {
		if p.Spec.External {
			out = append(out, p)
		}
	}
	return out
}

// TypeDescriptor is the raw registration input for a node type.
// Parameters is unordered; Order lists parameter names that should come
// first, the rest follow alphabetically.
type TypeDescriptor struct {
	Title           string                   `validate:"required"`
	Type            string                   `validate:"required,excludes=:"`
	Outputs         []string                 `validate:"dive,required"`
	Parameters      map[string]ParameterSpec `validate:"dive"`
	Order           []string
	ComputeSkeleton ComputeSkeletonFunc `validate:"required"`
	ComputeGeometry ComputeGeometryFunc `validate:"required"`
}

// Result is the computed output of a node.
type Result struct {
	Skeletons    [][]float32        `json:"skeletons,omitempty"`
	AllSkeletons [][]float32        `json:"allSkeletons,omitempty"`
	Geometry     *geometry.Geometry `json:"geometry,omitempty"`
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	return &Result{
		Skeletons:    cloneSkeletons(r.Skeletons),
		AllSkeletons: cloneSkeletons(r.AllSkeletons),
		Geometry:     r.Geometry.Clone(),
	}
}

func cloneSkeletons(in [][]float32) [][]float32 {
	if in == nil {
		return nil
	}
	out := make([][]float32, len(in))
	for i, s := range in {
		out[i] = append([]float32(nil), s...)
	}
	return out
}

// Parameters are the resolved parameter values handed to compute functions.
// Values are float64, bool, string, ParameterValue or, for connected
// sockets, the upstream *Result.
type Parameters map[string]any

// Input returns the upstream result connected to the named parameter.
func (p Parameters) Input(name string) *Result {
	r, _ := p[name].(*Result)
	return r
}

// String returns the named parameter as a string.
func (p Parameters) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// ParameterValue is a numeric parameter with optional variation, profile
// curve and expression.
type ParameterValue struct {
	Value     float64               `json:"value" yaml:"value"`
	Variation float64               `json:"variation" yaml:"variation"`
	Curve     []geometry.CurvePoint `json:"curve,omitempty" yaml:"curve,omitempty"`
	Expr      string                `json:"expr,omitempty" yaml:"expr,omitempty"`
}

func (v ParameterValue) clone() ParameterValue {
	v.Curve = append([]geometry.CurvePoint(nil), v.Curve...)
	if len(v.Curve) == 0 {
		v.Curve = nil
	}
	return v
}

// socketTypes splits a "|"-separated socket type into its type set.
func socketTypes(s string) []string {
	parts := strings.Split(s, "|")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// compatible reports whether an output with type set out can feed an input
// with type set in.
func compatible(out, in []string) bool {
	for _, o := range out {
		if o == AnyType {
			return true
		}
	}
	for _, i := range in {
		if i == AnyType {
			return true
		}
		for _, o := range out {
			if i == o {
				return true
			}
		}
	}
	return false
}
