// Package nodes is the catalog of built-in plant node types.
//
// Skeleton nodes exchange *nodesystem.Result values on "plant" sockets.
// Skeletons holds the skeletons produced by the most recent stage and is
// always the tail of AllSkeletons, which carries every skeleton of the plant
// so that geometry can be built for the whole of it.
package nodes

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// PlantSocket is the socket type carrying plant skeletons.
const PlantSocket = "plant"

var errNoInput = errors.New("input is not connected")

// All returns the descriptors of every built-in node type.
func All() []nodesystem.TypeDescriptor {
	return []nodesystem.TypeDescriptor{
		Output(),
		Stem(),
		Noise(),
		Gravity(),
		Branches(),
		Berries(),
	}
}

// Select returns the built-in descriptors with the given type keys, in the
// order given. Unknown keys are an error.
func Select(types ...string) ([]nodesystem.TypeDescriptor, error) {
	byType := make(map[string]nodesystem.TypeDescriptor)
	for _, d := range All() {
		byType[d.Type] = d
	}
	out := make([]nodesystem.TypeDescriptor, 0, len(types))
	for _, t := range types {
		d, ok := byType[t]
		if !ok {
			return nil, fmt.Errorf("%w: %q", nodesystem.ErrUnknownType, t)
		}
		out = append(out, d)
	}
	return out, nil
}

func f(v float64) *float64 { return &v }

// slider describes a numeric slider parameter.
func slider(lo, hi, value float64) nodesystem.ParameterSpec {
	return nodesystem.ParameterSpec{
		Type:      "number",
		InputType: "slider",
		Min:       f(lo),
		Max:       f(hi),
		Value:     value,
	}
}

// counter describes an integer slider parameter.
func counter(lo, hi, value float64) nodesystem.ParameterSpec {
	s := slider(lo, hi, value)
	s.Step = f(1)
	return s
}

func plantInput() nodesystem.ParameterSpec {
	return nodesystem.ParameterSpec{Type: PlantSocket, Label: "plant", External: true}
}

func input(p nodesystem.Parameters) (*nodesystem.Result, error) {
	r := p.Input("input")
	if r == nil {
		return nil, errNoInput
	}
	return r, nil
}

// param resolves a parameter for the element at index, positioned at alpha.
func param(ctx *nodesystem.Context, p nodesystem.Parameters, name string, index int, alpha float64) (float64, error) {
	v, err := ctx.HandleParameter(p[name], index, alpha)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// withSkeletons replaces the active skeletons of in.
func withSkeletons(in *nodesystem.Result, skeletons [][]float32) *nodesystem.Result {
	keep := max(len(in.AllSkeletons)-len(in.Skeletons), 0)
	all := make([][]float32, 0, keep+len(skeletons))
	all = append(all, in.AllSkeletons[:keep]...)
	all = append(all, skeletons...)
	return &nodesystem.Result{Skeletons: skeletons, AllSkeletons: all}
}

// tubes extrudes every skeleton with at least two points and joins them.
func tubes(skeletons [][]float32, resX int) (*geometry.Geometry, error) {
	parts := make([]*geometry.Geometry, 0, len(skeletons))
	for i, sk := range skeletons {
		if geometry.SkeletonLength(sk) < 2 {
			continue
		}
		g, err := geometry.ExtrudePath(sk, resX)
		if err != nil {
			return nil, fmt.Errorf("skeleton %d: %w", i, err)
		}
		parts = append(parts, g)
	}
	return geometry.Join(parts...), nil
}

// skeletonGeometry is the geometry phase shared by skeleton nodes: a tube
// around every skeleton of the plant.
func skeletonGeometry(_ nodesystem.Parameters, skeleton *nodesystem.Result, ctx *nodesystem.Context) (*nodesystem.Result, error) {
	g, err := tubes(skeleton.AllSkeletons, ctx.Settings.ResX)
	if err != nil {
		return nil, err
	}
	out := *skeleton
	out.Geometry = g
	return &out, nil
}

// tangentAt returns the unit direction of a skeleton at t.
func tangentAt(skeleton []float32, t float64) v3.Vec {
	const h = 0.01
	a, _ := geometry.InterpolateSkeleton(skeleton, math.Max(t-h, 0))
	b, _ := geometry.InterpolateSkeleton(skeleton, math.Min(t+h, 1))
	d := b.Sub(a)
	if d.Length() < 1e-9 {
		return v3.Vec{Y: 1}
	}
	return d.Normalize()
}

// rotateAround rotates v around the unit axis k by angle radians.
func rotateAround(v, k v3.Vec, angle float64) v3.Vec {
	sin, cos := math.Sincos(angle)
	return v.MulScalar(cos).
		Add(k.Cross(v).MulScalar(sin)).
		Add(k.MulScalar(k.Dot(v) * (1 - cos)))
}
