package nodes

import (
	"fmt"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// Berries puts a sphere on the tip of every active skeleton.
func Berries() nodesystem.TypeDescriptor {
	return nodesystem.TypeDescriptor{
		Title:   "Berries",
		Type:    "berries",
		Outputs: []string{PlantSocket},
		Order:   []string{"input", "size"},
		Parameters: map[string]nodesystem.ParameterSpec{
			"input": plantInput(),
			"size":  slider(0.01, 1, 0.1),
		},
		ComputeSkeleton: func(p nodesystem.Parameters, _ *nodesystem.Context) (*nodesystem.Result, error) {
			in, err := input(p)
			if err != nil {
				return nil, err
			}
			return in.Clone(), nil
		},
		ComputeGeometry: berriesGeometry,
	}
}

func berriesGeometry(p nodesystem.Parameters, skeleton *nodesystem.Result, ctx *nodesystem.Context) (*nodesystem.Result, error) {
	stems, err := tubes(skeleton.AllSkeletons, ctx.Settings.ResX)
	if err != nil {
		return nil, err
	}
	parts := []*geometry.Geometry{stems}
	for j, sk := range skeleton.Skeletons {
		n := geometry.SkeletonLength(sk)
		if n == 0 {
			continue
		}
		radius, err := param(ctx, p, "size", j, 1)
		if err != nil {
			return nil, err
		}
		if radius <= 0 {
			continue
		}
		tip, _ := geometry.SkeletonPoint(sk, n-1)
		berry, err := geometry.SphereMesh(tip, radius, ctx.Settings.SphereCells)
		if err != nil {
			return nil, fmt.Errorf("berry %d: %w", j, err)
		}
		parts = append(parts, berry)
	}

	out := *skeleton
	out.Geometry = geometry.Join(parts...)
	return &out, nil
}
