package nodes

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// Stem grows amount straight, tapering stems. Stems are spread on a circle
// of radius spread around the origin.
func Stem() nodesystem.TypeDescriptor {
	return nodesystem.TypeDescriptor{
		Title:   "Stem",
		Type:    "stem",
		Outputs: []string{PlantSocket},
		Order:   []string{"amount", "length", "thickness", "spread", "resY"},
		Parameters: map[string]nodesystem.ParameterSpec{
			"amount":    counter(1, 20, 1),
			"length":    slider(0.1, 10, 2),
			"thickness": slider(0.01, 1, 0.2),
			"spread":    slider(0, 5, 0),
			"resY":      counter(3, 64, 20),
		},
		ComputeSkeleton: stemSkeleton,
		ComputeGeometry: skeletonGeometry,
	}
}

func stemSkeleton(p nodesystem.Parameters, ctx *nodesystem.Context) (*nodesystem.Result, error) {
	amount, err := ctx.Int(p, "amount")
	if err != nil {
		return nil, err
	}
	resY, err := ctx.Int(p, "resY")
	if err != nil {
		return nil, err
	}
	spread, err := ctx.Float(p, "spread")
	if err != nil {
		return nil, err
	}
	amount = max(amount, 1)
	resY = max(resY, 2)

	stems := make([][]float32, amount)
	for i := range stems {
		alpha := 0.0
		if amount > 1 {
			alpha = float64(i) / float64(amount-1)
		}
		length, err := param(ctx, p, "length", i, alpha)
		if err != nil {
			return nil, err
		}
		thickness, err := param(ctx, p, "thickness", i, alpha)
		if err != nil {
			return nil, err
		}

		sin, cos := math.Sincos(2 * math.Pi * float64(i) / float64(amount))
		origin := v3.Vec{X: spread * cos, Z: spread * sin}

		sk := make([]float32, resY*geometry.SkeletonStride)
		for j := 0; j < resY; j++ {
			t := float64(j) / float64(resY-1)
			geometry.SetSkeletonPoint(sk, j, origin.Add(v3.Vec{Y: length * t}), thickness*(1-t))
		}
		stems[i] = sk
	}
	return &nodesystem.Result{Skeletons: stems, AllSkeletons: stems}, nil
}
