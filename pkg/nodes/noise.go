package nodes

import (
	"math"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// Noise displaces the active skeletons with coherent noise. The
// displacement grows along each skeleton, so bases stay put; a strength of
// zero leaves the plant unchanged.
func Noise() nodesystem.TypeDescriptor {
	return nodesystem.TypeDescriptor{
		Title:   "Noise",
		Type:    "noise",
		Outputs: []string{PlantSocket},
		Order:   []string{"input", "size", "strength"},
		Parameters: map[string]nodesystem.ParameterSpec{
			"input": plantInput(),
			"size": {
				Type: "number", InputType: "slider",
				Min: f(0), Max: f(20), Step: f(0.05), Value: 1.0,
			},
			"strength": {
				Type: "number", InputType: "slider",
				Min: f(0), Max: f(2), Step: f(0.01), Value: 0.5,
			},
		},
		ComputeSkeleton: noiseSkeleton,
		ComputeGeometry: skeletonGeometry,
	}
}

func noiseSkeleton(p nodesystem.Parameters, ctx *nodesystem.Context) (*nodesystem.Result, error) {
	in, err := input(p)
	if err != nil {
		return nil, err
	}
	size, err := ctx.Float(p, "size")
	if err != nil {
		return nil, err
	}
	strength, err := ctx.Float(p, "strength")
	if err != nil {
		return nil, err
	}

	out := in.Clone()
	for j, sk := range out.Skeletons {
		n := geometry.SkeletonLength(sk)
		if n == 0 {
			continue
		}
		last := [3]float32{sk[0], sk[1], sk[2]}
		distance := 0.0
		for i := 0; i < n; i++ {
			a := float64(i) / float64(n)
			o := i * geometry.SkeletonStride

			var moved float64
			for k := 0; k < 3; k++ {
				moved += math.Abs(float64(last[k] - sk[o+k]))
				last[k] = sk[o+k]
			}
			distance += moved / 3

			for k := 0; k < 3; k++ {
				offset := float64(k)*1000 + float64(j)*500
				sk[o+k] += float32(geometry.N1D(distance*size+offset) * strength * a)
			}
		}
	}
	return withSkeletons(out, out.Skeletons), nil
}
