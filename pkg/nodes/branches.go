package nodes

import (
	"math"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// goldenAngle spaces successive branches around their parent.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// Branches grows amount branches off every active skeleton, evenly spaced
// between lowest and the tip. The branches become the active skeletons.
func Branches() nodesystem.TypeDescriptor {
	return nodesystem.TypeDescriptor{
		Title:   "Branches",
		Type:    "branches",
		Outputs: []string{PlantSocket},
		Order:   []string{"input", "amount", "length", "angle", "lowest", "thickness", "resY"},
		Parameters: map[string]nodesystem.ParameterSpec{
			"input":     plantInput(),
			"amount":    counter(0, 20, 4),
			"length":    slider(0.05, 5, 0.6),
			"angle":     slider(0, 90, 45),
			"lowest":    slider(0, 1, 0.3),
			"thickness": slider(0, 1, 0.5),
			"resY":      counter(3, 32, 8),
		},
		ComputeSkeleton: branchesSkeleton,
		ComputeGeometry: skeletonGeometry,
	}
}

func branchesSkeleton(p nodesystem.Parameters, ctx *nodesystem.Context) (*nodesystem.Result, error) {
	in, err := input(p)
	if err != nil {
		return nil, err
	}
	amount, err := ctx.Int(p, "amount")
	if err != nil {
		return nil, err
	}
	resY, err := ctx.Int(p, "resY")
	if err != nil {
		return nil, err
	}
	lowest, err := ctx.Float(p, "lowest")
	if err != nil {
		return nil, err
	}
	thick, err := ctx.Float(p, "thickness")
	if err != nil {
		return nil, err
	}
	amount = max(amount, 0)
	resY = max(resY, 2)

	var branches [][]float32
	for j, parent := range in.Skeletons {
		if geometry.SkeletonLength(parent) < 2 {
			continue
		}
		for k := 0; k < amount; k++ {
			index := j*amount + k
			a := lowest + (1-lowest)*(float64(k)+0.5)/float64(amount)

			length, err := param(ctx, p, "length", index, a)
			if err != nil {
				return nil, err
			}
			angle, err := param(ctx, p, "angle", index, a)
			if err != nil {
				return nil, err
			}

			origin, parentThickness := geometry.InterpolateSkeleton(parent, a)
			tangent := tangentAt(parent, a)
			turn := float64(k)*goldenAngle + ctx.Random(index)*0.3
			side := rotateAround(geometry.OrthogonalVector(tangent), tangent, turn)
			sin, cos := math.Sincos(angle * math.Pi / 180)
			dir := tangent.MulScalar(cos).Add(side.MulScalar(sin))

			sk := make([]float32, resY*geometry.SkeletonStride)
			for m := 0; m < resY; m++ {
				t := float64(m) / float64(resY-1)
				geometry.SetSkeletonPoint(sk, m, origin.Add(dir.MulScalar(length*t)), parentThickness*thick*(1-t))
			}
			branches = append(branches, sk)
		}
	}

	all := make([][]float32, 0, len(in.AllSkeletons)+len(branches))
	all = append(all, in.Clone().AllSkeletons...)
	all = append(all, branches...)
	return &nodesystem.Result{Skeletons: branches, AllSkeletons: all}, nil
}
