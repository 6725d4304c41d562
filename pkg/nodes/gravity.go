package nodes

import (
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

var down = v3.Vec{Y: -1}

// Gravity bends the active skeletons downwards. Each segment keeps its
// length; its direction is pulled towards -Y by strength, increasingly so
// towards the tip.
func Gravity() nodesystem.TypeDescriptor {
	return nodesystem.TypeDescriptor{
		Title:   "Gravity",
		Type:    "gravity",
		Outputs: []string{PlantSocket},
		Order:   []string{"input", "strength"},
		Parameters: map[string]nodesystem.ParameterSpec{
			"input":    plantInput(),
			"strength": slider(0, 1, 0.3),
		},
		ComputeSkeleton: gravitySkeleton,
		ComputeGeometry: skeletonGeometry,
	}
}

func gravitySkeleton(p nodesystem.Parameters, ctx *nodesystem.Context) (*nodesystem.Result, error) {
	in, err := input(p)
	if err != nil {
		return nil, err
	}

	out := in.Clone()
	for j, sk := range out.Skeletons {
		strength, err := param(ctx, p, "strength", j, 0)
		if err != nil {
			return nil, err
		}
		bend(in.Skeletons[j], sk, strength)
	}
	return withSkeletons(out, out.Skeletons), nil
}

// bend writes the bent version of src into dst, which has the same length.
func bend(src, dst []float32, strength float64) {
	n := geometry.SkeletonLength(src)
	if n < 2 || strength == 0 {
		return
	}
	prev, _ := geometry.SkeletonPoint(src, 0)
	placed := prev
	for i := 1; i < n; i++ {
		cur, thickness := geometry.SkeletonPoint(src, i)
		d := cur.Sub(prev)
		prev = cur

		l := d.Length()
		if l < 1e-9 {
			geometry.SetSkeletonPoint(dst, i, placed, thickness)
			continue
		}
		alpha := float64(i) / float64(n-1)
		dir := d.MulScalar(1 / l).Add(down.MulScalar(strength * alpha))
		if dir.Length() < 1e-9 {
			dir = down
		} else {
			dir = dir.Normalize()
		}
		placed = placed.Add(dir.MulScalar(l))
		geometry.SetSkeletonPoint(dst, i, placed, thickness)
	}
}
