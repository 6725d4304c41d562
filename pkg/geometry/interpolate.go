package geometry

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Lerp linearly interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// InterpolateArray samples a control-point array at t ∈ [0,1], treating the
// points as evenly spaced and interpolating linearly between neighbours.
// t is clamped; an empty array yields 0.
func InterpolateArray(values []float64, t float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}
	t = clamp01(t)
	pos := t * float64(len(values)-1)
	i := int(math.Floor(pos))
	if i >= len(values)-1 {
		return values[len(values)-1]
	}
	return Lerp(values[i], values[i+1], pos-float64(i))
}

// SkeletonStride is the number of floats per skeleton point: x, y, z and
// thickness.
const SkeletonStride = 4

// SkeletonLength returns the number of points of a stride-4 skeleton.
func SkeletonLength(skeleton []float32) int {
	return len(skeleton) / SkeletonStride
}

// SkeletonPoint returns the position and thickness of the i-th point.
func SkeletonPoint(skeleton []float32, i int) (v3.Vec, float64) {
	o := i * SkeletonStride
	return v3.Vec{
		X: float64(skeleton[o]),
		Y: float64(skeleton[o+1]),
		Z: float64(skeleton[o+2]),
	}, float64(skeleton[o+3])
}

// SetSkeletonPoint writes the position and thickness of the i-th point.
func SetSkeletonPoint(skeleton []float32, i int, p v3.Vec, thickness float64) {
	o := i * SkeletonStride
	skeleton[o] = float32(p.X)
	skeleton[o+1] = float32(p.Y)
	skeleton[o+2] = float32(p.Z)
	skeleton[o+3] = float32(thickness)
}

// InterpolateSkeleton returns the position and thickness at t ∈ [0,1] along
// a stride-4 skeleton, where t is measured in point index space.
func InterpolateSkeleton(skeleton []float32, t float64) (v3.Vec, float64) {
	n := SkeletonLength(skeleton)
	if n == 0 {
		return v3.Vec{}, 0
	}
	if n == 1 {
		return SkeletonPoint(skeleton, 0)
	}
	pos := clamp01(t) * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		return SkeletonPoint(skeleton, n-1)
	}
	a, ta := SkeletonPoint(skeleton, i)
	b, tb := SkeletonPoint(skeleton, i+1)
	f := pos - float64(i)
	return a.Add(b.Sub(a).MulScalar(f)), Lerp(ta, tb, f)
}

// SkeletonPositions strips the thickness channel, returning flat xyz triples.
func SkeletonPositions(skeleton []float32) []float32 {
	n := SkeletonLength(skeleton)
	out := make([]float32, n*3)
	for i := 0; i < n; i++ {
		copy(out[i*3:i*3+3], skeleton[i*SkeletonStride:i*SkeletonStride+3])
	}
	return out
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}
