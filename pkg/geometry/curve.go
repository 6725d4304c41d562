package geometry

import "sort"

// CurvePoint is a control point of a user-drawn profile curve. X runs over
// [0,1]; Y is the profile value at X.
type CurvePoint struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// SampleCurve evaluates the piecewise-linear curve at x. Points need not be
// sorted. Outside the covered range the nearest end value is returned; an
// empty curve yields 1 so that it acts as a neutral multiplier.
func SampleCurve(points []CurvePoint, x float64) float64 {
	if len(points) == 0 {
		return 1
	}
	pts := sortedCurve(points)
	if x <= pts[0].X {
		return pts[0].Y
	}
	last := pts[len(pts)-1]
	if x >= last.X {
		return last.Y
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].X >= x })
	a, b := pts[i-1], pts[i]
	if b.X == a.X {
		return b.Y
	}
	return Lerp(a.Y, b.Y, (x-a.X)/(b.X-a.X))
}

// CurveToArray samples the curve at resolution evenly spaced positions over
// [0,1], producing a control-point array for InterpolateArray.
func CurveToArray(points []CurvePoint, resolution int) []float64 {
	if resolution < 2 {
		resolution = 2
	}
	out := make([]float64, resolution)
	for i := range out {
		out[i] = SampleCurve(points, float64(i)/float64(resolution-1))
	}
	return out
}

func sortedCurve(points []CurvePoint) []CurvePoint {
	if sort.SliceIsSorted(points, func(i, j int) bool { return points[i].X < points[j].X }) {
		return points
	}
	pts := append([]CurvePoint(nil), points...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	return pts
}
