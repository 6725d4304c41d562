package geometry

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MinRingResolution is the smallest number of vertices per ring.
const MinRingResolution = 3

const epsilon = 1e-9

var up = v3.Vec{X: 0, Y: 1, Z: 0}

// Tube extrudes an open tube around a skeleton of flattened xyz triples.
//
// For each of the resY = len(skeleton)/3 points a ring of resX vertices is
// built perpendicular to the local tangent (towards the next point, or the
// previous tangent for the final ring). The ring size is sampled from the
// diameter control points at 1 - i/(resY-1): the first control point sizes
// the tip and increasing indices move towards the base.
func Tube(skeleton []float32, diameter []float64, resX int) (*Geometry, error) {
	if len(skeleton)%3 != 0 {
		return nil, fmt.Errorf("tube: skeleton length %d is not a multiple of 3", len(skeleton))
	}
	resY := len(skeleton) / 3
	if resY < 2 {
		return nil, fmt.Errorf("tube: need at least 2 skeleton points, got %d", resY)
	}
	if resX < MinRingResolution {
		return nil, fmt.Errorf("tube: ring resolution %d below minimum %d", resX, MinRingResolution)
	}

	points := make([]v3.Vec, resY)
	radii := make([]float64, resY)
	for i := 0; i < resY; i++ {
		points[i] = vecAt(skeleton, i)
		radii[i] = InterpolateArray(diameter, 1-float64(i)/float64(resY-1))
	}
	return buildTube(points, radii, resX), nil
}

// ExtrudePath extrudes an open tube along a stride-4 skeleton, using each
// point's thickness channel as its ring size.
func ExtrudePath(path []float32, resX int) (*Geometry, error) {
	if len(path)%SkeletonStride != 0 {
		return nil, fmt.Errorf("extrude: path length %d is not a multiple of %d", len(path), SkeletonStride)
	}
	n := SkeletonLength(path)
	if n < 2 {
		return nil, fmt.Errorf("extrude: need at least 2 path points, got %d", n)
	}
	if resX < MinRingResolution {
		return nil, fmt.Errorf("extrude: ring resolution %d below minimum %d", resX, MinRingResolution)
	}
	points := make([]v3.Vec, n)
	radii := make([]float64, n)
	for i := 0; i < n; i++ {
		points[i], radii[i] = SkeletonPoint(path, i)
	}
	return buildTube(points, radii, resX), nil
}

// TubeBufferSizes returns the exact buffer lengths of an open tube with the
// given resolution: position (and normal), uv, and index.
func TubeBufferSizes(resX, resY int) (position, uv, index int) {
	return resY * resX * 3, resY * resX * 2, resY*resX*6 - resX*6
}

func buildTube(points []v3.Vec, radii []float64, resX int) *Geometry {
	resY := len(points)
	numPosition, numUV, numIndices := TubeBufferSizes(resX, resY)

	g := &Geometry{
		Position: make([]float32, numPosition),
		Normal:   make([]float32, numPosition),
		UV:       make([]float32, numUV),
		Index:    NewIndexBufferFor(numIndices, numPosition/3),
	}

	axis := up
	var side v3.Vec
	for i := 0; i < resY; i++ {
		for j := 0; j < resX; j++ {
			o := i*resX*2 + j*2
			g.UV[o] = float32(-0.5 - float64(j)/float64(resX))
			g.UV[o+1] = float32(float64(i) / float64(resY))
		}

		if i < resY-1 {
			if d := points[i+1].Sub(points[i]); d.Length() > epsilon {
				axis = d.Normalize()
			}
		}
		side = transportSide(side, axis)
		writeRing(g, i*resX, points[i], axis, side, radii[i], resX)
	}

	for i := 0; i < resY-1; i++ {
		indexOffset := i * resX * 6
		positionOffset := i * resX
		for j := 0; j < resX; j++ {
			o := indexOffset + j*6
			p := uint32(positionOffset + j)
			r := uint32(resX)
			if j == resX-1 {
				g.Index.Set(o+0, p)
				g.Index.Set(o+1, p-r+1)
				g.Index.Set(o+2, p+1)
				g.Index.Set(o+3, p+1)
				g.Index.Set(o+4, p+r)
				g.Index.Set(o+5, p)
			} else {
				g.Index.Set(o+0, p)
				g.Index.Set(o+1, p+1)
				g.Index.Set(o+2, p+r+1)
				g.Index.Set(o+3, p+r+1)
				g.Index.Set(o+4, p+r)
				g.Index.Set(o+5, p)
			}
		}
	}
	return g
}

// writeRing places resX vertices on a circle of the given radius around
// origin, perpendicular to axis, starting at side.
func writeRing(g *Geometry, first int, origin, axis, side v3.Vec, radius float64, resX int) {
	other := axis.Cross(side)
	step := 2 * math.Pi / float64(resX)
	for j := 0; j < resX; j++ {
		a := step * float64(j)
		dir := side.MulScalar(math.Cos(a)).Add(other.MulScalar(math.Sin(a)))
		putVec(g.Position, first+j, origin.Add(dir.MulScalar(radius)))
		putVec(g.Normal, first+j, dir)
	}
}

// transportSide carries the previous ring's side vector onto the plane
// perpendicular to axis so consecutive rings do not twist.
func transportSide(prev, axis v3.Vec) v3.Vec {
	if prev.Length() > epsilon {
		s := prev.Sub(axis.MulScalar(prev.Dot(axis)))
		if s.Length() > 1e-6 {
			return s.Normalize()
		}
	}
	return OrthogonalVector(axis)
}

// OrthogonalVector returns a unit vector perpendicular to v.
func OrthogonalVector(v v3.Vec) v3.Vec {
	ref := v3.Vec{X: 1, Y: 0, Z: 0}
	if math.Abs(v.X) > math.Abs(v.Y) && math.Abs(v.X) > math.Abs(v.Z) {
		ref = v3.Vec{X: 0, Y: 0, Z: 1}
	}
	o := v.Cross(ref)
	if o.Length() < epsilon {
		return v3.Vec{X: 0, Y: 0, Z: 1}
	}
	return o.Normalize()
}
