package geometry

import "github.com/chewxy/math32"

// CalculateNormals computes smooth per-vertex normals by accumulating the
// area-weighted face normals of every triangle touching a vertex.
// Vertices not referenced by any triangle get a zero normal.
func CalculateNormals(position []float32, index IndexBuffer) []float32 {
	normal := make([]float32, len(position))
	for t := 0; t+2 < index.Len(); t += 3 {
		a, b, c := index.At(t), index.At(t+1), index.At(t+2)

		ax, ay, az := position[a*3], position[a*3+1], position[a*3+2]
		e1x, e1y, e1z := position[b*3]-ax, position[b*3+1]-ay, position[b*3+2]-az
		e2x, e2y, e2z := position[c*3]-ax, position[c*3+1]-ay, position[c*3+2]-az

		nx := e1y*e2z - e1z*e2y
		ny := e1z*e2x - e1x*e2z
		nz := e1x*e2y - e1y*e2x

		for _, v := range [3]uint32{a, b, c} {
			normal[v*3] += nx
			normal[v*3+1] += ny
			normal[v*3+2] += nz
		}
	}
	for i := 0; i+2 < len(normal); i += 3 {
		l := math32.Sqrt(normal[i]*normal[i] + normal[i+1]*normal[i+1] + normal[i+2]*normal[i+2])
		if l > 0 {
			normal[i] /= l
			normal[i+1] /= l
			normal[i+2] /= l
		}
	}
	return normal
}
