package geometry

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultSphereCells controls marching cubes resolution for SphereMesh.
const DefaultSphereCells = 12

// SphereMesh tessellates a sphere of the given radius centred at c using the
// sdfx signed-distance kernel and uniform marching cubes. Vertices are not
// shared between triangles; normals are per face.
func SphereMesh(c v3.Vec, radius float64, cells int) (*Geometry, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("sphere: radius must be positive, got %g", radius)
	}
	if cells <= 0 {
		cells = DefaultSphereCells
	}
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sphere: %w", err)
	}
	s = sdf.Transform3D(s, sdf.Translate3d(c))

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s, renderer)

	numVerts := len(triangles) * 3
	g := &Geometry{
		Position: make([]float32, 0, numVerts*3),
		Normal:   make([]float32, 0, numVerts*3),
		UV:       make([]float32, numVerts*2),
		Index:    NewIndexBufferFor(numVerts, numVerts),
	}
	for i, tri := range triangles {
		n := tri.Normal()
		for j := 0; j < 3; j++ {
			v := tri[j]
			g.Position = append(g.Position, float32(v.X), float32(v.Y), float32(v.Z))
			g.Normal = append(g.Normal, float32(n.X), float32(n.Y), float32(n.Z))
			g.Index.Set(i*3+j, uint32(i*3+j))
		}
	}
	return g, nil
}
