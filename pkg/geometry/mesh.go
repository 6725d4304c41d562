package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MaxUint16Indices is the largest index count stored in a 16-bit index buffer.
// Anything above switches the buffer to 32-bit elements.
const MaxUint16Indices = 65536

// IndexBuffer holds triangle indices with either 16-bit or 32-bit elements.
// The element width is fixed at construction from the number of unique
// indices needed, which is the larger of the index and vertex counts.
type IndexBuffer struct {
	u16 []uint16
	u32 []uint32
}

// NewIndexBuffer allocates an index buffer for n indices, using 16-bit
// elements when n <= MaxUint16Indices and 32-bit elements otherwise.
func NewIndexBuffer(n int) IndexBuffer {
	return NewIndexBufferFor(n, 0)
}

// NewIndexBufferFor allocates n indices addressing the given number of
// vertices. It is wide when either count exceeds MaxUint16Indices.
func NewIndexBufferFor(n, vertices int) IndexBuffer {
	if max(n, vertices) > MaxUint16Indices {
		return IndexBuffer{u32: make([]uint32, n)}
	}
	return IndexBuffer{u16: make([]uint16, n)}
}

// Wide reports whether the buffer uses 32-bit elements.
func (b IndexBuffer) Wide() bool {
	return b.u32 != nil
}

// Len returns the number of indices.
func (b IndexBuffer) Len() int {
	if b.u32 != nil {
		return len(b.u32)
	}
	return len(b.u16)
}

// At returns the index at position i.
func (b IndexBuffer) At(i int) uint32 {
	if b.u32 != nil {
		return b.u32[i]
	}
	return uint32(b.u16[i])
}

// Set stores v at position i.
func (b IndexBuffer) Set(i int, v uint32) {
	if b.u32 != nil {
		b.u32[i] = v
		return
	}
	b.u16[i] = uint16(v)
}

// Uint16 returns the 16-bit backing slice, or nil for wide buffers.
func (b IndexBuffer) Uint16() []uint16 { return b.u16 }

// Uint32 returns the indices widened to 32 bits. For wide buffers this is the
// backing slice itself.
func (b IndexBuffer) Uint32() []uint32 {
	if b.u32 != nil {
		return b.u32
	}
	out := make([]uint32, len(b.u16))
	for i, v := range b.u16 {
		out[i] = uint32(v)
	}
	return out
}

// MarshalJSON encodes the buffer as a plain numeric array.
func (b IndexBuffer) MarshalJSON() ([]byte, error) {
	if b.u32 != nil {
		return json.Marshal(b.u32)
	}
	// []uint16 would marshal fine, but an empty buffer must be [] not null.
	if b.u16 == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.u16)
}

// UnmarshalJSON decodes a numeric array, choosing the element width from the
// decoded length.
func (b *IndexBuffer) UnmarshalJSON(data []byte) error {
	var raw []uint32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = IndexBufferFrom(raw)
	return nil
}

// IndexBufferFrom copies indices into a buffer of the appropriate width for
// both their count and their largest value.
func IndexBufferFrom(indices []uint32) IndexBuffer {
	var top int
	for _, v := range indices {
		top = max(top, int(v)+1)
	}
	b := NewIndexBufferFor(len(indices), top)
	for i, v := range indices {
		b.Set(i, v)
	}
	return b
}

// Geometry is a triangle mesh in transfer form, suitable for direct upload
// to a rendering backend. Position and Normal hold 3 floats per vertex, UV
// holds 2 floats per vertex, Index holds 3 entries per triangle.
type Geometry struct {
	Position []float32   `json:"position"`
	Normal   []float32   `json:"normal"`
	UV       []float32   `json:"uv"`
	Index    IndexBuffer `json:"index"`
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Position) / 3
}

// TriangleCount returns the number of triangles.
func (g *Geometry) TriangleCount() int {
	return g.Index.Len() / 3
}

// IsEmpty returns true if the geometry has no vertices.
func (g *Geometry) IsEmpty() bool {
	return g == nil || len(g.Position) == 0
}

// Clone returns a deep copy.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	return &Geometry{
		Position: append([]float32(nil), g.Position...),
		Normal:   append([]float32(nil), g.Normal...),
		UV:       append([]float32(nil), g.UV...),
		Index:    IndexBufferFrom(g.Index.Uint32()),
	}
}

// BoundingBox returns the axis-aligned bounding box of all vertices.
// An empty geometry yields a zero box.
func (g *Geometry) BoundingBox() sdf.Box3 {
	if g.IsEmpty() {
		return sdf.Box3{}
	}
	lo := vecAt(g.Position, 0)
	hi := lo
	for i := 1; i < g.VertexCount(); i++ {
		p := vecAt(g.Position, i)
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return sdf.Box3{Min: lo, Max: hi}
}

// SanityCheck verifies that buffer sizes agree and every index addresses an
// existing vertex.
func SanityCheck(g *Geometry) error {
	if g == nil {
		return fmt.Errorf("geometry: nil geometry")
	}
	if len(g.Position)%3 != 0 {
		return fmt.Errorf("geometry: position length %d is not a multiple of 3", len(g.Position))
	}
	if len(g.Normal) != 0 && len(g.Normal) != len(g.Position) {
		return fmt.Errorf("geometry: normal length %d != position length %d", len(g.Normal), len(g.Position))
	}
	if len(g.UV) != 0 && len(g.UV)/2 != g.VertexCount() {
		return fmt.Errorf("geometry: uv length %d does not match %d vertices", len(g.UV), g.VertexCount())
	}
	if g.Index.Len()%3 != 0 {
		return fmt.Errorf("geometry: index length %d is not a multiple of 3", g.Index.Len())
	}
	n := uint32(g.VertexCount())
	for i := 0; i < g.Index.Len(); i++ {
		if g.Index.At(i) >= n {
			return fmt.Errorf("geometry: index %d at %d out of range (%d vertices)", g.Index.At(i), i, n)
		}
	}
	for i, f := range g.Position {
		if math32.IsNaN(f) {
			return fmt.Errorf("geometry: NaN position at %d", i)
		}
	}
	return nil
}

// vecAt reads the i-th xyz triple of a flat buffer.
func vecAt(buf []float32, i int) v3.Vec {
	return v3.Vec{X: float64(buf[i*3]), Y: float64(buf[i*3+1]), Z: float64(buf[i*3+2])}
}

// putVec writes v as the i-th xyz triple of a flat buffer.
func putVec(buf []float32, i int, v v3.Vec) {
	buf[i*3] = float32(v.X)
	buf[i*3+1] = float32(v.Y)
	buf[i*3+2] = float32(v.Z)
}
