package geometry

import v3 "github.com/deadsy/sdfx/vec/v3"

// Join concatenates geometries into one, offsetting each part's indices by
// the number of vertices that precede it. Nil and empty parts are skipped.
// Missing normal or uv buffers are zero-filled so the result stays aligned.
func Join(parts ...*Geometry) *Geometry {
	var nv, ni int
	for _, p := range parts {
		if p.IsEmpty() {
			continue
		}
		nv += p.VertexCount()
		ni += p.Index.Len()
	}

	out := &Geometry{
		Position: make([]float32, 0, nv*3),
		Normal:   make([]float32, 0, nv*3),
		UV:       make([]float32, 0, nv*2),
		Index:    NewIndexBufferFor(ni, nv),
	}
	offset, k := 0, 0
	for _, p := range parts {
		if p.IsEmpty() {
			continue
		}
		out.Position = append(out.Position, p.Position...)
		out.Normal = appendOrPad(out.Normal, p.Normal, len(p.Position))
		out.UV = appendOrPad(out.UV, p.UV, p.VertexCount()*2)
		for i := 0; i < p.Index.Len(); i++ {
			out.Index.Set(k, p.Index.At(i)+uint32(offset))
			k++
		}
		offset += p.VertexCount()
	}
	return out
}

func appendOrPad(dst, src []float32, want int) []float32 {
	if len(src) == want {
		return append(dst, src...)
	}
	return append(dst, make([]float32, want)...)
}

// Translate returns a copy of g moved by d.
func Translate(g *Geometry, d v3.Vec) *Geometry {
	out := g.Clone()
	for i := 0; i < out.VertexCount(); i++ {
		putVec(out.Position, i, vecAt(out.Position, i).Add(d))
	}
	return out
}
