package geometry

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestInterpolateArray(t *testing.T) {
	tests := []struct {
		values []float64
		t      float64
		want   float64
	}{
		{nil, 0.5, 0},
		{[]float64{3}, 0.7, 3},
		{[]float64{0, 1}, 0.25, 0.25},
		{[]float64{0, 10, 20}, 0.75, 15},
		{[]float64{0, 10, 20}, 1, 20},
		{[]float64{0, 10, 20}, 2, 20},
		{[]float64{0, 10, 20}, -1, 0},
	}
	for _, tc := range tests {
		if got := InterpolateArray(tc.values, tc.t); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("InterpolateArray(%v, %v) = %v, want %v", tc.values, tc.t, got, tc.want)
		}
	}
}

func TestInterpolateSkeleton(t *testing.T) {
	s := []float32{
		0, 0, 0, 1,
		0, 2, 0, 0,
	}
	p, th := InterpolateSkeleton(s, 0.5)
	if math.Abs(p.Y-1) > 1e-6 || math.Abs(th-0.5) > 1e-6 {
		t.Errorf("midpoint: got %v thickness %v", p, th)
	}
}

func TestSampleCurve(t *testing.T) {
	curve := []CurvePoint{{X: 1, Y: 0}, {X: 0, Y: 1}}
	if got := SampleCurve(curve, 0.25); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("SampleCurve unsorted: got %v, want 0.75", got)
	}
	if got := SampleCurve(nil, 0.3); got != 1 {
		t.Errorf("empty curve should be neutral, got %v", got)
	}
	arr := CurveToArray(curve, 3)
	if len(arr) != 3 || arr[0] != 1 || arr[2] != 0 {
		t.Errorf("CurveToArray: got %v", arr)
	}
}

func TestN1DDeterministicAndBounded(t *testing.T) {
	for i := 0; i < 200; i++ {
		x := float64(i) * 0.37
		a, b := N1D(x), N1D(x)
		if a != b {
			t.Fatalf("N1D(%v) not deterministic: %v vs %v", x, a, b)
		}
		if a < -1 || a > 1 {
			t.Fatalf("N1D(%v) = %v out of range", x, a)
		}
	}
}

func TestJoinOffsetsIndices(t *testing.T) {
	a, _ := Tube(line(2), []float64{1}, 3)
	b, _ := Tube(line(2), []float64{1}, 3)
	j := Join(a, nil, b)
	if j.VertexCount() != a.VertexCount()+b.VertexCount() {
		t.Fatalf("vertex count: got %d", j.VertexCount())
	}
	if got := j.Index.At(a.Index.Len()); got != b.Index.At(0)+uint32(a.VertexCount()) {
		t.Errorf("second part index not offset: got %d", got)
	}
	if err := SanityCheck(j); err != nil {
		t.Fatalf("sanity check: %v", err)
	}
}

// TestJoinWidensForVertexCount joins a part with many vertices but a single
// triangle: offset indices exceed 16 bits although few indices are needed.
func TestJoinWidensForVertexCount(t *testing.T) {
	const nv = 70000
	sparse := &Geometry{
		Position: make([]float32, nv*3),
		Normal:   make([]float32, nv*3),
		UV:       make([]float32, nv*2),
		Index:    IndexBufferFrom([]uint32{0, 1, nv - 1}),
	}
	if !sparse.Index.Wide() {
		t.Fatalf("index %d should need a 32-bit buffer", nv-1)
	}
	tri := &Geometry{
		Position: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Index:    IndexBufferFrom([]uint32{0, 1, 2}),
	}
	if tri.Index.Wide() {
		t.Fatal("a single triangle should use a 16-bit buffer")
	}

	j := Join(sparse, tri)
	if !j.Index.Wide() {
		t.Fatalf("joined %d vertices into a 16-bit buffer", j.VertexCount())
	}
	if got := j.Index.At(j.Index.Len() - 1); got != nv+2 {
		t.Fatalf("last index: got %d, want %d", got, nv+2)
	}
	if err := SanityCheck(j); err != nil {
		t.Fatalf("sanity check: %v", err)
	}
}

func TestTranslateAndBoundingBox(t *testing.T) {
	g, _ := Tube(line(3), []float64{1}, 4)
	moved := Translate(g, v3.Vec{X: 10, Y: 0, Z: 0})
	bb := moved.BoundingBox()
	if math.Abs(bb.Min.X-9) > 1e-5 || math.Abs(bb.Max.X-11) > 1e-5 {
		t.Errorf("bounding box x: got [%v, %v]", bb.Min.X, bb.Max.X)
	}
	if math.Abs(bb.Max.Y-2) > 1e-5 {
		t.Errorf("bounding box max y: got %v", bb.Max.Y)
	}
	if g.Position[0] == moved.Position[0] {
		t.Error("Translate must not mutate its input")
	}
}

func TestCalculateNormalsFlatQuad(t *testing.T) {
	pos := []float32{0, 0, 0, 1, 0, 0, 1, 0, 1, 0, 0, 1}
	idx := IndexBufferFrom([]uint32{0, 2, 1, 0, 3, 2})
	n := CalculateNormals(pos, idx)
	for i := 0; i < 4; i++ {
		if math.Abs(float64(n[i*3+1])-1) > 1e-6 {
			t.Errorf("vertex %d normal: got (%v,%v,%v), want +Y", i, n[i*3], n[i*3+1], n[i*3+2])
		}
	}
}

func TestOBJRoundTrip(t *testing.T) {
	g, err := Tube(line(4), []float64{0.2, 0.4}, 5)
	if err != nil {
		t.Fatalf("Tube failed: %v", err)
	}
	text := ToOBJ(g)
	if !strings.HasPrefix(text, "v ") {
		t.Fatalf("unexpected OBJ header: %q", text[:20])
	}
	back, err := ParseOBJ(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	if back.VertexCount() != g.VertexCount() || back.TriangleCount() != g.TriangleCount() {
		t.Fatalf("counts: got %d/%d, want %d/%d", back.VertexCount(), back.TriangleCount(), g.VertexCount(), g.TriangleCount())
	}
	// Vertex order may differ; every triangle corner must land on the same point.
	for k := 0; k < g.Index.Len(); k++ {
		want := vecAt(g.Position, int(g.Index.At(k)))
		got := vecAt(back.Position, int(back.Index.At(k)))
		if got != want {
			t.Fatalf("corner %d: got %v, want %v", k, got, want)
		}
	}
}

func TestParseOBJQuadAndErrors(t *testing.T) {
	src := "# quad\nv 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\nf 1 2 3 4\n"
	g, err := ParseOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	if g.TriangleCount() != 2 {
		t.Errorf("quad should triangulate into 2 triangles, got %d", g.TriangleCount())
	}
	if len(g.Normal) != len(g.Position) {
		t.Errorf("missing normals should be calculated")
	}
	if _, err := ParseOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n")); err == nil {
		t.Error("expected error for face referencing missing vertices")
	}
}

func TestIndexBufferJSON(t *testing.T) {
	b := IndexBufferFrom([]uint32{0, 1, 2})
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[0,1,2]" {
		t.Errorf("got %s", data)
	}
	var empty IndexBuffer
	data, _ = json.Marshal(empty)
	if string(data) != "[]" {
		t.Errorf("empty buffer: got %s", data)
	}
}

func TestSphereMesh(t *testing.T) {
	g, err := SphereMesh(v3.Vec{X: 1, Y: 2, Z: 3}, 0.5, 8)
	if err != nil {
		t.Fatalf("SphereMesh failed: %v", err)
	}
	if g.IsEmpty() || g.TriangleCount() == 0 {
		t.Fatal("sphere mesh is empty")
	}
	if err := SanityCheck(g); err != nil {
		t.Fatalf("sanity check: %v", err)
	}
	bb := g.BoundingBox()
	c := bb.Min.Add(bb.Max).MulScalar(0.5)
	if c.Sub(v3.Vec{X: 1, Y: 2, Z: 3}).Length() > 0.1 {
		t.Errorf("sphere centre: got %v", c)
	}
	if _, err := SphereMesh(v3.Vec{}, 0, 8); err == nil {
		t.Error("expected error for zero radius")
	}
}
