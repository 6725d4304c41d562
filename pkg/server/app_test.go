package server

import (
	"testing"

	"github.com/chazu/plantarium/pkg/nodes"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

func newApp(t *testing.T) *App {
	t.Helper()
	return NewApp(nil, nodesystem.Options{RegisterNodes: nodes.All()})
}

// plantSnapshot builds stem -> noise -> output and serializes it.
func plantSnapshot(t *testing.T, app *App) nodesystem.SystemData {
	t.Helper()
	s, err := app.NewSystem()
	if err != nil {
		t.Fatalf("new system: %v", err)
	}
	if err := s.Load(nodesystem.SystemData{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range []nodesystem.NodeProps{
		{ID: "stem", Type: "stem", State: map[string]any{"amount": 2}},
		{ID: "noise", Type: "noise"},
		{ID: "out", Type: "output"},
	} {
		if _, err := s.CreateNode(p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}
	for _, c := range [][2]string{{"stem:out0", "noise:input"}, {"noise:out0", "out:input"}} {
		if err := s.Connect(c[0], c[1]); err != nil {
			t.Fatalf("connect %v: %v", c, err)
		}
	}
	return s.Serialize()
}

// TestGeneratePlant exercises the full pipeline: snapshot -> system ->
// propagation -> output mesh.
func TestGeneratePlant(t *testing.T) {
	app := newApp(t)
	result := app.Generate(plantSnapshot(t, app))

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("error (%s %s): %s", e.Type, e.NodeID, e.Message)
		}
		t.FailNow()
	}
	if result.Mesh == nil {
		t.Fatal("expected a mesh")
	}
	if result.Mesh.Vertices == 0 || result.Mesh.Triangles == 0 {
		t.Errorf("empty mesh: %d vertices, %d triangles", result.Mesh.Vertices, result.Mesh.Triangles)
	}
	if len(result.Mesh.Position) != 3*result.Mesh.Vertices {
		t.Errorf("position length %d, want %d", len(result.Mesh.Position), 3*result.Mesh.Vertices)
	}
	if len(result.Mesh.Normal) != len(result.Mesh.Position) {
		t.Errorf("normal length %d, want %d", len(result.Mesh.Normal), len(result.Mesh.Position))
	}
	if result.Mesh.Index.Len() != 3*result.Mesh.Triangles {
		t.Errorf("index length %d, want %d", result.Mesh.Index.Len(), 3*result.Mesh.Triangles)
	}
}

// TestGenerateEmptySnapshot ensures an empty snapshot produces no mesh, no
// errors and a single missing-output warning.
func TestGenerateEmptySnapshot(t *testing.T) {
	result := newApp(t).Generate(nodesystem.SystemData{})

	if result.Mesh != nil {
		t.Error("expected no mesh for an empty snapshot")
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected 0 errors, got %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	// Slices must serialize as [] rather than null.
	if result.Errors == nil || result.Warnings == nil {
		t.Error("Errors and Warnings should be non-nil")
	}
}

func TestGenerateUnknownType(t *testing.T) {
	data := nodesystem.SystemData{Nodes: []nodesystem.NodeData{{ID: "x", Type: "tree"}}}
	result := newApp(t).Generate(data)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if result.Errors[0].Type != nodesystem.ErrorTypeLoading {
		t.Errorf("error type = %q, want %q", result.Errors[0].Type, nodesystem.ErrorTypeLoading)
	}
	if result.Mesh != nil {
		t.Error("expected no mesh")
	}
}

// TestGenerateDisconnectedOutput keeps the output node but drops its input:
// validation reports the missing connection and there is no mesh.
func TestGenerateDisconnectedOutput(t *testing.T) {
	data := nodesystem.SystemData{Nodes: []nodesystem.NodeData{{ID: "out", Type: "output"}}}
	result := newApp(t).Generate(data)

	if result.Mesh != nil {
		t.Error("expected no mesh without input")
	}
	found := false
	for _, e := range append(result.Errors, result.Warnings...) {
		if e.NodeID == "out" && e.Type == "validation" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a validation finding for node out, got errors=%v warnings=%v", result.Errors, result.Warnings)
	}
}

func TestTypes(t *testing.T) {
	types, err := newApp(t).Types()
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	if len(types) != len(nodes.All()) {
		t.Fatalf("expected %d types, got %d", len(nodes.All()), len(types))
	}
	for i := 1; i < len(types); i++ {
		if types[i-1].Type >= types[i].Type {
			t.Errorf("types not sorted: %q before %q", types[i-1].Type, types[i].Type)
		}
	}
	for _, ti := range types {
		if ti.Type != "stem" {
			continue
		}
		if len(ti.Order) != len(ti.Parameters) {
			t.Errorf("stem: order %v does not cover parameters", ti.Order)
		}
		if _, ok := ti.Parameters["length"]; !ok {
			t.Error("stem: missing length parameter")
		}
	}
}
