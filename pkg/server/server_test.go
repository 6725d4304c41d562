package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
	"github.com/chazu/plantarium/pkg/store"
)

func newServer(t *testing.T, withStore bool) (*Server, *App) {
	t.Helper()
	app := newApp(t)
	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(store.InMemoryConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
	}
	return New(app, st, nil), app
}

func encode(t *testing.T, data nodesystem.SystemData) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, nodesystem.Encode(&buf, data, "json"))
	return &buf
}

func do(t *testing.T, h http.Handler, method, target string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTypesEndpoint(t *testing.T) {
	srv, _ := newServer(t, false)
	rec := do(t, srv, http.MethodGet, "/api/types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var types []TypeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	keys := make([]string, 0, len(types))
	for _, ti := range types {
		keys = append(keys, ti.Type)
	}
	assert.Equal(t, []string{"berries", "branches", "gravity", "noise", "output", "stem"}, keys)
}

func TestGenerateEndpoint(t *testing.T) {
	srv, app := newServer(t, false)
	data := plantSnapshot(t, app)

	rec := do(t, srv, http.MethodPost, "/api/generate", encode(t, data))
	require.Equal(t, http.StatusOK, rec.Code)
	var result GenerateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Mesh)
	assert.Empty(t, result.Errors)
	assert.Greater(t, result.Mesh.Triangles, 0)
	assert.Equal(t, 3*result.Mesh.Triangles, result.Mesh.Index.Len())

	rec = do(t, srv, http.MethodPost, "/api/generate?format=obj", encode(t, data))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	parsed, err := geometry.ParseOBJ(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, result.Mesh.Triangles, parsed.TriangleCount())
}

func TestGenerateYAMLBody(t *testing.T) {
	srv, app := newServer(t, false)
	var buf bytes.Buffer
	require.NoError(t, nodesystem.Encode(&buf, plantSnapshot(t, app), "yaml"))

	req := httptest.NewRequest(http.MethodPost, "/api/generate", &buf)
	req.Header.Set("Content-Type", "application/yaml; charset=utf-8")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result GenerateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotNil(t, result.Mesh)
}

func TestGenerateErrors(t *testing.T) {
	srv, _ := newServer(t, false)

	rec := do(t, srv, http.MethodPost, "/api/generate", bytes.NewBufferString("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/generate?format=obj", encode(t, nodesystem.SystemData{}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProjectsLifecycle(t *testing.T) {
	srv, app := newServer(t, true)
	data := plantSnapshot(t, app)

	rec := do(t, srv, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodPut, "/api/projects/fern", encode(t, data))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/projects/fern", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := nodesystem.DecodeJSON(rec.Body)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 3)

	rec = do(t, srv, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []store.ProjectInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "fern", infos[0].ID)
	assert.Equal(t, 3, infos[0].Nodes)

	rec = do(t, srv, http.MethodDelete, "/api/projects/fern", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/projects/fern", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodDelete, "/api/projects/fern", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutRejectsInvalidSnapshot(t *testing.T) {
	srv, _ := newServer(t, true)
	bad := nodesystem.SystemData{Nodes: []nodesystem.NodeData{{ID: "x", Type: "tree"}}}

	rec := do(t, srv, http.MethodPut, "/api/projects/bad", encode(t, bad))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/projects/bad", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectsWithoutStore(t *testing.T) {
	srv, _ := newServer(t, false)
	rec := do(t, srv, http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, app := newServer(t, false)
	do(t, srv, http.MethodPost, "/api/generate", encode(t, plantSnapshot(t, app)))

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plantarium_node_computations_total")
}

// readUntil reads live messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestLiveSession(t *testing.T) {
	srv, app := newServer(t, true)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live?project=live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hist := readUntil(t, conn, "history")
	assert.False(t, hist.CanUndo)

	data := plantSnapshot(t, app)
	require.NoError(t, conn.WriteJSON(Command{Op: "load", Data: &data}))
	res := readUntil(t, conn, "result")
	require.NotNil(t, res.Mesh)
	assert.Greater(t, res.Mesh.Triangles, 0)

	require.NoError(t, conn.WriteJSON(Command{Op: "set", NodeID: "stem", Name: "length", Value: 4.0}))
	readUntil(t, conn, "result")
	hist = readUntil(t, conn, "history")
	assert.True(t, hist.CanUndo)

	require.NoError(t, conn.WriteJSON(Command{Op: "connect", Output: "out:out0", Input: "stem:input"}))
	msg := readUntil(t, conn, "error")
	assert.NotEmpty(t, msg.Error)

	require.NoError(t, conn.WriteJSON(Command{Op: "bogus"}))
	msg = readUntil(t, conn, "error")
	assert.Equal(t, "command", msg.ErrorType)

	require.NoError(t, conn.WriteJSON(Command{Op: "undo"}))
	readUntil(t, conn, "result")
}
