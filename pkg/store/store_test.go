package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/plantarium/pkg/nodes"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(lastSaved int64) nodesystem.SystemData {
	out := "stem:out0"
	return nodesystem.SystemData{
		Nodes: []nodesystem.NodeData{
			{
				ID:    "stem",
				Type:  "stem",
				State: map[string]any{"length": 3.0},
				Sockets: nodesystem.SocketsData{
					Inputs:  []nodesystem.InputData{},
					Outputs: []nodesystem.OutputData{{ID: "stem:out0", Type: []string{"plant"}, ConnectedInputIDs: []string{"out:input"}}},
				},
			},
			{
				ID:   "out",
				Type: "output",
				Sockets: nodesystem.SocketsData{
					Inputs:  []nodesystem.InputData{{ID: "out:input", Type: []string{"plant"}, ConnectedOutputID: &out}},
					Outputs: []nodesystem.OutputData{},
				},
			},
		},
		Meta: nodesystem.Meta{LastSaved: lastSaved, Transform: nodesystem.Transform{S: 1}},
	}
}

func TestSaveLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "fern", sample(42)))
	got, err := s.Load(ctx, "fern")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Meta.LastSaved)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "stem", got.Nodes[0].ID)
	assert.Equal(t, 3.0, got.Nodes[0].State["length"])
	require.NotNil(t, got.Nodes[1].Sockets.Inputs[0].ConnectedOutputID)
	assert.Equal(t, "stem:out0", *got.Nodes[1].Sockets.Inputs[0].ConnectedOutputID)

	// Saving again replaces.
	require.NoError(t, s.Save(ctx, "fern", sample(43)))
	got, err = s.Load(ctx, "fern")
	require.NoError(t, err)
	assert.Equal(t, int64(43), got.Meta.LastSaved)
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"", "a/b"} {
		assert.ErrorIs(t, s.Save(ctx, id, sample(0)), ErrInvalidID)
		_, err := s.Load(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.Delete(ctx, id), ErrInvalidID)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	require.NoError(t, s.Save(ctx, "oak", sample(2)))
	require.NoError(t, s.Save(ctx, "birch", sample(1)))

	infos, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ProjectInfo{
		{ID: "birch", Nodes: 2, LastSaved: 1},
		{ID: "oak", Nodes: 2, LastSaved: 2},
	}, infos)

	require.NoError(t, s.Delete(ctx, "oak"))
	assert.ErrorIs(t, s.Delete(ctx, "oak"), ErrNotFound)

	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "birch", infos[0].ID)
}

func TestCanceledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, "x", sample(0)), context.Canceled)
	_, err := s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "ivy", sample(7)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(context.Background(), "ivy")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Meta.LastSaved)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestAutosave(t *testing.T) {
	s := openStore(t)
	clock := nodesystem.NewManualClock(time.Unix(1700000000, 0))
	sys, err := nodesystem.New(nodesystem.Options{Clock: clock, RegisterNodes: nodes.All()})
	require.NoError(t, err)
	sys.Subscribe(s.Autosave(context.Background(), "live"))
	require.NoError(t, sys.Load(nodesystem.SystemData{}))

	_, err = sys.CreateNode(nodesystem.NodeProps{ID: "stem", Type: "stem"})
	require.NoError(t, err)
	sys.FlushPending()

	got, err := s.Load(context.Background(), "live")
	require.NoError(t, err)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "stem", got.Nodes[0].ID)
	assert.Equal(t, clock.Now().UnixMilli(), got.Meta.LastSaved)
}
