package server

import (
	"sort"

	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

// App evaluates plant snapshots. It is the transport-independent core the
// HTTP handlers and the command line call into.
type App struct {
	logger *zap.Logger
	opts   nodesystem.Options
}

// MeshData is the JSON-serializable mesh format sent to clients.
type MeshData struct {
	Position  []float32            `json:"position"`
	Normal    []float32            `json:"normal"`
	UV        []float32            `json:"uv"`
	Index     geometry.IndexBuffer `json:"index"`
	Vertices  int                  `json:"vertices"`
	Triangles int                  `json:"triangles"`
}

// ErrorData is a JSON-serializable error or validation finding.
type ErrorData struct {
	NodeID  string `json:"nodeId,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GenerateResult is the full result returned to clients. Mesh is nil when
// the snapshot has no output node or the output produced no geometry.
type GenerateResult struct {
	Mesh     *MeshData   `json:"mesh"`
	Errors   []ErrorData `json:"errors"`
	Warnings []ErrorData `json:"warnings"`
}

// TypeInfo describes a registered node type.
type TypeInfo struct {
	Type       string                              `json:"type"`
	Title      string                              `json:"title"`
	Outputs    []string                            `json:"outputs"`
	Order      []string                            `json:"order"`
	Parameters map[string]nodesystem.ParameterSpec `json:"parameters"`
}

// NewApp creates an App. opts.RegisterNodes is the node catalog every
// evaluation uses.
func NewApp(logger *zap.Logger, opts nodesystem.Options) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = logger
	return &App{logger: logger, opts: opts}
}

// NewSystem creates an empty system with the app's options.
func (a *App) NewSystem() (*nodesystem.System, error) {
	return nodesystem.New(a.opts)
}

// Types lists the registered node types sorted by key.
func (a *App) Types() ([]TypeInfo, error) {
	s, err := a.NewSystem()
	if err != nil {
		return nil, err
	}
	types := s.NodeTypes()
	infos := make([]TypeInfo, 0, len(types))
	for _, t := range types {
		info := TypeInfo{
			Type:       t.Type,
			Title:      t.Title,
			Outputs:    append([]string{}, t.Outputs...),
			Order:      make([]string, 0, len(t.Parameters)),
			Parameters: make(map[string]nodesystem.ParameterSpec, len(t.Parameters)),
		}
		for _, p := range t.Parameters {
			info.Order = append(info.Order, p.Name)
			info.Parameters[p.Name] = p.Spec
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos, nil
}

// Generate loads a snapshot into a fresh system and returns the output
// node's mesh together with every error and validation finding.
func (a *App) Generate(data nodesystem.SystemData) GenerateResult {
	result := GenerateResult{
		Errors:   []ErrorData{},
		Warnings: []ErrorData{},
	}

	s, err := a.NewSystem()
	if err != nil {
		a.logger.Error("create system", zap.Error(err))
		result.Errors = append(result.Errors, ErrorData{Type: "registration", Message: err.Error()})
		return result
	}

	unsubscribe := s.Subscribe(func(ev nodesystem.Event) {
		if ev.Type != nodesystem.EventError || ev.ErrorType == nodesystem.ErrorTypeLoading {
			return
		}
		result.Errors = append(result.Errors, ErrorData{
			NodeID:  ev.NodeID,
			Type:    ev.ErrorType,
			Message: ev.Err.Error(),
		})
	})
	defer unsubscribe()

	if err := s.Load(data); err != nil {
		a.logger.Info("generate: load failed", zap.Error(err))
		result.Errors = append(result.Errors, ErrorData{Type: nodesystem.ErrorTypeLoading, Message: err.Error()})
		return result
	}

	for _, v := range s.Validate() {
		e := ErrorData{NodeID: v.NodeID, Type: "validation", Message: v.Message}
		if v.Severity == nodesystem.SeverityWarning {
			result.Warnings = append(result.Warnings, e)
		} else {
			result.Errors = append(result.Errors, e)
		}
	}

	if res := s.Result(); res != nil && res.Geometry != nil {
		result.Mesh = NewMeshData(res.Geometry)
	}
	return result
}

// NewMeshData converts geometry into the client mesh format.
func NewMeshData(g *geometry.Geometry) *MeshData {
	return &MeshData{
		Position:  g.Position,
		Normal:    g.Normal,
		UV:        g.UV,
		Index:     g.Index,
		Vertices:  g.VertexCount(),
		Triangles: g.TriangleCount(),
	}
}
