// Package server exposes plant generation, the project store and live
// editing sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/nodesystem"
	"github.com/chazu/plantarium/pkg/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Server routes HTTP requests to an App and a project store.
type Server struct {
	app      *App
	store    *store.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

// New creates a server. st may be nil, in which case the project routes
// answer 503.
func New(app *App, st *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		app:    app,
		store:  st,
		logger: logger.Named("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/types", s.handleTypes)
		r.Post("/generate", s.handleGenerate)
		r.Get("/live", s.handleLive)
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Get("/{id}", s.handleGetProject)
			r.Put("/{id}", s.handlePutProject)
			r.Delete("/{id}", s.handleDeleteProject)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeSnapshot reads a JSON or, by content type, YAML snapshot body.
func decodeSnapshot(w http.ResponseWriter, r *http.Request) (nodesystem.SystemData, error) {
	format := "json"
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		format = "yaml"
	}
	return nodesystem.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), format)
}

func (s *Server) handleTypes(w http.ResponseWriter, _ *http.Request) {
	types, err := s.app.Types()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	data, err := decodeSnapshot(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result := s.app.Generate(data)
	if r.URL.Query().Get("format") != "obj" {
		s.writeJSON(w, http.StatusOK, result)
		return
	}

	if result.Mesh == nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	g := &geometry.Geometry{
		Position: result.Mesh.Position,
		Normal:   result.Mesh.Normal,
		UV:       result.Mesh.UV,
		Index:    result.Mesh.Index,
	}
	if err := geometry.WriteOBJ(w, g); err != nil {
		s.logger.Warn("write obj", zap.Error(err))
	}
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("project store is not configured"))
		return false
	}
	return true
}

func (s *Server) storeStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	}
	s.logger.Error("store operation failed", zap.Error(err))
	return http.StatusInternalServerError
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, s.storeStatus(err), err)
		return
	}
	if infos == nil {
		infos = []store.ProjectInfo{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	data, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, s.storeStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

// handlePutProject stores a snapshot after checking that it loads.
func (s *Server) handlePutProject(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	data, err := decodeSnapshot(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	sys, err := s.app.NewSystem()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := sys.Load(data); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.store.Save(r.Context(), chi.URLParam(r, "id"), sys.Serialize()); err != nil {
		s.writeError(w, s.storeStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, s.storeStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
