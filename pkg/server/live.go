package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/metrics"
	"github.com/chazu/plantarium/pkg/nodesystem"
	"github.com/chazu/plantarium/pkg/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Command is a client message on a live session.
type Command struct {
	Op string `json:"op"` // load, create, remove, splice, connect, disconnect, set, output, undo, redo

	Data   *nodesystem.SystemData `json:"data,omitempty"`
	Props  *nodesystem.NodeProps  `json:"props,omitempty"`
	NodeID string                 `json:"nodeId,omitempty"`
	Name   string                 `json:"name,omitempty"`
	Value  any                    `json:"value,omitempty"`
	Output string                 `json:"output,omitempty"`
	Input  string                 `json:"input,omitempty"`
}

// Message is a server message on a live session.
type Message struct {
	Type      string                 `json:"type"` // result, computed, error, save, history
	NodeID    string                 `json:"nodeId,omitempty"`
	ErrorType string                 `json:"errorType,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Mesh      *MeshData              `json:"mesh,omitempty"`
	Data      *nodesystem.SystemData `json:"data,omitempty"`
	CanUndo   bool                   `json:"canUndo,omitempty"`
	CanRedo   bool                   `json:"canRedo,omitempty"`
}

var errUnknownOp = errors.New("unknown op")

// session is one live editing connection bound to its own system.
type session struct {
	conn    *websocket.Conn
	sys     *nodesystem.System
	project string
	store   *store.Store
	logger  *zap.Logger
	send    chan Message
}

// handleLive upgrades to a websocket and runs a live session. With
// ?project=<id> and a configured store the project is loaded from and
// autosaved to the store.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	var initial *nodesystem.SystemData
	if project != "" {
		if !s.requireStore(w) {
			return
		}
		data, err := s.store.Load(r.Context(), project)
		switch {
		case err == nil:
			initial = &data
		case errors.Is(err, store.ErrNotFound):
		default:
			s.writeError(w, s.storeStatus(err), err)
			return
		}
	}

	sys, err := s.app.NewSystem()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	sess := &session{
		conn:    conn,
		sys:     sys,
		project: project,
		store:   s.store,
		logger:  s.logger.With(zap.Int("system", sys.ID()), zap.String("project", project)),
		send:    make(chan Message, sendBuffer),
	}
	sess.run(context.Background(), initial)
}

func (ss *session) run(parent context.Context, initial *nodesystem.SystemData) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	metrics.SessionOpened()
	defer metrics.SessionClosed()
	ss.logger.Info("live session opened")

	unsubscribe := ss.sys.Subscribe(func(ev nodesystem.Event) { ss.forward(ctx, ev) })
	defer unsubscribe()
	if ss.project != "" {
		defer ss.sys.Subscribe(ss.store.Autosave(context.Background(), ss.project))()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ss.writeLoop(ctx)
	}()
	go func() {
		_ = ss.sys.Run(ctx)
	}()

	data := nodesystem.SystemData{}
	if initial != nil {
		data = *initial
	}
	if err := ss.sys.Load(data); err != nil {
		ss.logger.Warn("initial load failed", zap.Error(err))
	}
	ss.pushHistory(ctx)

	ss.readLoop(ctx)
	cancel()
	<-done
	ss.sys.FlushPending()
	ss.logger.Info("live session closed")
}

// forward converts a system event into a client message.
func (ss *session) forward(ctx context.Context, ev nodesystem.Event) {
	var msg Message
	switch ev.Type {
	case nodesystem.EventResult:
		msg = Message{Type: string(ev.Type)}
		if ev.Result != nil && ev.Result.Geometry != nil {
			msg.Mesh = NewMeshData(ev.Result.Geometry)
		}
	case nodesystem.EventComputed:
		msg = Message{Type: string(ev.Type), NodeID: ev.NodeID}
	case nodesystem.EventError:
		msg = Message{Type: string(ev.Type), NodeID: ev.NodeID, ErrorType: ev.ErrorType}
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	case nodesystem.EventSave:
		msg = Message{Type: string(ev.Type), Data: ev.Data}
	default:
		return
	}
	ss.enqueue(ctx, msg)
}

func (ss *session) enqueue(ctx context.Context, msg Message) {
	select {
	case ss.send <- msg:
	case <-ctx.Done():
	}
}

func (ss *session) pushHistory(ctx context.Context) {
	ss.enqueue(ctx, Message{Type: "history", CanUndo: ss.sys.CanUndo(), CanRedo: ss.sys.CanRedo()})
}

func (ss *session) readLoop(ctx context.Context) {
	ss.conn.SetReadLimit(maxBodyBytes)
	_ = ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			ss.enqueue(ctx, Message{Type: "error", ErrorType: "command", Error: err.Error()})
			continue
		}
		if err := ss.apply(cmd); err != nil {
			ss.enqueue(ctx, Message{Type: "error", NodeID: cmd.NodeID, ErrorType: "command", Error: err.Error()})
			continue
		}
		ss.pushHistory(ctx)
	}
}

// apply runs one command against the session's system.
func (ss *session) apply(cmd Command) error {
	sys := ss.sys
	switch cmd.Op {
	case "load":
		if cmd.Data == nil {
			return errors.New("load: data is required")
		}
		return sys.Load(*cmd.Data)
	case "create":
		if cmd.Props == nil {
			return errors.New("create: props are required")
		}
		_, err := sys.CreateNode(*cmd.Props)
		return err
	case "remove":
		return sys.RemoveNode(cmd.NodeID)
	case "splice":
		return sys.SpliceNode(cmd.NodeID)
	case "connect":
		return sys.Connect(cmd.Output, cmd.Input)
	case "disconnect":
		return sys.Disconnect(cmd.Input)
	case "set":
		return sys.SetParameter(cmd.NodeID, cmd.Name, cmd.Value)
	case "output":
		return sys.SetOutputNode(cmd.NodeID)
	case "undo":
		sys.Undo()
		return nil
	case "redo":
		sys.Redo()
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownOp, cmd.Op)
}

func (ss *session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ss.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ss.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-ss.send:
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ss.conn.WriteJSON(msg); err != nil {
				ss.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ss.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
