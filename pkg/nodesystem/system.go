package nodesystem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/expr"
)

const (
	// DefaultSaveDelay is the quiet interval before a save event is emitted.
	DefaultSaveDelay = time.Second
	// DefaultOutputType is the node type key designating the output node.
	DefaultOutputType = "output"

	tickInterval = 50 * time.Millisecond
)

var systemCounter atomic.Int64

// Options configure a System. The zero value is usable.
type Options struct {
	Logger             *zap.Logger
	Clock              Clock
	Settings           Settings
	HistoryDelay       time.Duration
	SaveDelay          time.Duration
	ExprTimeout        time.Duration
	DisableExpressions bool
	OutputType         string
	RegisterNodes      []TypeDescriptor
}

// System owns a node graph: its nodes and connections, the type store, the
// factory, the undo history and the designated output node. Every method
// holds the system lock; events queued during a call are dispatched to
// subscribers after the lock is released.
type System struct {
	mu         sync.Mutex
	id         int
	logger     *zap.Logger
	clock      Clock
	settings   Settings
	outputType string

	store   *NodeTypeStore
	factory *NodeFactory
	parser  *NodeParser
	history *nodeHistory
	save    *Coalescer
	expr    *expr.Evaluator

	nodes  []*Node
	byID   map[string]*Node
	conns  *connections
	output *Node
	result *Result
	meta   Meta

	loaded  bool
	paused  bool
	running bool
	dirty   map[string]struct{}

	events    []Event
	listeners listeners
}

// New creates an empty, not yet loaded system. History is recorded and
// result and save events are emitted only after the first Load.
func New(opts Options) (*System, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	historyDelay := opts.HistoryDelay
	if historyDelay <= 0 {
		historyDelay = DefaultHistoryDelay
	}
	saveDelay := opts.SaveDelay
	if saveDelay <= 0 {
		saveDelay = DefaultSaveDelay
	}
	outputType := opts.OutputType
	if outputType == "" {
		outputType = DefaultOutputType
	}

	id := int(systemCounter.Add(1) - 1)
	s := &System{
		id:         id,
		logger:     logger.Named("nodesystem").With(zap.Int("system", id)),
		clock:      clock,
		settings:   opts.Settings.withDefaults(),
		outputType: outputType,
		store:      NewNodeTypeStore(),
		byID:       make(map[string]*Node),
		conns:      newConnections(),
		dirty:      make(map[string]struct{}),
	}
	s.factory = NewNodeFactory(s.store)
	s.parser = NewNodeParser(s.store)
	s.history = newHistory(historyDelay, clock, func() []NodeData {
		return s.parser.data(s.nodes, s.conns)
	}, s.logger.Named("history"))
	s.save = NewCoalescer(saveDelay, clock, s.saveNow)
	if !opts.DisableExpressions {
		s.expr = expr.NewEvaluator(opts.ExprTimeout)
	}

	for _, desc := range opts.RegisterNodes {
		if err := s.registerLocked(desc); err != nil {
			return nil, err
		}
	}
	s.logger.Debug("instantiated", zap.Int("node_types", s.store.Len()))
	return s, nil
}

func (s *System) lock() { s.mu.Lock() }

// unlock releases the lock and dispatches the events queued meanwhile.
func (s *System) unlock() {
	events := s.events
	s.events = nil
	s.mu.Unlock()
	s.listeners.dispatch(events)
}

func (s *System) queue(ev Event) {
	ev.SystemID = s.id
	s.events = append(s.events, ev)
}

// ID returns the system's process-unique id.
func (s *System) ID() int { return s.id }

// Subscribe registers fn for all future events and returns a function that
// removes it.
func (s *System) Subscribe(fn Listener) func() {
	return s.listeners.add(fn)
}

// RegisterNodeType parses and registers a node type.
func (s *System) RegisterNodeType(desc TypeDescriptor) error {
	s.lock()
	defer s.unlock()
	return s.registerLocked(desc)
}

func (s *System) registerLocked(desc TypeDescriptor) error {
	t, err := s.parser.ParseType(desc)
	if err != nil {
		return err
	}
	if err := s.store.Add(t); err != nil {
		return err
	}
	s.logger.Debug("registered node type", zap.String("type", t.Type), zap.String("title", t.Title))
	return nil
}

// NodeTypes returns the registered node types.
func (s *System) NodeTypes() []*NodeType {
	s.lock()
	defer s.unlock()
	return s.store.Types()
}

// NodeType returns the node type registered under key.
func (s *System) NodeType(key string) (*NodeType, bool) {
	s.lock()
	defer s.unlock()
	return s.store.Get(key)
}

// IsLoaded reports whether the system has been loaded.
func (s *System) IsLoaded() bool {
	s.lock()
	defer s.unlock()
	return s.loaded
}

// Result returns the output node's latest result.
func (s *System) Result() *Result {
	s.lock()
	defer s.unlock()
	return s.result
}

func (s *System) setResult(res *Result) {
	s.result = res
	if s.loaded {
		s.queue(Event{Type: EventResult, Result: res})
	}
}

// Nodes returns the system's nodes in insertion order.
func (s *System) Nodes() []*Node {
	s.lock()
	defer s.unlock()
	return append([]*Node(nil), s.nodes...)
}

// FindNodeByID returns the node with the given id, or nil.
func (s *System) FindNodeByID(id string) *Node {
	s.lock()
	defer s.unlock()
	return s.byID[id]
}

// OutputNode returns the designated output node, or nil.
func (s *System) OutputNode() *Node {
	s.lock()
	defer s.unlock()
	return s.output
}

// Settings returns the generation settings.
func (s *System) Settings() Settings {
	s.lock()
	defer s.unlock()
	return s.settings
}

// SetSettings replaces the generation settings and recomputes every node.
func (s *System) SetSettings(settings Settings) {
	s.lock()
	defer s.unlock()
	s.settings = settings.withDefaults()
	for _, n := range s.nodes {
		s.schedule(n.id)
	}
	s.propagate()
}

// CreateNode creates a node from props and adds it to the system. Creating
// a node of the output type makes it the output node, removing any previous
// one.
func (s *System) CreateNode(props NodeProps) (*Node, error) {
	s.lock()
	defer s.unlock()

	n, err := s.factory.Create(props)
	if err != nil {
		return nil, err
	}
	s.recordAction()
	s.addNodeLocked(n)
	if n.typ.Type == s.outputType {
		s.setOutputLocked(n)
	}
	s.requestSave()
	s.propagate()

	s.logger.Info("created node", zap.String("node", n.id), zap.String("type", n.typ.Type))
	return n, nil
}

func (s *System) addNodeLocked(n *Node) {
	n.enableUpdates = true
	s.nodes = append(s.nodes, n)
	s.byID[n.id] = n
	s.schedule(n.id)
}

// SetOutputNode designates the node with the given id as the output node.
// The previous output node is removed from the system. Only nodes of the
// output type qualify.
func (s *System) SetOutputNode(id string) error {
	s.lock()
	defer s.unlock()

	n := s.byID[id]
	if n == nil {
		return registrationError("set output", fmt.Errorf("%w: %q", ErrUnknownNode, id))
	}
	if n.typ.Type != s.outputType {
		return registrationError("set output", fmt.Errorf("%w: %q is of type %q", ErrNotOutputType, id, n.typ.Type))
	}
	if n == s.output {
		return nil
	}
	s.recordAction()
	s.setOutputLocked(n)
	s.requestSave()
	s.propagate()
	return nil
}

func (s *System) setOutputLocked(n *Node) {
	if prev := s.output; prev != nil && prev != n {
		s.removeNodeLocked(prev)
	}
	s.output = n
	s.schedule(n.id)
}

// RemoveNode severs every connection of the node and removes it. Nodes
// downstream of it keep their last result.
func (s *System) RemoveNode(id string) error {
	s.lock()
	defer s.unlock()

	n := s.byID[id]
	if n == nil {
		return registrationError("remove", fmt.Errorf("%w: %q", ErrUnknownNode, id))
	}
	s.recordAction()
	s.removeNodeLocked(n)
	s.requestSave()
	s.propagate()

	s.logger.Info("removed node", zap.String("node", id), zap.String("type", n.typ.Type))
	return nil
}

func (s *System) removeNodeLocked(n *Node) {
	n.enableUpdates = false
	down := s.conns.downstream(n)

	for _, in := range n.inputs {
		s.conns.disconnect(in.ID())
	}
	for _, out := range n.outputs {
		for _, inID := range append([]string(nil), s.conns.targets[out.ID()]...) {
			s.conns.disconnect(inID)
		}
	}

	for i, m := range s.nodes {
		if m == n {
			s.nodes = append(s.nodes[:i:i], s.nodes[i+1:]...)
			break
		}
	}
	delete(s.byID, n.id)
	delete(s.dirty, n.id)
	if s.output == n {
		s.output = nil
	}
	s.schedule(down...)
}

// SpliceNode removes a node while reconnecting its upstream sources to its
// downstream targets. Inputs and fan-out targets are paired by position:
// the source of the i-th input feeds the i-th target. Pairs that do not line
// up or are incompatible are left unconnected.
func (s *System) SpliceNode(id string) error {
	s.lock()
	defer s.unlock()

	n := s.byID[id]
	if n == nil {
		return registrationError("splice", fmt.Errorf("%w: %q", ErrUnknownNode, id))
	}

	left := make([]string, len(n.inputs))
	for i, in := range n.inputs {
		left[i] = s.conns.sources[in.ID()]
	}
	var right []string
	for _, out := range n.outputs {
		right = append(right, s.conns.targets[out.ID()]...)
	}

	s.recordAction()
	for i, src := range left {
		if src == "" || i >= len(right) {
			continue
		}
		if err := s.connectLocked(src, right[i]); err != nil {
			s.logger.Debug("splice left sockets unconnected",
				zap.String("output", src),
				zap.String("input", right[i]),
				zap.Error(err))
		}
	}
	s.removeNodeLocked(n)
	s.requestSave()
	s.propagate()
	return nil
}

// Connect wires an output socket to an input socket, replacing the input's
// existing connection. Type mismatches, self-loops, cycles and unknown
// sockets are rejected; the graph is then unchanged and an error event of
// type connection is emitted.
func (s *System) Connect(outputID, inputID string) error {
	s.lock()
	defer s.unlock()

	if err := s.connectLocked(outputID, inputID); err != nil {
		s.queue(Event{Type: EventError, ErrorType: ErrorTypeConnection, Err: err})
		return err
	}
	s.requestSave()
	s.propagate()
	return nil
}

func (s *System) connectLocked(outputID, inputID string) error {
	out, err := s.resolveOutput(outputID)
	if err != nil {
		return connectionError("connect", "", err)
	}
	in, err := s.resolveInput(inputID)
	if err != nil {
		return connectionError("connect", out.node.id, err)
	}
	if out.node == in.node {
		return connectionError("connect", in.node.id, ErrSelfLoop)
	}
	if !compatible(out.types, in.types) {
		return connectionError("connect", in.node.id, fmt.Errorf("%w: %v -> %v", ErrTypeMismatch, out.types, in.types))
	}
	if reaches(s.byID, s.conns, in.node.id, out.node.id) {
		return connectionError("connect", in.node.id, fmt.Errorf("%w: %s -> %s", ErrCycle, outputID, inputID))
	}
	if s.conns.sources[inputID] == outputID {
		return nil
	}

	s.recordAction()
	s.conns.disconnect(inputID)
	s.conns.connect(outputID, inputID)
	s.schedule(in.node.id)
	s.logger.Debug("connected", zap.String("output", outputID), zap.String("input", inputID))
	return nil
}

// Disconnect removes the connection feeding an input socket, if any.
func (s *System) Disconnect(inputID string) error {
	s.lock()
	defer s.unlock()

	in, err := s.resolveInput(inputID)
	if err != nil {
		err = connectionError("disconnect", "", err)
		s.queue(Event{Type: EventError, ErrorType: ErrorTypeConnection, Err: err})
		return err
	}
	if _, ok := s.conns.sources[inputID]; !ok {
		return nil
	}
	s.recordAction()
	s.conns.disconnect(inputID)
	s.schedule(in.node.id)
	s.requestSave()
	s.propagate()
	return nil
}

func (s *System) resolveOutput(id string) (*Output, error) {
	nodeID, key, ok := splitSocketID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDanglingSocket, id)
	}
	n := s.byID[nodeID]
	if n == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	out := n.outputByKey(key)
	if out == nil {
		return nil, fmt.Errorf("%w: %q", ErrDanglingSocket, id)
	}
	return out, nil
}

func (s *System) resolveInput(id string) (*Input, error) {
	nodeID, key, ok := splitSocketID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDanglingSocket, id)
	}
	n := s.byID[nodeID]
	if n == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	in := n.Input(key)
	if in == nil {
		return nil, fmt.Errorf("%w: %q", ErrDanglingSocket, id)
	}
	return in, nil
}

// SetParameter sets a node's parameter state and recomputes downstream.
func (s *System) SetParameter(nodeID, name string, value any) error {
	s.lock()
	defer s.unlock()

	n := s.byID[nodeID]
	if n == nil {
		return registrationError("set parameter", fmt.Errorf("%w: %q", ErrUnknownNode, nodeID))
	}
	if _, ok := n.typ.Parameter(name); !ok {
		return &Error{Kind: KindRegistration, Op: "set parameter", NodeID: nodeID, Err: fmt.Errorf("%w: %q", ErrInvalidParameter, name)}
	}
	v, err := normalizeValue(value)
	if err != nil {
		return &Error{Kind: KindRegistration, Op: "set parameter", NodeID: nodeID, Err: fmt.Errorf("%q: %w", name, err)}
	}
	if sameValue(n.state[name], v) {
		return nil
	}

	s.recordAction()
	if v == nil {
		delete(n.state, name)
	} else {
		n.state[name] = v
	}
	s.schedule(n.id)
	s.requestSave()
	s.propagate()
	return nil
}

func sameValue(a, b any) bool {
	x := &NodeData{State: map[string]any{"v": a}}
	y := &NodeData{State: map[string]any{"v": b}}
	return equalNodeData(x, y)
}

// SetAttributes replaces a node's presentation attributes.
func (s *System) SetAttributes(nodeID string, attrs Attributes) error {
	s.lock()
	defer s.unlock()

	n := s.byID[nodeID]
	if n == nil {
		return registrationError("set attributes", fmt.Errorf("%w: %q", ErrUnknownNode, nodeID))
	}
	s.recordAction()
	n.attributes = attrs.clone()
	s.requestSave()
	return nil
}

// Meta returns the system metadata.
func (s *System) Meta() Meta {
	s.lock()
	defer s.unlock()
	return s.meta
}

// SetMetaData updates the metadata in place and schedules a save.
func (s *System) SetMetaData(update func(m *Meta)) {
	s.lock()
	defer s.unlock()
	update(&s.meta)
	s.requestSave()
}

// Inputs returns every input socket accepting typ. An empty typ or "*"
// returns all inputs.
func (s *System) Inputs(typ string) []*Input {
	s.lock()
	defer s.unlock()

	var out []*Input
	for _, n := range s.nodes {
		for _, in := range n.inputs {
			if typ == "" || typ == AnyType || hasType(in.types, AnyType) || hasType(in.types, typ) {
				out = append(out, in)
			}
		}
	}
	return out
}

// Outputs returns every output socket producing one of types. No types, or
// "*" among them, returns all outputs.
func (s *System) Outputs(types ...string) []*Output {
	s.lock()
	defer s.unlock()

	all := len(types) == 0 || hasType(types, AnyType)
	var out []*Output
	for _, n := range s.nodes {
		for _, o := range n.outputs {
			if all || hasType(o.types, AnyType) || intersects(o.types, types) {
				out = append(out, o)
			}
		}
	}
	return out
}

func hasType(types []string, t string) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if hasType(b, v) {
			return true
		}
	}
	return false
}

// Serialize returns the system's snapshot, history and metadata included.
func (s *System) Serialize() SystemData {
	s.lock()
	defer s.unlock()
	return s.serializeLocked()
}

func (s *System) serializeLocked() SystemData {
	h := s.history.data()
	return SystemData{
		Nodes:   s.parser.data(s.nodes, s.conns),
		History: &h,
		Meta:    s.meta,
	}
}

// Load replaces the system's graph, history and metadata with data. A
// snapshot without history clears the undo stack. On failure the previous
// state is left untouched and an error event of type loading is emitted.
func (s *System) Load(data SystemData) error {
	s.lock()
	defer s.unlock()

	if err := s.loadLocked(data, true); err != nil {
		s.logger.Error("failed to load system", zap.Error(err))
		s.queue(Event{Type: EventError, ErrorType: ErrorTypeLoading, Err: err})
		return err
	}
	s.save.Cancel()
	return nil
}

func (s *System) loadLocked(data SystemData, withHistory bool) error {
	g, err := s.parser.parseNodes(data.Nodes, s.outputType)
	if err != nil {
		return err
	}
	if withHistory && data.History != nil {
		if h := data.History; h.Index < -1 || h.Index >= len(h.Steps) {
			return serializationError("load", "", fmt.Errorf("history index %d out of range", h.Index))
		}
	}

	s.loaded = false
	s.paused = true
	for _, n := range s.nodes {
		n.enableUpdates = false
	}

	s.nodes = nil
	s.byID = make(map[string]*Node, len(g.nodes))
	s.conns = g.conns
	g.factory.reserve(s.factory)
	s.factory = g.factory
	s.output = g.output
	s.result = nil
	s.dirty = make(map[string]struct{})
	for _, n := range g.nodes {
		s.addNodeLocked(n)
	}
	s.meta = data.Meta

	switch {
	case !withHistory:
		s.history.reset()
	case data.History != nil:
		if err := s.history.restore(*data.History); err != nil {
			return serializationError("load", "", err)
		}
	default:
		s.history.clear()
	}

	s.paused = false
	s.loaded = true
	s.propagate()

	s.logger.Info("loaded system", zap.Int("nodes", len(s.nodes)))
	return nil
}

// Undo reverts the current history step. It reports false at the beginning
// of the stack.
func (s *System) Undo() bool {
	s.lock()
	defer s.unlock()

	s.history.pending.Flush()
	if !s.history.canUndo() {
		s.logger.Info("reached beginning of history")
		return false
	}
	if !s.applyDiff(s.history.steps[s.history.index].Previous, "undo") {
		return false
	}
	s.history.index--
	return true
}

// Redo reapplies the next history step. It reports false at the end of the
// stack.
func (s *System) Redo() bool {
	s.lock()
	defer s.unlock()

	s.history.pending.Flush()
	if !s.history.canRedo() {
		s.logger.Info("reached end of history")
		return false
	}
	if !s.applyDiff(s.history.steps[s.history.index+1].Next, "redo") {
		return false
	}
	s.history.index++
	return true
}

func (s *System) applyDiff(diff NodeDiff, op string) bool {
	s.history.applying = true
	defer func() { s.history.applying = false }()

	data := s.serializeLocked()
	data.Nodes = mergeNodes(data.Nodes, diff)
	if err := s.loadLocked(data, false); err != nil {
		s.logger.Error("failed to apply history step", zap.String("op", op), zap.Error(err))
		s.queue(Event{Type: EventError, ErrorType: ErrorTypeLoading, Err: err})
		return false
	}
	s.requestSave()
	return true
}

// CanUndo reports whether a committed or pending step can be undone.
func (s *System) CanUndo() bool {
	s.lock()
	defer s.unlock()
	return s.history.canUndo() || s.history.pending.Pending()
}

// CanRedo reports whether Redo would apply a step.
func (s *System) CanRedo() bool {
	s.lock()
	defer s.unlock()
	return s.history.canRedo() && !s.history.pending.Pending()
}

// History returns a copy of the undo stack.
func (s *System) History() HistoryData {
	s.lock()
	defer s.unlock()
	return s.history.data()
}

// recordAction opens or extends a history burst. It must run before the
// mutation it records.
func (s *System) recordAction() {
	if s.loaded {
		s.history.addAction()
	}
}

func (s *System) requestSave() {
	s.save.Trigger()
}

func (s *System) saveNow() {
	if !s.loaded {
		return
	}
	s.meta.LastSaved = s.clock.Now().UnixMilli()
	data := s.serializeLocked()
	s.queue(Event{Type: EventSave, Data: &data})
	s.logger.Debug("save system", zap.Int("nodes", len(data.Nodes)))
}

// FlushPending commits any pending history step and emits any pending save
// immediately.
func (s *System) FlushPending() {
	s.lock()
	defer s.unlock()
	s.history.pending.Flush()
	s.save.Flush()
}

// Tick fires pending history and save work whose quiet interval elapsed.
func (s *System) Tick() {
	s.lock()
	defer s.unlock()
	s.history.pending.Tick()
	s.save.Tick()
}

// Run drives Tick until ctx is cancelled, then flushes pending work.
func (s *System) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.FlushPending()
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Validate checks the graph's structure: cycles, dangling connections,
// unconnected required inputs and a missing output node.
func (s *System) Validate() []ValidationError {
	s.lock()
	defer s.unlock()

	var errs []ValidationError
	if e := validateDAG(s.nodes, s.conns); e != nil {
		errs = append(errs, *e)
	}
	errs = append(errs, validateReferences(s.byID, s.conns)...)
	errs = append(errs, validateInputs(s.nodes, s.conns)...)
	if s.output == nil {
		errs = append(errs, ValidationError{Message: "no output node", Severity: SeverityWarning})
	}
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Severity != errs[j].Severity {
			return errs[i].Severity < errs[j].Severity
		}
		return errs[i].NodeID < errs[j].NodeID
	})
	return errs
}
