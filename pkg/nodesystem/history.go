package nodesystem

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/metrics"
)

const (
	// MaxHistorySteps bounds the undo stack; the oldest steps are evicted.
	MaxHistorySteps = 60
	// DefaultHistoryDelay is the quiet interval that settles an edit burst.
	DefaultHistoryDelay = 200 * time.Millisecond
)

// nodeHistory is the coalesced, diff-based undo stack of a System. index
// points at the currently applied step, -1 meaning before the first one.
type nodeHistory struct {
	steps    []HistoryStep
	index    int
	before   []NodeData
	applying bool
	pending  *Coalescer
	snapshot func() []NodeData
	logger   *zap.Logger
}

func newHistory(delay time.Duration, clock Clock, snapshot func() []NodeData, logger *zap.Logger) *nodeHistory {
	h := &nodeHistory{index: -1, snapshot: snapshot, logger: logger}
	h.pending = NewCoalescer(delay, clock, h.commit)
	return h
}

// addAction must be called before a mutation. The first call of a burst
// captures the state the step will undo to.
func (h *nodeHistory) addAction() {
	if h.applying {
		return
	}
	if h.pending.Trigger() {
		h.before = h.snapshot()
	}
}

func (h *nodeHistory) commit() {
	before := h.before
	h.before = nil
	if h.applying {
		return
	}

	previous, next, changed := diffNodes(before, h.snapshot())
	if !changed {
		h.logger.Debug("dropped empty history step")
		return
	}

	// A new step while behind the tip discards the undone steps.
	if h.index != len(h.steps)-1 {
		h.steps = h.steps[:h.index+1]
	}
	h.steps = append(h.steps, HistoryStep{Previous: previous, Next: next})
	if len(h.steps) > MaxHistorySteps {
		h.steps = append([]HistoryStep(nil), h.steps[len(h.steps)-MaxHistorySteps:]...)
	}
	h.index = len(h.steps) - 1

	metrics.HistoryStepCommitted()
	h.logger.Debug("registered history step",
		zap.Int("index", h.index),
		zap.Int("changed_nodes", len(next.Nodes)))
}

func (h *nodeHistory) canUndo() bool { return h.index >= 0 }

func (h *nodeHistory) canRedo() bool { return h.index < len(h.steps)-1 }

func (h *nodeHistory) data() HistoryData {
	steps := make([]HistoryStep, len(h.steps))
	for i, s := range h.steps {
		steps[i] = HistoryStep{Previous: cloneDiff(s.Previous), Next: cloneDiff(s.Next)}
	}
	return HistoryData{Steps: steps, Index: h.index}
}

// restore replaces the stack. Oversized stacks keep their newest steps.
func (h *nodeHistory) restore(d HistoryData) error {
	if d.Index < -1 || d.Index >= len(d.Steps) {
		return fmt.Errorf("history index %d out of range [-1, %d]", d.Index, len(d.Steps)-1)
	}
	steps, index := d.Steps, d.Index
	if drop := len(steps) - MaxHistorySteps; drop > 0 {
		steps = steps[drop:]
		index = max(index-drop, -1)
	}
	h.steps = make([]HistoryStep, len(steps))
	for i, s := range steps {
		h.steps[i] = HistoryStep{Previous: cloneDiff(s.Previous), Next: cloneDiff(s.Next)}
	}
	h.index = index
	h.reset()
	return nil
}

// reset drops any pending burst.
func (h *nodeHistory) reset() {
	h.pending.Cancel()
	h.before = nil
}

func (h *nodeHistory) clear() {
	h.steps = nil
	h.index = -1
	h.reset()
}

// diffNodes returns the node-granular difference between two snapshots.
func diffNodes(before, after []NodeData) (previous, next NodeDiff, changed bool) {
	previous.Nodes = make(map[string]*NodeData)
	next.Nodes = make(map[string]*NodeData)

	beforeByID := indexNodes(before)
	afterByID := indexNodes(after)

	check := func(id string) {
		b, a := beforeByID[id], afterByID[id]
		if equalNodeData(b, a) {
			return
		}
		previous.Nodes[id] = b
		next.Nodes[id] = a
	}
	for _, nd := range before {
		check(nd.ID)
	}
	for _, nd := range after {
		if _, ok := beforeByID[nd.ID]; !ok {
			check(nd.ID)
		}
	}

	bo, ao := nodeOrder(before), nodeOrder(after)
	if !equalStrings(bo, ao) {
		previous.Order = bo
		next.Order = ao
	}
	changed = len(next.Nodes) > 0 || next.Order != nil
	return previous, next, changed
}

// mergeNodes applies a diff onto a full snapshot.
func mergeNodes(current []NodeData, diff NodeDiff) []NodeData {
	byID := make(map[string]NodeData, len(current))
	for _, nd := range current {
		byID[nd.ID] = nd
	}
	for id, nd := range diff.Nodes {
		if nd == nil {
			delete(byID, id)
		} else {
			byID[id] = cloneNodeData(*nd)
		}
	}

	order := diff.Order
	if order == nil {
		for _, nd := range current {
			order = append(order, nd.ID)
		}
	}

	out := make([]NodeData, 0, len(byID))
	for _, id := range order {
		if nd, ok := byID[id]; ok {
			out = append(out, nd)
			delete(byID, id)
		}
	}
	rest := make([]string, 0, len(byID))
	for id := range byID {
		rest = append(rest, id)
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, byID[id])
	}
	return out
}

func indexNodes(nodes []NodeData) map[string]*NodeData {
	m := make(map[string]*NodeData, len(nodes))
	for i := range nodes {
		c := cloneNodeData(nodes[i])
		m[nodes[i].ID] = &c
	}
	return m
}

func nodeOrder(nodes []NodeData) []string {
	ids := make([]string, len(nodes))
	for i, nd := range nodes {
		ids[i] = nd.ID
	}
	return ids
}

func cloneDiff(d NodeDiff) NodeDiff {
	out := NodeDiff{Nodes: make(map[string]*NodeData, len(d.Nodes))}
	for id, nd := range d.Nodes {
		if nd == nil {
			out.Nodes[id] = nil
			continue
		}
		c := cloneNodeData(*nd)
		out.Nodes[id] = &c
	}
	if d.Order != nil {
		out.Order = append([]string{}, d.Order...)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
