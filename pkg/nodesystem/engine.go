package nodesystem

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/geometry"
	"github.com/chazu/plantarium/pkg/metrics"
)

// schedule marks nodes for recomputation in the next pass.
func (s *System) schedule(ids ...string) {
	for _, id := range ids {
		s.dirty[id] = struct{}{}
	}
}

// propagate runs passes until no scheduled work is left. Passes never
// overlap: work scheduled while a pass runs is picked up by the next one.
func (s *System) propagate() {
	if s.running || s.paused {
		return
	}
	s.running = true
	defer func() { s.running = false }()

	for len(s.dirty) > 0 {
		seeds := s.dirty
		s.dirty = make(map[string]struct{})
		s.pass(seeds)
	}
}

// pass recomputes the downstream closure of seeds in topological order.
func (s *System) pass(seeds map[string]struct{}) {
	start := time.Now()
	order, cyclic, stranded := s.passOrder(seeds)

	// failed holds nodes that failed or sit downstream of a failure.
	failed := make(map[string]bool)
	var computed int
	for _, n := range order {
		if !n.enableUpdates {
			continue
		}
		if s.blocked(n, failed) {
			failed[n.id] = true
			metrics.NodeComputed(n.typ.Type, metrics.StatusSkipped)
			continue
		}
		switch s.computeNode(n) {
		case outcomeFailed:
			failed[n.id] = true
		case outcomeComputed:
			computed++
		}
	}

	for _, n := range cyclic {
		err := computationError("compute", n.id, fmt.Errorf("%w: node %s is part of a cycle", ErrCycle, n.id))
		n.err = err
		s.queue(Event{Type: EventError, NodeID: n.id, ErrorType: ErrorTypeComputation, Err: err})
		metrics.NodeComputed(n.typ.Type, metrics.StatusError)
	}
	// Nodes fed by a cycle keep their last result.
	for _, n := range stranded {
		metrics.NodeComputed(n.typ.Type, metrics.StatusSkipped)
	}

	d := time.Since(start)
	metrics.ObservePass(d)
	s.logger.Debug("propagation pass",
		zap.Int("scheduled", len(seeds)),
		zap.Int("computed", computed),
		zap.Int("failed", len(failed)),
		zap.Int("cyclic", len(cyclic)),
		zap.Int("stranded", len(stranded)),
		zap.Duration("took", d))
}

// passOrder returns the downstream closure of seeds in Kahn order. Nodes
// left over by Kahn's algorithm are split into those that sit on a cycle and
// those that are only fed by one.
func (s *System) passOrder(seeds map[string]struct{}) (order, cyclic, stranded []*Node) {
	closure := make(map[string]bool)
	queue := make([]string, 0, len(seeds))
	for id := range seeds {
		if s.byID[id] != nil && !closure[id] {
			closure[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		n := s.byID[queue[0]]
		queue = queue[1:]
		for _, next := range s.conns.downstream(n) {
			if !closure[next] && s.byID[next] != nil {
				closure[next] = true
				queue = append(queue, next)
			}
		}
	}

	indegree := make(map[string]int, len(closure))
	for id := range closure {
		n := s.byID[id]
		for _, up := range s.conns.upstream(n) {
			if closure[up] {
				indegree[id]++
			}
		}
	}

	// Seed the queue in node order so passes are deterministic.
	for _, n := range s.nodes {
		if closure[n.id] && indegree[n.id] == 0 {
			queue = append(queue, n.id)
		}
	}
	done := make(map[string]bool, len(closure))
	for len(queue) > 0 {
		n := s.byID[queue[0]]
		queue = queue[1:]
		done[n.id] = true
		order = append(order, n)
		for _, next := range s.conns.downstream(n) {
			if !closure[next] {
				continue
			}
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for _, n := range s.nodes {
		if !closure[n.id] || done[n.id] {
			continue
		}
		if s.onCycle(n, done) {
			cyclic = append(cyclic, n)
		} else {
			stranded = append(stranded, n)
		}
	}
	return order, cyclic, stranded
}

// onCycle reports whether n can reach itself through nodes Kahn's algorithm
// did not order.
func (s *System) onCycle(n *Node, done map[string]bool) bool {
	for _, next := range s.conns.downstream(n) {
		if !done[next] && reaches(s.byID, s.conns, next, n.id) {
			return true
		}
	}
	return false
}

// blocked reports whether any upstream node of n failed in this pass.
func (s *System) blocked(n *Node, failed map[string]bool) bool {
	for _, up := range s.conns.upstream(n) {
		if failed[up] {
			return true
		}
	}
	return false
}

type outcome int

const (
	outcomeComputed outcome = iota
	outcomeStale            // previous result kept
	outcomeFailed
)

func (s *System) computeNode(n *Node) outcome {
	if len(n.typ.Outputs) == 0 && n != s.output {
		metrics.NodeComputed(n.typ.Type, metrics.StatusStale)
		return outcomeStale
	}
	params, ok := s.resolveParameters(n)
	if !ok {
		metrics.NodeComputed(n.typ.Type, metrics.StatusStale)
		return outcomeStale
	}

	res, err := s.runCompute(n, params)
	if err != nil {
		err = computationError("compute", n.id, err)
		n.err = err
		s.logger.Warn("node computation failed",
			zap.String("node", n.id),
			zap.String("type", n.typ.Type),
			zap.Error(err))
		s.queue(Event{Type: EventError, NodeID: n.id, ErrorType: ErrorTypeComputation, Err: err})
		metrics.NodeComputed(n.typ.Type, metrics.StatusError)
		return outcomeFailed
	}

	n.result = res
	n.err = nil
	metrics.NodeComputed(n.typ.Type, metrics.StatusOK)
	s.queue(Event{Type: EventComputed, NodeID: n.id, Result: res})
	if n == s.output {
		s.setResult(res)
	}
	return outcomeComputed
}

// resolveParameters gathers literal state and connected upstream results.
// It reports false when a required input is absent, in which case the node
// keeps its previous result.
func (s *System) resolveParameters(n *Node) (Parameters, bool) {
	params := make(Parameters, len(n.typ.Parameters))
	for _, p := range n.typ.Parameters {
		if p.Spec.External {
			if src, ok := s.conns.sources[socketID(n.id, p.Name)]; ok {
				upID, _, _ := splitSocketID(src)
				up := s.byID[upID]
				if up == nil || up.result == nil {
					return nil, false
				}
				params[p.Name] = up.result
				continue
			}
		}
		if v, ok := n.state[p.Name]; ok && v != nil {
			params[p.Name] = v
			continue
		}
		if p.Spec.Value == nil {
			if p.Spec.External {
				return nil, false
			}
			continue
		}
		params[p.Name] = p.Spec.Value
	}
	return params, true
}

// runCompute runs both compute phases, converting panics into errors.
func (s *System) runCompute(n *Node, params Parameters) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic during computation: %v", r)
		}
	}()

	ctx := newContext(n.id, s.settings, s.expr)
	skeleton, err := n.typ.ComputeSkeleton(params, ctx)
	if err != nil {
		return nil, fmt.Errorf("compute skeleton: %w", err)
	}
	res, err = n.typ.ComputeGeometry(params, skeleton, ctx)
	if err != nil {
		return nil, fmt.Errorf("compute geometry: %w", err)
	}
	if res == nil {
		res = skeleton
	}
	if res != nil && res.Geometry != nil {
		if err := geometry.SanityCheck(res.Geometry); err != nil {
			return nil, fmt.Errorf("compute geometry: %w", err)
		}
	}
	return res, nil
}
