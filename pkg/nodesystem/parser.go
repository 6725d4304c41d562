package nodesystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParseType validates a raw type descriptor and converts it into a NodeType.
// It is pure: the descriptor is not modified and nothing is registered.
//
// Omitted optional fields are defaulted so that re-serialization is stable:
// labels default to the parameter name, slider steps to a hundredth of the
// range and numeric defaults to the lower bound (or 0).
func ParseType(desc TypeDescriptor) (*NodeType, error) {
	if err := validateStruct(desc); err != nil {
		return nil, registrationError("parse type", fmt.Errorf("%w: %q: %v", ErrInvalidParameter, desc.Type, err))
	}

	t := &NodeType{
		Title:           desc.Title,
		Type:            desc.Type,
		Outputs:         append([]string(nil), desc.Outputs...),
		ComputeSkeleton: desc.ComputeSkeleton,
		ComputeGeometry: desc.ComputeGeometry,
	}

	for _, name := range parameterOrder(desc) {
		if name == "" || strings.Contains(name, ":") {
			return nil, registrationError("parse type", fmt.Errorf("%w: %q: bad parameter name %q", ErrInvalidParameter, desc.Type, name))
		}
		spec, err := normalizeSpec(name, desc.Parameters[name])
		if err != nil {
			return nil, registrationError("parse type", fmt.Errorf("%q: %w", desc.Type, err))
		}
		t.Parameters = append(t.Parameters, Parameter{Name: name, Spec: spec})
	}
	return t, nil
}

// parameterOrder lists the descriptor's parameters: Order first, then the
// remaining names alphabetically.
func parameterOrder(desc TypeDescriptor) []string {
	seen := make(map[string]bool, len(desc.Parameters))
	var names []string
	for _, name := range desc.Order {
		if _, ok := desc.Parameters[name]; ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	var rest []string
	for name := range desc.Parameters {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func normalizeSpec(name string, spec ParameterSpec) (ParameterSpec, error) {
	if spec.Label == "" {
		spec.Label = name
	}
	if spec.InputType == "slider" && spec.Step == nil && spec.Min != nil && spec.Max != nil {
		step := (*spec.Max - *spec.Min) / 100
		spec.Step = &step
	}
	if spec.Value == nil && spec.Type == "number" {
		v := 0.0
		if spec.Min != nil {
			v = *spec.Min
		}
		spec.Value = v
	}
	v, err := normalizeValue(spec.Value)
	if err != nil {
		return spec, fmt.Errorf("parameter %q default: %w", name, err)
	}
	spec.Value = v
	spec.Values = append([]string(nil), spec.Values...)
	if len(spec.Values) == 0 {
		spec.Values = nil
	}
	return spec, nil
}

// normalizeValue converts a parameter value into its canonical form:
// float64, bool, string or ParameterValue. Value objects decoded from JSON or
// YAML arrive as maps and are converted here.
func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		return f, nil
	case ParameterValue:
		return x.clone(), nil
	case *ParameterValue:
		if x == nil {
			return nil, nil
		}
		return x.clone(), nil
	case map[string]any:
		return decodeParameterValue(x)
	}
	return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidParameter, v)
}

func decodeParameterValue(m map[string]any) (ParameterValue, error) {
	if _, ok := m["value"]; !ok {
		return ParameterValue{}, fmt.Errorf("%w: value object without value", ErrInvalidParameter)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ParameterValue{}, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var pv ParameterValue
	if err := dec.Decode(&pv); err != nil {
		return ParameterValue{}, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return pv.clone(), nil
}

// NodeParser converts between live nodes and their snapshot form.
type NodeParser struct {
	store *NodeTypeStore
}

// NewNodeParser creates a parser resolving node types from store.
func NewNodeParser(store *NodeTypeStore) *NodeParser {
	return &NodeParser{store: store}
}

// ParseType parses a type descriptor; see the package-level ParseType.
func (p *NodeParser) ParseType(desc TypeDescriptor) (*NodeType, error) {
	return ParseType(desc)
}

// parsedGraph is a fully validated graph built from a snapshot, not yet
// installed into a system.
type parsedGraph struct {
	nodes   []*Node
	factory *NodeFactory
	conns   *connections
	output  *Node
}

// parseNodes builds nodes and connections from snapshot node data. Nothing
// is installed; any failure leaves the caller's graph untouched.
func (p *NodeParser) parseNodes(data []NodeData, outputType string) (*parsedGraph, error) {
	g := &parsedGraph{
		factory: NewNodeFactory(p.store),
		conns:   newConnections(),
	}
	byID := make(map[string]*Node, len(data))

	for _, nd := range data {
		if nd.ID == "" {
			return nil, serializationError("load", "", fmt.Errorf("node of type %q has no id", nd.Type))
		}
		n, err := g.factory.Create(NodeProps{
			ID:         nd.ID,
			Type:       nd.Type,
			Attributes: nd.Attributes,
			State:      nd.State,
		})
		if err != nil {
			return nil, serializationError("load", nd.ID, err)
		}
		if n.typ.Type == outputType {
			if g.output != nil {
				return nil, serializationError("load", nd.ID, fmt.Errorf("multiple output nodes (%s, %s)", g.output.id, nd.ID))
			}
			g.output = n
		}
		byID[n.id] = n
		g.nodes = append(g.nodes, n)
	}

	lookupOutput := func(id string) *Output {
		nodeID, key, ok := splitSocketID(id)
		if !ok {
			return nil
		}
		if n := byID[nodeID]; n != nil {
			return n.outputByKey(key)
		}
		return nil
	}

	for _, nd := range data {
		n := byID[nd.ID]
		for _, in := range nd.Sockets.Inputs {
			if in.ConnectedOutputID == nil {
				continue
			}
			input := n.inputByID(in.ID)
			if input == nil {
				return nil, serializationError("load", n.id, fmt.Errorf("%w: input %q", ErrDanglingSocket, in.ID))
			}
			out := lookupOutput(*in.ConnectedOutputID)
			if out == nil {
				return nil, serializationError("load", n.id, fmt.Errorf("%w: output %q", ErrDanglingSocket, *in.ConnectedOutputID))
			}
			if out.node == n {
				return nil, serializationError("load", n.id, ErrSelfLoop)
			}
			if !compatible(out.types, input.types) {
				return nil, serializationError("load", n.id, fmt.Errorf("%w: %s -> %s", ErrTypeMismatch, out.ID(), input.ID()))
			}
			g.conns.sources[input.ID()] = out.ID()
		}
	}

	// Fan-out order follows the outputs' lists where they agree with the
	// inputs, which are authoritative.
	for _, nd := range data {
		for _, out := range nd.Sockets.Outputs {
			for _, inID := range out.ConnectedInputIDs {
				if g.conns.sources[inID] == out.ID && !contains(g.conns.targets[out.ID], inID) {
					g.conns.targets[out.ID] = append(g.conns.targets[out.ID], inID)
				}
			}
		}
	}
	for _, n := range g.nodes {
		for _, in := range n.inputs {
			src, ok := g.conns.sources[in.ID()]
			if ok && !contains(g.conns.targets[src], in.ID()) {
				g.conns.targets[src] = append(g.conns.targets[src], in.ID())
			}
		}
	}

	if err := validateDAG(g.nodes, g.conns); err != nil {
		return nil, serializationError("load", err.NodeID, fmt.Errorf("%w: %s", ErrCycle, err.Message))
	}
	return g, nil
}

// nodeData serializes one node with its socket wiring.
func (p *NodeParser) nodeData(n *Node, conns *connections) NodeData {
	nd := NodeData{
		ID:         n.id,
		Type:       n.typ.Type,
		Attributes: n.attributes.clone(),
		State:      cloneState(n.state),
	}
	nd.Sockets.Inputs = make([]InputData, 0, len(n.inputs))
	for _, in := range n.inputs {
		d := InputData{ID: in.ID(), Type: append([]string{}, in.types...)}
		if src, ok := conns.sources[in.ID()]; ok {
			s := src
			d.ConnectedOutputID = &s
		}
		nd.Sockets.Inputs = append(nd.Sockets.Inputs, d)
	}
	nd.Sockets.Outputs = make([]OutputData, 0, len(n.outputs))
	for _, out := range n.outputs {
		nd.Sockets.Outputs = append(nd.Sockets.Outputs, OutputData{
			ID:                out.ID(),
			Type:              append([]string{}, out.types...),
			ConnectedInputIDs: append([]string{}, conns.targets[out.ID()]...),
		})
	}
	return nd
}

// data serializes nodes in order.
func (p *NodeParser) data(nodes []*Node, conns *connections) []NodeData {
	out := make([]NodeData, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, p.nodeData(n, conns))
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
