package nodesystem

import (
	"strconv"
	"strings"
)

// Position is a 2D canvas position.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Attributes are a node's presentation attributes.
type Attributes struct {
	Name string   `json:"name" yaml:"name"`
	Pos  Position `json:"pos" yaml:"pos"`
	Refs []string `json:"refs,omitempty" yaml:"refs,omitempty"`
}

func (a Attributes) clone() Attributes {
	if len(a.Refs) == 0 {
		a.Refs = nil
		return a
	}
	a.Refs = append([]string(nil), a.Refs...)
	return a
}

// Node is a vertex of the node graph. Nodes are owned and mutated by their
// System; the accessors here return copies where values are mutable.
type Node struct {
	id         string
	typ        *NodeType
	attributes Attributes
	state      map[string]any
	inputs     []*Input
	outputs    []*Output

	result        *Result
	err           error
	enableUpdates bool
}

func newNode(id string, t *NodeType, attrs Attributes, state map[string]any) *Node {
	n := &Node{
		id:         id,
		typ:        t,
		attributes: attrs.clone(),
		state:      state,
	}
	for _, p := range t.ExternalParameters() {
		n.inputs = append(n.inputs, &Input{node: n, name: p.Name, types: socketTypes(p.Spec.Type)})
	}
	for i, kind := range t.Outputs {
		n.outputs = append(n.outputs, &Output{node: n, index: i, types: socketTypes(kind)})
	}
	return n
}

// ID returns the node's unique id.
func (n *Node) ID() string { return n.id }

// Type returns the node's type.
func (n *Node) Type() *NodeType { return n.typ }

// Attributes returns a copy of the node's attributes.
func (n *Node) Attributes() Attributes { return n.attributes.clone() }

// State returns a copy of the node's parameter state.
func (n *Node) State() map[string]any { return cloneState(n.state) }

// Value returns the state value of the named parameter.
func (n *Node) Value(name string) (any, bool) {
	v, ok := n.state[name]
	return v, ok
}

// Result returns the node's last good result, or nil.
func (n *Node) Result() *Result { return n.result }

// Err returns the error of the node's last failed computation, or nil if
// the last computation succeeded.
func (n *Node) Err() error { return n.err }

// UpdatesEnabled reports whether the node takes part in recomputation.
func (n *Node) UpdatesEnabled() bool { return n.enableUpdates }

// Inputs returns the node's input sockets in parameter order.
func (n *Node) Inputs() []*Input { return append([]*Input(nil), n.inputs...) }

// Outputs returns the node's output sockets in declaration order.
func (n *Node) Outputs() []*Output { return append([]*Output(nil), n.outputs...) }

// Input returns the input socket for the named parameter, or nil.
func (n *Node) Input(name string) *Input {
	for _, in := range n.inputs {
		if in.name == name {
			return in
		}
	}
	return nil
}

// Output returns the i-th output socket, or nil.
func (n *Node) Output(i int) *Output {
	if i < 0 || i >= len(n.outputs) {
		return nil
	}
	return n.outputs[i]
}

func (n *Node) inputByID(id string) *Input {
	nodeID, key, ok := splitSocketID(id)
	if !ok || nodeID != n.id {
		return nil
	}
	return n.Input(key)
}

func (n *Node) outputByKey(key string) *Output {
	if !strings.HasPrefix(key, outputKeyPrefix) {
		return nil
	}
	i, err := strconv.Atoi(key[len(outputKeyPrefix):])
	if err != nil {
		return nil
	}
	return n.Output(i)
}
