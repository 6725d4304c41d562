package nodesystem

import (
	"strconv"
	"strings"
)

// Socket ids have the form "<nodeID>:<key>", where key is the parameter name
// for inputs and "out<index>" for outputs.
const outputKeyPrefix = "out"

func socketID(nodeID, key string) string {
	return nodeID + ":" + key
}

func splitSocketID(id string) (nodeID, key string, ok bool) {
	i := strings.IndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// Input is a typed input socket bound to one external parameter.
type Input struct {
	node  *Node
	name  string
	types []string
}

// ID returns the socket id.
func (i *Input) ID() string { return socketID(i.node.id, i.name) }

// Node returns the owning node.
func (i *Input) Node() *Node { return i.node }

// Name returns the parameter the socket feeds.
func (i *Input) Name() string { return i.name }

// Types returns the socket's accepted type set.
func (i *Input) Types() []string { return append([]string(nil), i.types...) }

// Output is a typed output socket.
type Output struct {
	node  *Node
	index int
	types []string
}

// ID returns the socket id.
func (o *Output) ID() string { return socketID(o.node.id, outputKeyPrefix+strconv.Itoa(o.index)) }

// Node returns the owning node.
func (o *Output) Node() *Node { return o.node }

// Index returns the output's position in the node type's outputs.
func (o *Output) Index() int { return o.index }

// Types returns the socket's type set.
func (o *Output) Types() []string { return append([]string(nil), o.types...) }

// connections is the connection table: inputs hold at most one source,
// outputs fan out to inputs in connection order. Entries are socket ids.
type connections struct {
	sources map[string]string   // input id -> output id
	targets map[string][]string // output id -> input ids
}

func newConnections() *connections {
	return &connections{
		sources: make(map[string]string),
		targets: make(map[string][]string),
	}
}

func (c *connections) connect(outputID, inputID string) {
	c.sources[inputID] = outputID
	c.targets[outputID] = append(c.targets[outputID], inputID)
}

// disconnect removes the edge feeding inputID and returns its source.
func (c *connections) disconnect(inputID string) (string, bool) {
	src, ok := c.sources[inputID]
	if !ok {
		return "", false
	}
	delete(c.sources, inputID)
	list := c.targets[src]
	for i, id := range list {
		if id == inputID {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.targets, src)
	} else {
		c.targets[src] = list
	}
	return src, true
}

// downstream returns the ids of nodes fed by n, in fan-out order, without
// duplicates.
func (c *connections) downstream(n *Node) []string {
	var out []string
	seen := make(map[string]bool)
	for _, o := range n.outputs {
		for _, inID := range c.targets[o.ID()] {
			nodeID, _, _ := splitSocketID(inID)
			if !seen[nodeID] {
				seen[nodeID] = true
				out = append(out, nodeID)
			}
		}
	}
	return out
}

// upstream returns the ids of nodes feeding n, without duplicates.
func (c *connections) upstream(n *Node) []string {
	var out []string
	seen := make(map[string]bool)
	for _, in := range n.inputs {
		src, ok := c.sources[in.ID()]
		if !ok {
			continue
		}
		nodeID, _, _ := splitSocketID(src)
		if !seen[nodeID] {
			seen[nodeID] = true
			out = append(out, nodeID)
		}
	}
	return out
}
