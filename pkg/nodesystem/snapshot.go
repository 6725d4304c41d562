package nodesystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// SystemData is the serializable form of a node system.
type SystemData struct {
	Nodes   []NodeData   `json:"nodes" yaml:"nodes"`
	History *HistoryData `json:"history,omitempty" yaml:"history,omitempty"`
	Meta    Meta         `json:"meta" yaml:"meta"`
}

// NodeData is the serializable form of one node.
type NodeData struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"type" yaml:"type"`
	Attributes Attributes     `json:"attributes" yaml:"attributes"`
	State      map[string]any `json:"state" yaml:"state"`
	Sockets    SocketsData    `json:"sockets" yaml:"sockets"`
}

// SocketsData holds a node's socket wiring.
type SocketsData struct {
	Inputs  []InputData  `json:"inputs" yaml:"inputs"`
	Outputs []OutputData `json:"outputs" yaml:"outputs"`
}

// InputData describes an input socket and its connection, if any.
type InputData struct {
	ID                string   `json:"id" yaml:"id"`
	Type              []string `json:"type" yaml:"type"`
	ConnectedOutputID *string  `json:"connectedOutputId" yaml:"connectedOutputId"`
}

// OutputData describes an output socket and its fan-out.
type OutputData struct {
	ID                string   `json:"id" yaml:"id"`
	Type              []string `json:"type" yaml:"type"`
	ConnectedInputIDs []string `json:"connectedInputIds" yaml:"connectedInputIds"`
}

// Meta is free-form system metadata.
type Meta struct {
	LastSaved int64     `json:"lastSaved" yaml:"lastSaved"` // epoch milliseconds
	Transform Transform `json:"transform" yaml:"transform"`
}

// Transform is the editor viewport transform.
type Transform struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	S float64 `json:"s" yaml:"s"`
}

// HistoryData is the serialized undo stack.
type HistoryData struct {
	Steps []HistoryStep `json:"steps" yaml:"steps"`
	Index int           `json:"index" yaml:"index"`
}

// HistoryStep is one coalesced edit: the partial node state before and
// after it.
type HistoryStep struct {
	Previous NodeDiff `json:"previous" yaml:"previous"`
	Next     NodeDiff `json:"next" yaml:"next"`
}

// NodeDiff is a node-granular partial snapshot. Nodes maps a node ID to its
// full data, or nil when the node is absent on this side. Order is set only
// when node membership or order changed.
type NodeDiff struct {
	Nodes map[string]*NodeData `json:"nodes" yaml:"nodes"`
	Order []string             `json:"order,omitempty" yaml:"order,omitempty"`
}

// DecodeJSON reads a snapshot from JSON.
func DecodeJSON(r io.Reader) (SystemData, error) {
	var data SystemData
	dec := json.NewDecoder(r)
	if err := dec.Decode(&data); err != nil {
		return SystemData{}, serializationError("decode", "", err)
	}
	return data, nil
}

// DecodeYAML reads a snapshot from YAML.
func DecodeYAML(r io.Reader) (SystemData, error) {
	var data SystemData
	if err := yaml.NewDecoder(r).Decode(&data); err != nil {
		return SystemData{}, serializationError("decode", "", err)
	}
	return data, nil
}

// Decode reads a snapshot in the given format ("json" or "yaml").
func Decode(r io.Reader, format string) (SystemData, error) {
	switch format {
	case "", "json":
		return DecodeJSON(r)
	case "yaml", "yml":
		return DecodeYAML(r)
	}
	return SystemData{}, serializationError("decode", "", fmt.Errorf("unknown format %q", format))
}

// Encode writes a snapshot in the given format ("json" or "yaml").
func Encode(w io.Writer, data SystemData, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

// equalNodeData compares two node snapshots by their canonical JSON form.
func equalNodeData(a, b *NodeData) bool {
	if a == nil || b == nil {
		return a == b
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// cloneNodeData deep-copies nd.
func cloneNodeData(nd NodeData) NodeData {
	out := NodeData{
		ID:         nd.ID,
		Type:       nd.Type,
		Attributes: nd.Attributes.clone(),
		State:      cloneState(nd.State),
	}
	out.Sockets.Inputs = make([]InputData, len(nd.Sockets.Inputs))
	for i, in := range nd.Sockets.Inputs {
		c := InputData{ID: in.ID, Type: append([]string{}, in.Type...)}
		if in.ConnectedOutputID != nil {
			s := *in.ConnectedOutputID
			c.ConnectedOutputID = &s
		}
		out.Sockets.Inputs[i] = c
	}
	out.Sockets.Outputs = make([]OutputData, len(nd.Sockets.Outputs))
	for i, o := range nd.Sockets.Outputs {
		out.Sockets.Outputs[i] = OutputData{
			ID:                o.ID,
			Type:              append([]string{}, o.Type...),
			ConnectedInputIDs: append([]string{}, o.ConnectedInputIDs...),
		}
	}
	return out
}

// cloneState copies a state map; value objects are copied deeply.
func cloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		if pv, ok := v.(ParameterValue); ok {
			v = pv.clone()
		}
		out[k] = v
	}
	return out
}
