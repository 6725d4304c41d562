package nodesystem

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeProps are the inputs for creating a node.
type NodeProps struct {
	ID         string         `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,excludes=:"`
	Type       string         `json:"type" yaml:"type" validate:"required"`
	Attributes Attributes     `json:"attributes" yaml:"attributes"`
	State      map[string]any `json:"state,omitempty" yaml:"state,omitempty"`
}

// NodeFactory instantiates nodes from props, assigning ids and wiring
// default parameter state. Ids are never reissued: a removed node's id stays
// taken.
type NodeFactory struct {
	store *NodeTypeStore
	ids   map[string]struct{}
}

// NewNodeFactory creates a factory resolving types from store.
func NewNodeFactory(store *NodeTypeStore) *NodeFactory {
	return &NodeFactory{store: store, ids: make(map[string]struct{})}
}

// Create validates props and builds a node. Unknown types fail with
// ErrUnknownType, reused ids with ErrDuplicateNode and bad state values with
// ErrInvalidParameter. State keys that are not parameters of the type are
// dropped.
func (f *NodeFactory) Create(props NodeProps) (*Node, error) {
	if err := validateStruct(props); err != nil {
		return nil, registrationError("create", fmt.Errorf("%w: %v", ErrInvalidParameter, err))
	}
	t, ok := f.store.Get(props.Type)
	if !ok {
		return nil, registrationError("create", fmt.Errorf("%w: %q", ErrUnknownType, props.Type))
	}

	id := props.ID
	if id == "" {
		id = f.newID()
	} else if _, taken := f.ids[id]; taken {
		return nil, registrationError("create", fmt.Errorf("%w: %q", ErrDuplicateNode, id))
	}

	state := make(map[string]any, len(t.Parameters))
	for _, p := range t.Parameters {
		v, ok := props.State[p.Name]
		if !ok || v == nil {
			v = p.Spec.Value
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, &Error{Kind: KindRegistration, Op: "create", NodeID: id, Err: fmt.Errorf("parameter %q: %w", p.Name, err)}
		}
		if nv != nil {
			state[p.Name] = nv
		}
	}

	attrs := props.Attributes
	if attrs.Name == "" {
		attrs.Name = t.Title
	}

	f.ids[id] = struct{}{}
	return newNode(id, t, attrs, state), nil
}

func (f *NodeFactory) newID() string {
	for {
		id := uuid.NewString()
		if _, taken := f.ids[id]; !taken {
			return id
		}
	}
}

// reserve marks every id issued by other as taken.
func (f *NodeFactory) reserve(other *NodeFactory) {
	if other == nil {
		return
	}
	for id := range other.ids {
		f.ids[id] = struct{}{}
	}
}
