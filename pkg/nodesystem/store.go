package nodesystem

import "fmt"

// NodeTypeStore is a catalog of node types, unique by key and by title.
type NodeTypeStore struct {
	types   []*NodeType
	byKey   map[string]*NodeType
	byTitle map[string]*NodeType
}

// NewNodeTypeStore creates an empty store.
func NewNodeTypeStore() *NodeTypeStore {
	return &NodeTypeStore{
		byKey:   make(map[string]*NodeType),
		byTitle: make(map[string]*NodeType),
	}
}

// Add registers t. Registering a key or title that is already present fails
// with ErrDuplicateType.
func (s *NodeTypeStore) Add(t *NodeType) error {
	if t == nil || t.Type == "" {
		return registrationError("register", fmt.Errorf("%w: empty node type", ErrInvalidParameter))
	}
	if _, ok := s.byKey[t.Type]; ok {
		return registrationError("register", fmt.Errorf("%w: type %q", ErrDuplicateType, t.Type))
	}
	if _, ok := s.byTitle[t.Title]; ok {
		return registrationError("register", fmt.Errorf("%w: title %q", ErrDuplicateType, t.Title))
	}
	s.types = append(s.types, t)
	s.byKey[t.Type] = t
	s.byTitle[t.Title] = t
	return nil
}

// Get returns the type registered under key.
func (s *NodeTypeStore) Get(key string) (*NodeType, bool) {
	t, ok := s.byKey[key]
	return t, ok
}

// GetByTitle returns the type registered with the given title.
func (s *NodeTypeStore) GetByTitle(title string) (*NodeType, bool) {
	t, ok := s.byTitle[title]
	return t, ok
}

// Types returns all registered types in registration order.
func (s *NodeTypeStore) Types() []*NodeType {
	return append([]*NodeType(nil), s.types...)
}

// Len returns the number of registered types.
func (s *NodeTypeStore) Len() int { return len(s.types) }
