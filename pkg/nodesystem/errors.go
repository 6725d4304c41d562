package nodesystem

import (
	"errors"
	"fmt"
)

// ErrorKind classifies node system failures.
type ErrorKind int

const (
	KindRegistration  ErrorKind = iota // duplicate or unknown node type
	KindConnection                     // rejected socket wiring
	KindComputation                    // a node's compute function failed
	KindSerialization                  // malformed snapshot
)

func (k ErrorKind) String() string {
	switch k {
	case KindRegistration:
		return "registration"
	case KindConnection:
		return "connection"
	case KindComputation:
		return "computation"
	case KindSerialization:
		return "serialization"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel causes, matched with errors.Is.
var (
	ErrDuplicateType    = errors.New("duplicate node type")
	ErrUnknownType      = errors.New("unknown node type")
	ErrDuplicateNode    = errors.New("duplicate node id")
	ErrTypeMismatch     = errors.New("incompatible socket types")
	ErrSelfLoop         = errors.New("cannot connect a node to itself")
	ErrCycle            = errors.New("connection would create a cycle")
	ErrDanglingSocket   = errors.New("unknown socket")
	ErrUnknownNode      = errors.New("unknown node")
	ErrNotOutputType    = errors.New("not an output node type")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Error is the error type returned by node system operations.
type Error struct {
	Kind   ErrorKind
	Op     string // operation that failed, e.g. "connect"
	NodeID string // offending node, empty for graph-level failures
	Err    error
}

func (e *Error) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: node %s: %v", e.Kind, e.Op, e.NodeID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a node system Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func registrationError(op string, err error) error {
	return &Error{Kind: KindRegistration, Op: op, Err: err}
}

func connectionError(op, nodeID string, err error) error {
	return &Error{Kind: KindConnection, Op: op, NodeID: nodeID, Err: err}
}

func computationError(op, nodeID string, err error) error {
	return &Error{Kind: KindComputation, Op: op, NodeID: nodeID, Err: err}
}

func serializationError(op, nodeID string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, NodeID: nodeID, Err: err}
}
