package nodesystem

import "fmt"

// ValidationSeverity indicates whether a validation finding blocks
// evaluation or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   string             // which node has the problem (empty if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID, e.Message)
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
// If we encounter a gray node during traversal, we have found a cycle.
func validateDAG(nodes []*Node, conns *connections) *ValidationError {
	const (
		white = iota
		gray
		black
	)

	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	color := make(map[string]int)
	var found *ValidationError

	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			found = &ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", id),
				Severity: SeverityError,
			}
			return true
		}

		color[id] = gray

		n, ok := byID[id]
		if !ok {
			// Dangling reference; reported by validateReferences.
			color[id] = black
			return false
		}
		for _, child := range conns.downstream(n) {
			if visit(child) {
				return true
			}
		}

		color[id] = black
		return false
	}

	// Start from every node to catch disconnected components.
	for _, n := range nodes {
		if color[n.id] == white && visit(n.id) {
			return found
		}
	}
	return nil
}

// reaches reports whether to is reachable from from along connections.
func reaches(byID map[string]*Node, conns *connections, from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := byID[id]
		if n == nil {
			continue
		}
		for _, next := range conns.downstream(n) {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// validateReferences checks that every connection joins live sockets.
func validateReferences(byID map[string]*Node, conns *connections) []ValidationError {
	var errs []ValidationError
	socketExists := func(id string, input bool) bool {
		nodeID, key, ok := splitSocketID(id)
		if !ok || byID[nodeID] == nil {
			return false
		}
		if input {
			return byID[nodeID].Input(key) != nil
		}
		return byID[nodeID].outputByKey(key) != nil
	}
	for inID, outID := range conns.sources {
		if !socketExists(inID, true) || !socketExists(outID, false) {
			nodeID, _, _ := splitSocketID(inID)
			errs = append(errs, ValidationError{
				NodeID:   nodeID,
				Message:  fmt.Sprintf("connection %s -> %s references a missing socket", outID, inID),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateInputs warns about required inputs that are not connected.
func validateInputs(nodes []*Node, conns *connections) []ValidationError {
	var errs []ValidationError
	for _, n := range nodes {
		for _, p := range n.typ.ExternalParameters() {
			if p.Spec.Value != nil {
				continue
			}
			if _, ok := conns.sources[socketID(n.id, p.Name)]; !ok {
				errs = append(errs, ValidationError{
					NodeID:   n.id,
					Message:  fmt.Sprintf("required input %q is not connected", p.Name),
					Severity: SeverityWarning,
				})
			}
		}
	}
	return errs
}
