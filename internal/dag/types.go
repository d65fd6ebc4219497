package dag

// Graph is a set of nodes and the edges between them. It is not safe for
// concurrent use; a graph lives inside one recalculation.
type Graph struct {
	nodes map[string]*node
	// order holds node ids in insertion order.
	order []string
}

type node struct {
	id string
	// seq is the insertion index.
	seq int
	// deps are the nodes this node depends on.
	deps map[string]*node
	// dependents are the nodes depending on this node.
	dependents map[string]*node
}

// CycleError reports nodes that could not be ordered.
type CycleError struct {
	// Remaining lists, in insertion order, every node left on or behind a cycle.
	Remaining []string
}

func (e *CycleError) Error() string {
	return "cycle detected involving node '" + e.Remaining[0] + "'"
}
