package dag

import (
	"fmt"
	"sort"
)

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a node. Adding an id twice is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{
		id:         id,
		seq:        len(g.order),
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.order = append(g.order, id)
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge records that toID depends on fromID. Both nodes must exist and
// differ.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}
	to.deps[fromID] = from
	from.dependents[toID] = to
	return nil
}

// TopoSort returns every node ordered so that each node follows all of its
// dependencies. Ties keep insertion order. When the graph has a cycle the
// orderable prefix is returned together with a *CycleError listing the rest.
func (g *Graph) TopoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	var ready []*node
	for _, id := range g.order {
		n := g.nodes[id]
		inDegree[id] = len(n.deps)
		if inDegree[id] == 0 {
			ready = append(ready, n)
		}
	}

	sorted := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		sorted = append(sorted, n.id)
		for _, dep := range bySeq(n.dependents) {
			inDegree[dep.id]--
			if inDegree[dep.id] == 0 {
				ready = insertBySeq(ready, dep)
			}
		}
	}

	if len(sorted) == len(g.order) {
		return sorted, nil
	}
	remaining := make([]string, 0, len(g.order)-len(sorted))
	for _, id := range g.order {
		if inDegree[id] > 0 {
			remaining = append(remaining, id)
		}
	}
	return sorted, &CycleError{Remaining: remaining}
}

// insertBySeq keeps the ready list ordered by insertion index.
func insertBySeq(list []*node, n *node) []*node {
	i := sort.Search(len(list), func(i int) bool { return list[i].seq > n.seq })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = n
	return list
}

func bySeq(m map[string]*node) []*node {
	out := make([]*node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
