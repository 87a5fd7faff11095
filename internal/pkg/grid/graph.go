package grid

import (
	"errors"
	"fmt"
	"sort"
)

// Graph is an undirected adjacency list over node IDs.
type Graph struct {
	adjacencyList map[string][]string
}

// NewGraph returns an empty Graph.
func NewGraph() Graph {
	return Graph{make(map[string][]string)}
}

func buildGraph(s *Snapshot) (Graph, error) {
	g := NewGraph()
	for _, n := range s.nodes {
		if err := g.AddNode(n.ID); err != nil {
			return Graph{}, err
		}
	}
	for _, b := range s.branches {
		if err := g.AddEdge(b.From, b.To); err != nil {
			return Graph{}, err
		}
	}
	return g, nil
}

// AddNode inserts a node without edges.
func (g *Graph) AddNode(id string) error {
	if _, exists := g.adjacencyList[id]; exists {
		err := fmt.Sprintf("node %s already exists in graph.", id)
		return errors.New(err)
	}
	g.adjacencyList[id] = make([]string, 0)
	return nil
}

// AddEdge links two existing nodes in both directions.
func (g *Graph) AddEdge(a, b string) error {
	edgesA, exists := g.adjacencyList[a]
	if !exists {
		err := fmt.Sprintf("start node %s does not exist in graph.", a)
		return errors.New(err)
	}

	edgesB, exists := g.adjacencyList[b]
	if !exists {
		err := fmt.Sprintf("end node %s does not exist in graph.", b)
		return errors.New(err)
	}

	g.adjacencyList[a] = append(edgesA, b)
	g.adjacencyList[b] = append(edgesB, a)
	return nil
}

// Edges returns the neighbours of a node.
func (g Graph) Edges(id string) []string {
	if edges, exists := g.adjacencyList[id]; exists {
		return edges
	}
	return make([]string, 0)
}

// Unreachable returns, sorted, every node that cannot be reached from root.
func (g Graph) Unreachable(root string) []string {
	visited := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.adjacencyList[n] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	unreached := make([]string, 0)
	for id := range g.adjacencyList {
		if !visited[id] {
			unreached = append(unreached, id)
		}
	}
	sort.Strings(unreached)
	return unreached
}
