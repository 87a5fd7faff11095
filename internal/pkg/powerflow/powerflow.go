package powerflow

import (
	"github.com/ohowland/sestream/internal/pkg/grid"
)

// Solver produces the steady-state solution of a grid.
type Solver interface {
	Solve(*grid.Snapshot) (Solution, error)
}

// NodeResult is the solved state of one node.
type NodeResult struct {
	NodeID    string
	Type      grid.NodeType
	VoltagePU complex128
	Voltage   complex128 // kV
	PowerPU   complex128
	Power     complex128 // MVA
}

// Solution is the per-node power-flow result of a single cycle, in topology order.
type Solution struct {
	Nodes      []NodeResult
	Iterations int
}

// Len returns the number of solved nodes.
func (s Solution) Len() int {
	return len(s.Nodes)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(*grid.Snapshot) (Solution, error)

// Solve calls f(g).
func (f SolverFunc) Solve(g *grid.Snapshot) (Solution, error) {
	return f(g)
}
