package estimator

import (
	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/measurement"
)

// Estimator infers node voltages from a finalized measurement set.
type Estimator interface {
	Estimate(*grid.Snapshot, *measurement.Set) (Result, error)
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(*grid.Snapshot, *measurement.Set) (Result, error)

// Estimate calls f(g, ms).
func (f EstimatorFunc) Estimate(g *grid.Snapshot, ms *measurement.Set) (Result, error) {
	return f(g, ms)
}

// NodeEstimate is the estimated state of one node.
type NodeEstimate struct {
	NodeID    string
	VoltagePU complex128
	Voltage   complex128 // kV
}

// Result is the estimate of a single cycle, in node iteration order.
type Result struct {
	Nodes []NodeEstimate
}

// Len returns the number of estimated nodes.
func (r Result) Len() int {
	return len(r.Nodes)
}
