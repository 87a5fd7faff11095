package estimator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/measurement"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func newGrid(t *testing.T) *grid.Snapshot {
	g, err := grid.New(grid.Topology{
		Name: "TEST_Grid",
		Nodes: []grid.Node{
			{ID: "N1", Type: grid.Slack, NominalKV: 1},
			{ID: "N2", Type: grid.PQ, NominalKV: 1},
		},
		Branches: []grid.Branch{{From: "N1", To: "N2", R: 0.1, X: 0.2}},
	})
	assert.NilError(t, err)
	return g
}

func newSet(t *testing.T, subjects ...string) *measurement.Set {
	s := measurement.NewSet()
	for _, id := range subjects {
		assert.NilError(t, s.Add(measurement.Measurement{Subject: id, Kind: measurement.PMUMagnitude, Value: 1}))
		assert.NilError(t, s.Add(measurement.Measurement{Subject: id, Kind: measurement.PMUPhase}))
	}
	s.Finalize()
	return s
}

func flatEstimate(g *grid.Snapshot, _ *measurement.Set) (Result, error) {
	r := Result{}
	for _, n := range g.Nodes() {
		r.Nodes = append(r.Nodes, NodeEstimate{NodeID: n.ID, VoltagePU: 1, Voltage: complex(n.NominalKV, 0)})
	}
	return r, nil
}

func TestEstimatePassesThrough(t *testing.T) {
	g := newGrid(t)
	a := NewAdapter(EstimatorFunc(flatEstimate), 0)

	r, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N2"))
	assert.NilError(t, err)
	assert.Equal(t, r.Len(), 2)
	assert.Equal(t, r.Nodes[1].NodeID, "N2")
}

func TestUnfinalizedSetIsContractViolation(t *testing.T) {
	g := newGrid(t)
	called := false
	a := NewAdapter(EstimatorFunc(func(g *grid.Snapshot, ms *measurement.Set) (Result, error) {
		called = true
		return flatEstimate(g, ms)
	}), 0)

	open := measurement.NewSet()
	assert.NilError(t, open.Add(measurement.Measurement{Subject: "N1", Kind: measurement.PMUMagnitude}))

	_, err := a.Estimate(context.Background(), g, open)
	var violation *measurement.ContractViolation
	assert.Assert(t, errors.As(err, &violation))
	assert.Assert(t, !called)

	_, err = a.Estimate(context.Background(), g, nil)
	assert.Assert(t, errors.As(err, &violation))
}

func TestUnknownSubjectIsContractViolation(t *testing.T) {
	g := newGrid(t)
	a := NewAdapter(EstimatorFunc(flatEstimate), 0)

	_, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N7"))
	var violation *measurement.ContractViolation
	assert.Assert(t, errors.As(err, &violation))
	assert.Assert(t, is.ErrorContains(err, "N7"))
}

func TestEstimatorErrorIsEstimationFailure(t *testing.T) {
	g := newGrid(t)
	cause := errors.New("singular gain matrix")
	a := NewAdapter(EstimatorFunc(func(*grid.Snapshot, *measurement.Set) (Result, error) {
		return Result{}, cause
	}), 0)

	_, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N2"))
	var failure *EstimationFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Assert(t, errors.Is(err, cause))
	assert.Equal(t, failure.Summary.Count, 4)
	assert.DeepEqual(t, failure.Summary.Kinds, []measurement.Kind{measurement.PMUMagnitude, measurement.PMUPhase})
}

func TestEstimatorPanicIsRecovered(t *testing.T) {
	g := newGrid(t)
	a := NewAdapter(EstimatorFunc(func(*grid.Snapshot, *measurement.Set) (Result, error) {
		panic("index out of range")
	}), 0)

	_, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N2"))
	var failure *EstimationFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Assert(t, is.ErrorContains(err, "index out of range"))
}

func TestInvalidResultIsEstimationFailure(t *testing.T) {
	g := newGrid(t)
	cases := map[string]Result{
		"short":     {Nodes: []NodeEstimate{{NodeID: "N1", VoltagePU: 1, Voltage: 1}}},
		"unknown":   {Nodes: []NodeEstimate{{NodeID: "N1", VoltagePU: 1, Voltage: 1}, {NodeID: "X", VoltagePU: 1, Voltage: 1}}},
		"duplicate": {Nodes: []NodeEstimate{{NodeID: "N1", VoltagePU: 1, Voltage: 1}, {NodeID: "N1", VoltagePU: 1, Voltage: 1}}},
		"nan":       {Nodes: []NodeEstimate{{NodeID: "N1", VoltagePU: 1, Voltage: 1}, {NodeID: "N2", VoltagePU: 1, Voltage: complex(math.NaN(), 0)}}},
		"inf":       {Nodes: []NodeEstimate{{NodeID: "N1", VoltagePU: 1, Voltage: 1}, {NodeID: "N2", VoltagePU: complex(0, math.Inf(1)), Voltage: 1}}},
	}
	for name, res := range cases {
		res := res
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(EstimatorFunc(func(*grid.Snapshot, *measurement.Set) (Result, error) {
				return res, nil
			}), 0)
			_, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N2"))
			var failure *EstimationFailure
			assert.Assert(t, errors.As(err, &failure))
			assert.Assert(t, errors.Is(err, ErrInvalidResult))
		})
	}
}

func TestTimeoutIsEstimationFailure(t *testing.T) {
	g := newGrid(t)
	release := make(chan struct{})
	defer close(release)
	a := NewAdapter(EstimatorFunc(func(g *grid.Snapshot, ms *measurement.Set) (Result, error) {
		<-release
		return flatEstimate(g, ms)
	}), 20*time.Millisecond)

	_, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N2"))
	var failure *EstimationFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTimeoutNotReached(t *testing.T) {
	g := newGrid(t)
	a := NewAdapter(EstimatorFunc(flatEstimate), time.Second)

	r, err := a.Estimate(context.Background(), g, newSet(t, "N1", "N2"))
	assert.NilError(t, err)
	assert.Equal(t, r.Len(), 2)
}
