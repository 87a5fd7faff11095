/*
adapter.go Wraps an external Estimator. Contract checks run before the call;
everything the estimator does wrong afterwards is reclassified as an
EstimationFailure so a bad cycle never takes the process down.
*/

package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/measurement"
)

// ErrInvalidResult marks an estimate that fails validation.
var ErrInvalidResult = errors.New("invalid estimation result")

// Adapter guards calls into an Estimator.
type Adapter struct {
	estimator Estimator
	timeout   time.Duration
}

// NewAdapter wraps e. A zero timeout leaves the call unbounded.
func NewAdapter(e Estimator, timeout time.Duration) *Adapter {
	return &Adapter{estimator: e, timeout: timeout}
}

type outcome struct {
	result Result
	err    error
}

// Estimate runs the wrapped estimator over a finalized measurement set.
// Contract violations are returned as *measurement.ContractViolation, all other
// failures as *EstimationFailure.
func (a *Adapter) Estimate(ctx context.Context, g *grid.Snapshot, ms *measurement.Set) (Result, error) {
	if ms == nil {
		return Result{}, measurement.Violation("nil measurement set")
	}
	if !ms.Finalized() {
		return Result{}, measurement.Violation("measurement set passed to estimator before finalization")
	}
	for _, m := range ms.Measurements() {
		if _, ok := g.Node(m.Subject); !ok {
			return Result{}, measurement.Violation("measurement subject %s is not in grid %q", m.Subject, g.Name())
		}
	}

	summary := ms.Summary()
	fail := func(err error) (Result, error) {
		return Result{}, &EstimationFailure{Summary: summary, Err: err}
	}

	var out outcome
	if a.timeout <= 0 {
		out = a.call(g, ms)
	} else {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		done := make(chan outcome, 1)
		go func() {
			done <- a.call(g, ms)
		}()
		select {
		case out = <-done:
		case <-ctx.Done():
			return fail(ctx.Err())
		}
	}

	if out.err != nil {
		return fail(out.err)
	}
	if err := validate(g, out.result); err != nil {
		return fail(err)
	}
	return out.result, nil
}

func (a *Adapter) call(g *grid.Snapshot, ms *measurement.Set) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("estimator panic: %v", r)}
		}
	}()
	res, err := a.estimator.Estimate(g, ms)
	return outcome{res, err}
}

func validate(g *grid.Snapshot, r Result) error {
	if r.Len() != g.Len() {
		return fmt.Errorf("%w: %d node estimates for %d grid nodes", ErrInvalidResult, r.Len(), g.Len())
	}
	seen := make(map[string]bool, r.Len())
	for _, n := range r.Nodes {
		if _, ok := g.Node(n.NodeID); !ok {
			return fmt.Errorf("%w: unknown node %s", ErrInvalidResult, n.NodeID)
		}
		if seen[n.NodeID] {
			return fmt.Errorf("%w: node %s estimated twice", ErrInvalidResult, n.NodeID)
		}
		seen[n.NodeID] = true
		if !finite(n.Voltage) || !finite(n.VoltagePU) {
			return fmt.Errorf("%w: node %s voltage %v", ErrInvalidResult, n.NodeID, n.Voltage)
		}
	}
	return nil
}

func finite(c complex128) bool {
	return !cmplx.IsNaN(c) && !math.IsInf(real(c), 0) && !math.IsInf(imag(c), 0)
}
