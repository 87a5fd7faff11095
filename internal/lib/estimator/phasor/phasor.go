/*
phasor.go Reference estimator for voltage-measured grids. Each node voltage is the
inverse-variance weighted mean of the magnitude and phase readings taken on it.
*/

package phasor

import (
	"errors"
	"fmt"
	"math/cmplx"

	"github.com/ohowland/sestream/internal/pkg/estimator"
	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/measurement"
	"github.com/ohowland/sestream/internal/pkg/synth"
)

// ErrUnobservable is returned when a node lacks the readings to fix its voltage.
var ErrUnobservable = errors.New("node is unobservable")

// Estimator is a direct phasor state estimator.
type Estimator struct{}

// New returns a phasor Estimator.
func New() Estimator {
	return Estimator{}
}

// accumulator keeps a weighted mean, preferring exact (zero sigma) readings.
type accumulator struct {
	exactSum, exactN float64
	weightedSum, w   float64
}

func (a *accumulator) add(value, sigma float64) {
	if sigma == 0 {
		a.exactSum += value
		a.exactN++
		return
	}
	weight := 1 / (sigma * sigma)
	a.weightedSum += weight * value
	a.w += weight
}

func (a accumulator) empty() bool {
	return a.exactN == 0 && a.w == 0
}

func (a accumulator) mean() float64 {
	if a.exactN > 0 {
		return a.exactSum / a.exactN
	}
	return a.weightedSum / a.w
}

// Estimate implements estimator.Estimator.
func (e Estimator) Estimate(g *grid.Snapshot, ms *measurement.Set) (estimator.Result, error) {
	mags := make(map[string]*accumulator)
	phases := make(map[string]*accumulator)
	get := func(m map[string]*accumulator, id string) *accumulator {
		if a, ok := m[id]; ok {
			return a
		}
		a := &accumulator{}
		m[id] = a
		return a
	}

	for _, m := range ms.Measurements() {
		sigma := synth.Sigma(m.Kind, m.Value, m.Uncertainty)
		switch m.Kind {
		case measurement.VoltageMagnitude, measurement.PMUMagnitude:
			get(mags, m.Subject).add(m.Value, sigma)
		case measurement.VoltagePhase, measurement.PMUPhase:
			get(phases, m.Subject).add(m.Value, sigma)
		case measurement.InjectedRealPower, measurement.InjectedReactivePower:
			// power injections do not fix a voltage on their own
		}
	}

	result := estimator.Result{Nodes: make([]estimator.NodeEstimate, 0, g.Len())}
	for _, n := range g.Nodes() {
		mag, ok := mags[n.ID]
		if !ok || mag.empty() {
			return estimator.Result{}, fmt.Errorf("%w: %s has no magnitude reading", ErrUnobservable, n.ID)
		}
		angle := 0.0
		if phase, ok := phases[n.ID]; ok && !phase.empty() {
			angle = phase.mean()
		} else if n.Type != grid.Slack {
			return estimator.Result{}, fmt.Errorf("%w: %s has no phase reading", ErrUnobservable, n.ID)
		}

		vpu := cmplx.Rect(mag.mean(), angle)
		result.Nodes = append(result.Nodes, estimator.NodeEstimate{
			NodeID:    n.ID,
			VoltagePU: vpu,
			Voltage:   vpu * complex(n.NominalKV, 0),
		})
	}
	return result, nil
}
