/*
synth.go Derives a noisy measurement set from a power-flow solution. One set is
built per cycle and handed to the estimator already finalized.
*/

package synth

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/measurement"
	"github.com/ohowland/sestream/internal/pkg/powerflow"
)

// Synthesizer is not safe for concurrent use; the loop drives it from one goroutine.
type Synthesizer struct {
	kinds    []measurement.Kind
	policies map[measurement.Kind]Policy
	rng      *rand.Rand
}

// New returns a Synthesizer emitting the given kinds, in order, for every node.
// Kinds without a policy are measured with zero uncertainty.
func New(kinds []measurement.Kind, policies map[measurement.Kind]Policy, rng *rand.Rand) (*Synthesizer, error) {
	if len(kinds) == 0 {
		return nil, errors.New("no measurement kinds requested")
	}
	seen := make(map[measurement.Kind]bool)
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("invalid measurement kind %v", k)
		}
		if seen[k] {
			return nil, fmt.Errorf("measurement kind %v requested twice", k)
		}
		seen[k] = true
	}

	p := make(map[measurement.Kind]Policy, len(policies))
	for k, policy := range policies {
		if !k.Valid() {
			return nil, fmt.Errorf("uncertainty policy for invalid kind %v", k)
		}
		p[k] = policy
	}

	return &Synthesizer{
		kinds:    append([]measurement.Kind(nil), kinds...),
		policies: p,
		rng:      rng,
	}, nil
}

// Kinds returns the requested kinds.
func (s *Synthesizer) Kinds() []measurement.Kind {
	return append([]measurement.Kind(nil), s.kinds...)
}

// Synthesize builds and finalizes the measurement set of one cycle.
func (s *Synthesizer) Synthesize(g *grid.Snapshot, sol powerflow.Solution) (*measurement.Set, error) {
	uncertainty := make(map[measurement.Kind]float64, len(s.kinds))
	for _, k := range s.kinds {
		if policy, ok := s.policies[k]; ok {
			uncertainty[k] = policy.Draw(s.rng)
		}
	}

	set := measurement.NewSet()
	for _, node := range sol.Nodes {
		if _, ok := g.Node(node.NodeID); !ok {
			return nil, measurement.Violation("solution node %s is not in grid %q", node.NodeID, g.Name())
		}
		for _, k := range s.kinds {
			ideal, err := idealValue(k, node)
			if err != nil {
				return nil, err
			}
			unc := uncertainty[k]
			m := measurement.Measurement{
				Subject:     node.NodeID,
				Element:     measurement.Node,
				Kind:        k,
				Ideal:       ideal,
				Value:       ideal + s.noise(k, ideal, unc),
				Uncertainty: unc,
			}
			if err := set.Add(m); err != nil {
				return nil, err
			}
		}
	}
	set.Finalize()
	return set, nil
}

func idealValue(k measurement.Kind, node powerflow.NodeResult) (float64, error) {
	switch k {
	case measurement.VoltageMagnitude, measurement.PMUMagnitude:
		return cmplx.Abs(node.VoltagePU), nil
	case measurement.VoltagePhase, measurement.PMUPhase:
		return cmplx.Phase(node.VoltagePU), nil
	case measurement.InjectedRealPower:
		return real(node.PowerPU), nil
	case measurement.InjectedReactivePower:
		return imag(node.PowerPU), nil
	}
	return 0, measurement.Violation("no synthesis rule for kind %v", k)
}

// Sigma returns the standard deviation implied by an uncertainty, taken as a 3 sigma bound.
func Sigma(k measurement.Kind, ideal, uncertainty float64) float64 {
	if k.IsPhase() {
		return math.Abs(uncertainty) * math.Pi / 180 / 3
	}
	return math.Abs(ideal) * math.Abs(uncertainty) / 100 / 3
}

func (s *Synthesizer) noise(k measurement.Kind, ideal, uncertainty float64) float64 {
	sigma := Sigma(k, ideal, uncertainty)
	if sigma == 0 {
		return 0
	}
	return sigma * s.rng.NormFloat64()
}
