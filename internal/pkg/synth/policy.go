package synth

import (
	"fmt"
	"math/rand"
)

// Policy yields the uncertainty applied to one measurement kind for one cycle.
// Percent for magnitude and power kinds, degrees for phase kinds.
type Policy interface {
	Draw(r *rand.Rand) float64
}

// Fixed is a constant uncertainty.
type Fixed float64

// Draw returns the fixed value.
func (f Fixed) Draw(*rand.Rand) float64 {
	return float64(f)
}

func (f Fixed) String() string {
	return fmt.Sprintf("fixed(%g)", float64(f))
}

// Uniform draws an uncertainty from [Min, Max).
type Uniform struct {
	Min float64
	Max float64
}

// NewUniform validates the bounds.
func NewUniform(min, max float64) (Uniform, error) {
	if min > max {
		return Uniform{}, fmt.Errorf("uniform uncertainty: min %g greater than max %g", min, max)
	}
	return Uniform{min, max}, nil
}

// Draw samples the distribution.
func (u Uniform) Draw(r *rand.Rand) float64 {
	if u.Min == u.Max {
		return u.Min
	}
	return u.Min + r.Float64()*(u.Max-u.Min)
}

func (u Uniform) String() string {
	return fmt.Sprintf("uniform(%g,%g)", u.Min, u.Max)
}
