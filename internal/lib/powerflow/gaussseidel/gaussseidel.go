/*
gaussseidel.go Reference power-flow solver. Builds the per-unit admittance matrix
from the grid snapshot and iterates node voltages until the largest update falls
below the configured tolerance.
*/

package gaussseidel

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/powerflow"
)

// ErrNotConverged is returned when the iteration limit is reached.
var ErrNotConverged = errors.New("power flow did not converge")

// Config holds the iteration controls.
type Config struct {
	MaxIterations int     `toml:"max_iterations"`
	Tolerance     float64 `toml:"tolerance"`
	Acceleration  float64 `toml:"acceleration"`
}

// Solver is a Gauss-Seidel power-flow solver.
type Solver struct {
	config Config
}

// New returns a solver; zero fields take their defaults.
func New(cfg Config) Solver {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 500
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-9
	}
	if cfg.Acceleration <= 0 {
		cfg.Acceleration = 1.0
	}
	return Solver{cfg}
}

// Solve runs the power flow over g.
func (s Solver) Solve(g *grid.Snapshot) (powerflow.Solution, error) {
	nodes := g.Nodes()
	n := len(nodes)
	y, err := admittance(g)
	if err != nil {
		return powerflow.Solution{}, err
	}

	v := make([]complex128, n)
	sched := make([]complex128, n)
	for i, node := range nodes {
		switch node.Type {
		case grid.Slack, grid.PV:
			v[i] = complex(node.SetpointPU, 0)
		default:
			v[i] = 1
		}
		p := (node.GenMW - node.LoadMW) / g.BaseMVA()
		q := -node.LoadMVAR / g.BaseMVA()
		sched[i] = complex(p, q)
	}

	iter := 0
	for ; iter < s.config.MaxIterations; iter++ {
		maxDelta := 0.0
		for i, node := range nodes {
			if node.Type == grid.Slack {
				continue
			}

			si := sched[i]
			if node.Type == grid.PV {
				q := -imag(cmplx.Conj(v[i]) * rowCurrent(y[i], v))
				si = complex(real(si), q)
			}

			sum := complex(0, 0)
			for k := 0; k < n; k++ {
				if k != i {
					sum += y[i][k] * v[k]
				}
			}
			next := (cmplx.Conj(si)/cmplx.Conj(v[i]) - sum) / y[i][i]
			next = v[i] + complex(s.config.Acceleration, 0)*(next-v[i])
			if node.Type == grid.PV {
				next = cmplx.Rect(node.SetpointPU, cmplx.Phase(next))
			}

			if d := cmplx.Abs(next - v[i]); d > maxDelta {
				maxDelta = d
			}
			v[i] = next
		}
		if math.IsNaN(maxDelta) || math.IsInf(maxDelta, 0) {
			return powerflow.Solution{}, fmt.Errorf("%w: diverged at iteration %d", ErrNotConverged, iter+1)
		}
		if maxDelta < s.config.Tolerance {
			iter++
			break
		}
		if iter == s.config.MaxIterations-1 {
			return powerflow.Solution{}, fmt.Errorf("%w after %d iterations (delta %g)", ErrNotConverged, s.config.MaxIterations, maxDelta)
		}
	}

	results := make([]powerflow.NodeResult, n)
	for i, node := range nodes {
		spu := v[i] * cmplx.Conj(rowCurrent(y[i], v))
		results[i] = powerflow.NodeResult{
			NodeID:    node.ID,
			Type:      node.Type,
			VoltagePU: v[i],
			Voltage:   v[i] * complex(node.NominalKV, 0),
			PowerPU:   spu,
			Power:     spu * complex(g.BaseMVA(), 0),
		}
	}
	return powerflow.Solution{Nodes: results, Iterations: iter}, nil
}

func rowCurrent(row []complex128, v []complex128) complex128 {
	sum := complex(0, 0)
	for k := range row {
		sum += row[k] * v[k]
	}
	return sum
}

// admittance builds the per-unit bus admittance matrix in topology order.
func admittance(g *grid.Snapshot) ([][]complex128, error) {
	n := g.Len()
	y := make([][]complex128, n)
	for i := range y {
		y[i] = make([]complex128, n)
	}

	for _, b := range g.Branches() {
		i, _ := g.Index(b.From)
		j, _ := g.Index(b.To)
		zbase := g.BaseImpedance(b.From)
		series := 1 / (complex(b.R, b.X) / complex(zbase, 0))
		shunt := complex(0, b.B*zbase/2)

		y[i][i] += series + shunt
		y[j][j] += series + shunt
		y[i][j] -= series
		y[j][i] -= series
	}

	for i := range y {
		if y[i][i] == 0 {
			return nil, fmt.Errorf("node %s has no admittance to the network", g.Nodes()[i].ID)
		}
	}
	return y, nil
}
