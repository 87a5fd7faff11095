/*
loop.go Drives the estimation cycle: power flow, measurement synthesis,
estimation, encoding and publishing, then a sleep until the next tick. Every
failure except a contract violation is absorbed at the cycle boundary.
*/

package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"github.com/ohowland/sestream/internal/pkg/clock"
	"github.com/ohowland/sestream/internal/pkg/codec"
	"github.com/ohowland/sestream/internal/pkg/estimator"
	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/measurement"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"github.com/ohowland/sestream/internal/pkg/powerflow"
	"github.com/ohowland/sestream/internal/pkg/publisher"
	"github.com/ohowland/sestream/internal/pkg/synth"
)

// Config holds the loop intervals.
type Config struct {
	Cadence  time.Duration `toml:"cadence"`
	Recovery time.Duration `toml:"recovery"`
}

// DefaultConfig returns the reference intervals.
func DefaultConfig() Config {
	return Config{Cadence: 10 * time.Second, Recovery: 5 * time.Second}
}

// Stage names a step of the cycle.
type Stage int

const (
	StagePowerFlow Stage = iota
	StageSynthesize
	StageEstimate
	StageEncode
	StagePublish
)

func (s Stage) String() string {
	switch s {
	case StagePowerFlow:
		return "power-flow"
	case StageSynthesize:
		return "synthesize"
	case StageEstimate:
		return "estimate"
	case StageEncode:
		return "encode"
	case StagePublish:
		return "publish"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Outcome is the tagged result of one cycle. Stage is the last stage entered;
// when Err is set it is the stage that failed.
type Outcome struct {
	CycleID uuid.UUID
	Stage   Stage
	Err     error
	Summary measurement.Summary
	Nodes   int
}

// OK reports whether the estimate was published.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Fatal returns the contract violation carried by the outcome, if any.
func (o Outcome) Fatal() error {
	var violation *measurement.ContractViolation
	if errors.As(o.Err, &violation) {
		return o.Err
	}
	return nil
}

func (o Outcome) label() string {
	if o.OK() {
		return "success"
	}
	return o.Stage.String()
}

// Driver owns the cycle. It is not safe for concurrent use.
type Driver struct {
	config      Config
	grid        *grid.Snapshot
	solver      powerflow.Solver
	synthesizer *synth.Synthesizer
	adapter     *estimator.Adapter
	publisher   *publisher.Publisher
	clock       clock.Clock
	metrics     *metrics.Collector
}

// New returns a Driver on the wall clock. Zero intervals take the defaults.
func New(cfg Config, g *grid.Snapshot, solver powerflow.Solver, s *synth.Synthesizer, a *estimator.Adapter, p *publisher.Publisher) *Driver {
	def := DefaultConfig()
	if cfg.Cadence <= 0 {
		cfg.Cadence = def.Cadence
	}
	if cfg.Recovery <= 0 {
		cfg.Recovery = def.Recovery
	}
	return &Driver{
		config:      cfg,
		grid:        g,
		solver:      solver,
		synthesizer: s,
		adapter:     a,
		publisher:   p,
		clock:       clock.Real{},
	}
}

// WithClock replaces the clock used for cadence and recovery sleeps.
func (d *Driver) WithClock(clk clock.Clock) *Driver {
	d.clock = clk
	return d
}

// WithMetrics records cycle outcomes on m.
func (d *Driver) WithMetrics(m *metrics.Collector) *Driver {
	d.metrics = m
	return d
}

// RunCycle executes one cycle and reports how far it got.
func (d *Driver) RunCycle(ctx context.Context) (out Outcome) {
	out = Outcome{CycleID: uuid.New(), Stage: StagePowerFlow}
	start := d.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				out.Err = fmt.Errorf("%s stage panic: %w", out.Stage, err)
			} else {
				out.Err = fmt.Errorf("%s stage panic: %v", out.Stage, r)
			}
		}
		now := d.clock.Now()
		d.metrics.Cycle(out.label(), now.Sub(start), now)
	}()

	sol, err := d.solver.Solve(d.grid)
	if err != nil {
		out.Err = err
		return out
	}

	out.Stage = StageSynthesize
	set, err := d.synthesizer.Synthesize(d.grid, sol)
	if err != nil {
		out.Err = err
		return out
	}
	out.Summary = set.Summary()
	logs.Debugf("[Loop] cycle %s: synthesized %s", out.CycleID, out.Summary)

	out.Stage = StageEstimate
	result, err := d.adapter.Estimate(ctx, d.grid, set)
	if err != nil {
		out.Err = err
		return out
	}
	out.Nodes = result.Len()

	out.Stage = StageEncode
	payload, err := codec.Encode(result)
	if err != nil {
		out.Err = err
		return out
	}

	out.Stage = StagePublish
	if err := d.publisher.Publish(payload); err != nil {
		out.Err = err
		return out
	}
	return out
}

// Run connects and cycles until ctx is done or a contract violation escapes.
// Cancellation is a clean stop and returns nil.
func (d *Driver) Run(ctx context.Context) error {
	logs.Infof("[Loop] starting on grid %q (%d nodes), cadence %v, recovery %v",
		d.grid.Name(), d.grid.Len(), d.config.Cadence, d.config.Recovery)

	if err := d.publisher.Connect(ctx); err != nil {
		logs.Infof("[Loop] stopped before connecting")
		return nil
	}
	defer d.publisher.Close()

	for {
		if err := d.publisher.EnsureConnected(ctx); err != nil && ctx.Err() != nil {
			break
		}

		out := d.RunCycle(ctx)
		if err := out.Fatal(); err != nil {
			logs.Errorf(err, "[Loop] cycle %s: fatal error in %s stage", out.CycleID, out.Stage)
			return err
		}

		wait := d.config.Cadence
		if out.OK() {
			logs.Infof("[Loop] cycle %s: published %d node estimates from %s", out.CycleID, out.Nodes, out.Summary)
		} else {
			wait = d.config.Recovery
			logs.Errorf(out.Err, "[Loop] cycle %s: %s stage failed, next cycle in %v", out.CycleID, out.Stage, wait)
		}

		if err := d.clock.Sleep(ctx, wait); err != nil {
			break
		}
	}
	logs.Infof("[Loop] stopped")
	return nil
}
