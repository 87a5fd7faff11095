package main

import (
	"fmt"
	"math/rand"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/lib/estimator/phasor"
	"github.com/ohowland/sestream/internal/lib/powerflow/gaussseidel"
	"github.com/ohowland/sestream/internal/pkg/clock"
	"github.com/ohowland/sestream/internal/pkg/config"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/datastreams/mockstream"
	"github.com/ohowland/sestream/internal/pkg/datastreams/mqtt"
	"github.com/ohowland/sestream/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/sestream/internal/pkg/datastreams/redispubsub"
	"github.com/ohowland/sestream/internal/pkg/estimator"
	"github.com/ohowland/sestream/internal/pkg/grid"
	"github.com/ohowland/sestream/internal/pkg/loop"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"github.com/ohowland/sestream/internal/pkg/publisher"
	"github.com/ohowland/sestream/internal/pkg/synth"
)

func newClient(c config.Config) (datastreams.Client, error) {
	switch c.Transport {
	case config.TransportMQTT:
		return mqtt.New(c.MQTT), nil
	case config.TransportNATS:
		return natshandler.New(c.NATS), nil
	case config.TransportRedis:
		return redispubsub.New(c.Redis), nil
	case config.TransportMock:
		return mockstream.NewBroker().NewClient(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", c.Transport)
}

func buildDriver(c config.Config, client datastreams.Client, m *metrics.Collector) (*loop.Driver, error) {
	g, err := grid.Load(c.Grid)
	if err != nil {
		return nil, err
	}
	logs.Infof("[Main] loaded grid %q: %d nodes, %d branches", g.Name(), g.Len(), len(g.Branches()))

	kinds, err := c.MeasurementKinds()
	if err != nil {
		return nil, err
	}
	policies, err := c.Policies()
	if err != nil {
		return nil, err
	}
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s, err := synth.New(kinds, policies, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}

	solver := gaussseidel.New(c.PowerFlow)
	adapter := estimator.NewAdapter(phasor.New(), c.EstimateTimeout)
	pub := publisher.New(client, c.Topic, c.Backoff, clock.Real{}).WithMetrics(m)
	return loop.New(c.Loop, g, solver, s, adapter, pub).WithMetrics(m), nil
}
