/*
publisher.go Holds the single bus connection of the estimation loop. Connect
retries until it succeeds or the context ends and is only used at startup.
Publish never retries, so a failed payload is dropped. Later cycles get one
reconnect attempt each through EnsureConnected.
*/

package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/clock"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/metrics"
)

// State is the connection state seen by the loop.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Publisher writes payloads to one topic over a datastreams.Client.
type Publisher struct {
	mux     *sync.Mutex
	client  datastreams.Client
	topic   string
	backoff time.Duration
	clock   clock.Clock
	metrics *metrics.Collector
	state   State
}

// New returns a disconnected Publisher. A nil clock uses the wall clock.
func New(client datastreams.Client, topic string, backoff time.Duration, clk clock.Clock) *Publisher {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Publisher{
		mux:     &sync.Mutex{},
		client:  client,
		topic:   topic,
		backoff: backoff,
		clock:   clk,
		state:   Disconnected,
	}
}

// WithMetrics records connection attempts on m.
func (p *Publisher) WithMetrics(m *metrics.Collector) *Publisher {
	p.metrics = m
	return p
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// State returns the current connection state.
func (p *Publisher) State() State {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.state
}

func (p *Publisher) setState(s State) {
	p.mux.Lock()
	p.state = s
	p.mux.Unlock()
	p.metrics.Connected(s == Connected)
}

// Connect dials the bus, sleeping the backoff between failed attempts. It only
// returns an error once ctx is done. The loop calls it once, before the first cycle.
func (p *Publisher) Connect(ctx context.Context) error {
	err := datastreams.ConnectRetry(ctx, p.client, p.backoff, p.clock, func(_ int, err error) {
		p.metrics.ConnectAttempt(err == nil)
	})
	if err != nil {
		return err
	}
	p.setState(Connected)
	return nil
}

// TryConnect makes one connection attempt and never sleeps.
func (p *Publisher) TryConnect(ctx context.Context) error {
	err := datastreams.Dial(ctx, p.client)
	p.metrics.ConnectAttempt(err == nil)
	if err != nil {
		logs.Errorf(err, "[Publisher] reconnect to %s failed", p.client.Addr())
		return err
	}
	p.setState(Connected)
	logs.Infof("[Publisher] reconnected to %s", p.client.Addr())
	return nil
}

// EnsureConnected makes a single reconnect attempt if the connection was lost.
// A failed attempt leaves the Publisher Disconnected, so the next Publish fails fast.
func (p *Publisher) EnsureConnected(ctx context.Context) error {
	if p.State() == Connected && p.client.Connected() {
		return nil
	}
	if p.State() == Connected {
		logs.Warnf("[Publisher] connection to %s lost", p.client.Addr())
	}
	p.setState(Disconnected)
	return p.TryConnect(ctx)
}

// Publish writes one payload. Any failure leaves the Publisher Disconnected.
func (p *Publisher) Publish(payload []byte) error {
	if p.State() != Connected {
		return &datastreams.PublishFailure{Topic: p.topic, Err: datastreams.ErrNotConnected}
	}
	if err := p.client.Publish(p.topic, payload); err != nil {
		p.setState(Disconnected)
		var failure *datastreams.PublishFailure
		if errors.As(err, &failure) {
			return err
		}
		return &datastreams.PublishFailure{Topic: p.topic, Err: err}
	}
	return nil
}

// Close drops the connection.
func (p *Publisher) Close() {
	p.client.Disconnect()
	p.setState(Disconnected)
	logs.Infof("[Publisher] disconnected from %s", p.client.Addr())
}
