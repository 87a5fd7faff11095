package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ohowland/sestream/internal/pkg/clock"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/datastreams/mockstream"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const backoff = 5 * time.Second

func newPublisher() (*Publisher, *mockstream.Broker, *mockstream.Client, *clock.Fake) {
	b := mockstream.NewBroker()
	c := b.NewClient()
	clk := clock.NewFake(time.Unix(0, 0))
	return New(c, "results", backoff, clk), b, c, clk
}

func TestConnectRetriesOnBackoff(t *testing.T) {
	p, _, c, clk := newPublisher()
	c.FailConnects(3)

	assert.NilError(t, p.Connect(context.Background()))
	assert.Equal(t, p.State(), Connected)
	assert.Equal(t, c.Connects(), 4)
	assert.DeepEqual(t, clk.Sleeps(), []time.Duration{backoff, backoff, backoff})
	assert.Equal(t, clk.Now(), time.Unix(15, 0))
}

func TestConnectCancelled(t *testing.T) {
	p, _, c, clk := newPublisher()
	c.FailConnects(1000)

	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep(func(n int, _ time.Duration) {
		if n == 2 {
			cancel()
		}
	})

	err := p.Connect(ctx)
	assert.Assert(t, errors.Is(err, context.Canceled))
	assert.Equal(t, p.State(), Disconnected)
	assert.Equal(t, c.Connects(), 2)
}

func TestPublish(t *testing.T) {
	p, b, _, _ := newPublisher()

	err := p.Publish([]byte("early"))
	assert.Assert(t, errors.Is(err, datastreams.ErrNotConnected))

	assert.NilError(t, p.Connect(context.Background()))
	assert.NilError(t, p.Publish([]byte("one")))

	sent := b.Sent()
	assert.Assert(t, is.Len(sent, 1))
	assert.Equal(t, sent[0].Topic(), "results")
	assert.Equal(t, string(sent[0].Payload()), "one")
}

func TestPublishFailureDisconnects(t *testing.T) {
	p, b, c, clk := newPublisher()
	assert.NilError(t, p.Connect(context.Background()))
	c.FailPublish(1)

	err := p.Publish([]byte("lost"))
	var failure *datastreams.PublishFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Equal(t, failure.Topic, "results")
	assert.Equal(t, p.State(), Disconnected)
	assert.Equal(t, len(b.Sent()), 0)

	// no implicit reconnect or retry inside Publish
	assert.Equal(t, c.Connects(), 1)
	assert.Assert(t, is.Len(clk.Sleeps(), 0))

	assert.NilError(t, p.EnsureConnected(context.Background()))
	assert.Equal(t, p.State(), Connected)
	assert.NilError(t, p.Publish([]byte("next")))
	assert.Equal(t, len(b.Sent()), 1)
}

func TestEnsureConnectedNoop(t *testing.T) {
	p, _, c, _ := newPublisher()
	assert.NilError(t, p.Connect(context.Background()))
	assert.NilError(t, p.EnsureConnected(context.Background()))
	assert.Equal(t, c.Connects(), 1)
}

func TestEnsureConnectedSingleAttempt(t *testing.T) {
	p, _, c, clk := newPublisher()
	assert.NilError(t, p.Connect(context.Background()))
	c.FailPublish(1)
	assert.Assert(t, p.Publish([]byte("lost")) != nil)
	c.FailConnects(1000)

	err := p.EnsureConnected(context.Background())
	var failure *datastreams.ConnectionFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Equal(t, p.State(), Disconnected)
	assert.Equal(t, c.Connects(), 2)
	assert.Assert(t, is.Len(clk.Sleeps(), 0))

	err = p.Publish([]byte("dropped"))
	assert.Assert(t, errors.Is(err, datastreams.ErrNotConnected))
}

func TestClientDroppedUnderneath(t *testing.T) {
	p, _, c, _ := newPublisher()
	assert.NilError(t, p.Connect(context.Background()))
	c.Disconnect()

	assert.NilError(t, p.EnsureConnected(context.Background()))
	assert.Equal(t, c.Connects(), 2)
}

func TestMetrics(t *testing.T) {
	p, _, c, _ := newPublisher()
	m := metrics.New()
	p.WithMetrics(m)
	c.FailConnects(2)

	assert.NilError(t, p.Connect(context.Background()))

	expected := `
# HELP sestream_bus_connect_attempts_total Message bus connection attempts by result.
# TYPE sestream_bus_connect_attempts_total counter
sestream_bus_connect_attempts_total{result="failure"} 2
sestream_bus_connect_attempts_total{result="success"} 1
# HELP sestream_bus_connected 1 while the publisher holds a bus connection.
# TYPE sestream_bus_connected gauge
sestream_bus_connected 1
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"sestream_bus_connect_attempts_total", "sestream_bus_connected")
	assert.NilError(t, err)
}
