package redispubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"gotest.tools/v3/assert"
)

var _ datastreams.Client = &Client{}

func newServer(t *testing.T) *miniredis.Miniredis {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestPublishSubscribe(t *testing.T) {
	mr := newServer(t)

	sub := New(Config{Addr: mr.Addr()})
	assert.NilError(t, sub.Connect(context.Background()))
	defer sub.Disconnect()
	ch, err := sub.Subscribe("state_estimation/results")
	assert.NilError(t, err)

	pub := New(Config{Addr: mr.Addr()})
	assert.NilError(t, pub.Connect(context.Background()))
	defer pub.Disconnect()
	assert.Assert(t, pub.Connected())

	payload := `[{"node":"N1","voltage":"1.0+0j"}]`
	assert.NilError(t, pub.Publish("state_estimation/results", []byte(payload)))

	select {
	case m := <-ch:
		assert.Equal(t, m.Topic(), "state_estimation/results")
		assert.Equal(t, string(m.Payload()), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestSubscribeBeforeConnect(t *testing.T) {
	mr := newServer(t)

	sub := New(Config{Addr: mr.Addr()})
	ch, err := sub.Subscribe("results")
	assert.NilError(t, err)
	assert.NilError(t, sub.Connect(context.Background()))
	defer sub.Disconnect()

	mr.Publish("results", "hello")

	select {
	case m := <-ch:
		assert.Equal(t, string(m.Payload()), "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestConnectUnreachable(t *testing.T) {
	mr := newServer(t)
	addr := mr.Addr()
	mr.Close()

	c := New(Config{Addr: addr, Timeout: 200 * time.Millisecond})
	err := c.Connect(context.Background())

	var failure *datastreams.ConnectionFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Assert(t, !c.Connected())
}

func TestPublishFailureMarksDisconnected(t *testing.T) {
	mr := newServer(t)

	c := New(Config{Addr: mr.Addr(), Timeout: 200 * time.Millisecond})
	assert.NilError(t, c.Connect(context.Background()))
	mr.Close()

	err := c.Publish("results", []byte("[]"))
	var failure *datastreams.PublishFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Assert(t, !c.Connected())

	err = c.Publish("results", []byte("[]"))
	assert.Assert(t, errors.Is(err, datastreams.ErrNotConnected))
}

func TestDisconnectClosesChannels(t *testing.T) {
	mr := newServer(t)

	c := New(Config{Addr: mr.Addr()})
	assert.NilError(t, c.Connect(context.Background()))
	ch, err := c.Subscribe("results")
	assert.NilError(t, err)

	c.Disconnect()
	_, ok := <-ch
	assert.Assert(t, !ok)
	assert.Assert(t, !c.Connected())
}
