package mockstream

import (
	"context"
	"errors"
	"testing"

	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"gotest.tools/v3/assert"
)

var _ datastreams.Client = &Client{}

func TestRoute(t *testing.T) {
	b := NewBroker()
	pub := b.NewClient()
	sub := b.NewClient()

	assert.NilError(t, sub.Connect(context.Background()))
	ch, err := sub.Subscribe("results")
	assert.NilError(t, err)

	assert.NilError(t, pub.Connect(context.Background()))
	assert.NilError(t, pub.Publish("results", []byte("one")))

	assert.Equal(t, string((<-ch).Payload()), "one")
	assert.Equal(t, len(b.Sent()), 1)
}

func TestInjectedFailures(t *testing.T) {
	b := NewBroker()
	c := b.NewClient()
	c.FailConnects(2)

	assert.Assert(t, errors.Is(c.Connect(context.Background()), ErrInjected))
	assert.Assert(t, errors.Is(c.Connect(context.Background()), ErrInjected))
	assert.NilError(t, c.Connect(context.Background()))
	assert.Equal(t, c.Connects(), 3)

	c.FailPublish(2)
	assert.NilError(t, c.Publish("results", []byte("one")))
	err := c.Publish("results", []byte("two"))
	var failure *datastreams.PublishFailure
	assert.Assert(t, errors.As(err, &failure))
	assert.Assert(t, !c.Connected())
	assert.Equal(t, len(b.Sent()), 1)
}
