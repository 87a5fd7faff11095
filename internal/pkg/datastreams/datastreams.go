package datastreams

import (
	"context"
	"errors"
	"fmt"

	"github.com/ohowland/sestream/internal/pkg/msg"
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("not connected to message bus")

// Client is a connection to a message bus.
type Client interface {
	// Connect dials the bus. Implementations must not reconnect on their own.
	Connect(context.Context) error
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan msg.Msg, error)
	Disconnect()
	Connected() bool
	Addr() string
}

// ConnectionFailure reports that the bus could not be reached.
type ConnectionFailure struct {
	Addr string
	Err  error
}

func (e *ConnectionFailure) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionFailure) Unwrap() error {
	return e.Err
}

// PublishFailure reports that a payload was not written to the bus.
type PublishFailure struct {
	Topic string
	Err   error
}

func (e *PublishFailure) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Topic, e.Err)
}

func (e *PublishFailure) Unwrap() error {
	return e.Err
}
