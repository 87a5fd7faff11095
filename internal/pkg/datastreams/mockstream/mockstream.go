/*
mockstream.go In-memory message bus. A Broker routes payloads between the Clients
attached to it; Clients can be told to fail connects and publishes.
*/

package mockstream

import (
	"context"
	"errors"
	"sync"

	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/msg"
)

// ErrInjected is the cause of every injected failure.
var ErrInjected = errors.New("injected transport failure")

// Broker is an in-memory bus shared by Clients.
type Broker struct {
	mux     *sync.Mutex
	clients []*Client
	sent    []msg.Msg
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{mux: &sync.Mutex{}}
}

// Sent returns every payload the broker accepted, in order.
func (b *Broker) Sent() []msg.Msg {
	b.mux.Lock()
	defer b.mux.Unlock()
	return append([]msg.Msg(nil), b.sent...)
}

func (b *Broker) route(topic string, payload []byte) {
	b.mux.Lock()
	b.sent = append(b.sent, msg.New(topic, payload))
	clients := append([]*Client(nil), b.clients...)
	b.mux.Unlock()

	for _, c := range clients {
		if c.Connected() {
			c.inbox.Deliver(topic, payload)
		}
	}
}

// Client is a connection to a Broker.
type Client struct {
	mux          *sync.Mutex
	broker       *Broker
	connected    bool
	inbox        *datastreams.Inbox
	failConnects int
	failPublish  map[int]bool
	publishes    int
	connects     int
}

// NewClient attaches a new disconnected Client to b.
func (b *Broker) NewClient() *Client {
	c := &Client{
		mux:         &sync.Mutex{},
		broker:      b,
		inbox:       datastreams.NewInbox(50),
		failPublish: make(map[int]bool),
	}
	b.mux.Lock()
	b.clients = append(b.clients, c)
	b.mux.Unlock()
	return c
}

// FailConnects makes the next n Connect calls fail.
func (c *Client) FailConnects(n int) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.failConnects = n
}

// FailPublish makes the nth Publish call (1 based, counted over the client's
// lifetime) fail and drop the client's connection.
func (c *Client) FailPublish(n int) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.failPublish[n] = true
}

// Connects returns the number of Connect attempts.
func (c *Client) Connects() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.connects
}

// Addr implements datastreams.Client.
func (c *Client) Addr() string {
	return "mock://broker"
}

// Connect implements datastreams.Client.
func (c *Client) Connect(ctx context.Context) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.connects++
	if err := ctx.Err(); err != nil {
		return &datastreams.ConnectionFailure{Addr: c.Addr(), Err: err}
	}
	if c.failConnects > 0 {
		c.failConnects--
		return &datastreams.ConnectionFailure{Addr: c.Addr(), Err: ErrInjected}
	}
	c.connected = true
	c.inbox.Reset()
	return nil
}

// Connected implements datastreams.Client.
func (c *Client) Connected() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.connected
}

// Publish implements datastreams.Client.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mux.Lock()
	c.publishes++
	if !c.connected {
		c.mux.Unlock()
		return &datastreams.PublishFailure{Topic: topic, Err: datastreams.ErrNotConnected}
	}
	if c.failPublish[c.publishes] {
		c.connected = false
		c.mux.Unlock()
		return &datastreams.PublishFailure{Topic: topic, Err: ErrInjected}
	}
	c.mux.Unlock()

	c.broker.route(topic, payload)
	return nil
}

// Subscribe implements datastreams.Client.
func (c *Client) Subscribe(topic string) (<-chan msg.Msg, error) {
	return c.inbox.Open(topic), nil
}

// Drop simulates the broker losing the connection. Open subscriptions close.
func (c *Client) Drop() {
	c.Disconnect()
}

// Disconnect implements datastreams.Client.
func (c *Client) Disconnect() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.connected = false
	c.inbox.Close()
}
