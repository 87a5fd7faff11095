package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/msg"
)

// Config holds the broker settings.
type Config struct {
	Broker   string        `toml:"broker"`
	Port     int           `toml:"port"`
	ClientID string        `toml:"client_id"`
	QoS      byte          `toml:"qos"`
	Timeout  time.Duration `toml:"timeout"`
}

// Client is an MQTT connection. Automatic reconnection is disabled; the caller
// decides when to reconnect. A lost connection closes open subscription channels.
type Client struct {
	mux    *sync.Mutex
	config Config
	client mqtt.Client
	inbox  *datastreams.Inbox
	topics map[string]bool
}

// New returns a disconnected Client.
func New(cfg Config) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = "sestream-" + uuid.New().String()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		mux:    &sync.Mutex{},
		config: cfg,
		inbox:  datastreams.NewInbox(50),
		topics: make(map[string]bool),
	}
}

// Addr returns the broker URL.
func (c *Client) Addr() string {
	return fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
}

func (c *Client) options() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(c.Addr()).
		SetClientID(c.config.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.config.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logs.Warnf("[MQTT] connection to %s lost: %v", c.Addr(), err)
		})
}

// lost closes every subscription channel so consumers notice the dropped
// connection and reconnect.
func (c *Client) lost(client mqtt.Client, err error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.client != client {
		return
	}
	logs.Warnf("[MQTT] connection to %s lost: %v", c.Addr(), err)
	c.inbox.Close()
}

// Connect dials the broker and restores existing subscriptions.
func (c *Client) Connect(ctx context.Context) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.client != nil && c.client.IsConnectionOpen() {
		return nil
	}

	client := mqtt.NewClient(c.options())
	if err := wait(ctx, client.Connect(), c.config.Timeout); err != nil {
		return &datastreams.ConnectionFailure{Addr: c.Addr(), Err: err}
	}
	c.client = client
	c.inbox.Reset()

	for topic := range c.topics {
		if err := c.subscribe(ctx, topic); err != nil {
			client.Disconnect(250)
			c.client = nil
			return &datastreams.ConnectionFailure{Addr: c.Addr(), Err: err}
		}
	}
	logs.Infof("[MQTT] connected to %s as %s", c.Addr(), c.config.ClientID)
	return nil
}

// Connected reports whether the broker connection is open.
func (c *Client) Connected() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// Publish sends payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mux.Lock()
	client := c.client
	c.mux.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return &datastreams.PublishFailure{Topic: topic, Err: datastreams.ErrNotConnected}
	}
	token := client.Publish(topic, c.config.QoS, false, payload)
	if err := wait(context.Background(), token, c.config.Timeout); err != nil {
		return &datastreams.PublishFailure{Topic: topic, Err: err}
	}
	return nil
}

// Subscribe delivers every message on topic to the returned channel.
func (c *Client) Subscribe(topic string) (<-chan msg.Msg, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	ch := c.inbox.Open(topic)
	if !c.topics[topic] && c.client != nil {
		if err := c.subscribe(context.Background(), topic); err != nil {
			return nil, err
		}
	}
	c.topics[topic] = true
	return ch, nil
}

func (c *Client) subscribe(ctx context.Context, topic string) error {
	token := c.client.Subscribe(topic, c.config.QoS, func(_ mqtt.Client, m mqtt.Message) {
		c.inbox.Deliver(m.Topic(), m.Payload())
	})
	if err := wait(ctx, token, c.config.Timeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the connection and every subscription channel.
func (c *Client) Disconnect() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.client != nil {
		c.client.Disconnect(250)
		c.client = nil
	}
	c.inbox.Close()
	logs.Infof("[MQTT] disconnected from %s", c.Addr())
}

var errTimeout = errors.New("timed out waiting for broker")

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
