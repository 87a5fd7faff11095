package redispubsub

import (
	"context"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/msg"
	"github.com/redis/go-redis/v9"
)

// Config holds the Redis server settings.
type Config struct {
	Addr    string        `toml:"addr"`
	Timeout time.Duration `toml:"timeout"`
}

// Client publishes and subscribes on Redis pub/sub channels named after topics.
type Client struct {
	mux       *sync.Mutex
	config    Config
	rdb       *redis.Client
	connected bool
	inbox     *datastreams.Inbox
	subs      map[string]*redis.PubSub
}

// New returns a disconnected Client.
func New(cfg Config) *Client {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		mux:    &sync.Mutex{},
		config: cfg,
		inbox:  datastreams.NewInbox(50),
		subs:   make(map[string]*redis.PubSub),
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.config.Addr
}

// Connect dials the server and restores existing subscriptions.
func (c *Client) Connect(ctx context.Context) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.connected {
		return nil
	}
	if c.rdb == nil {
		c.rdb = redis.NewClient(&redis.Options{
			Addr:         c.config.Addr,
			DialTimeout:  c.config.Timeout,
			ReadTimeout:  c.config.Timeout,
			WriteTimeout: c.config.Timeout,
			MaxRetries:   -1,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return &datastreams.ConnectionFailure{Addr: c.Addr(), Err: err}
	}
	c.connected = true
	c.inbox.Reset()

	for topic, ps := range c.subs {
		if ps != nil {
			continue
		}
		if err := c.subscribe(ctx, topic); err != nil {
			c.connected = false
			return &datastreams.ConnectionFailure{Addr: c.Addr(), Err: err}
		}
	}
	logs.Infof("[Redis] connected to %s", c.config.Addr)
	return nil
}

// Connected reports whether the last connect or publish succeeded.
func (c *Client) Connected() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.connected
}

// Publish sends payload on the topic channel.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mux.Lock()
	defer c.mux.Unlock()

	if !c.connected {
		return &datastreams.PublishFailure{Topic: topic, Err: datastreams.ErrNotConnected}
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	if err := c.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		c.connected = false
		return &datastreams.PublishFailure{Topic: topic, Err: err}
	}
	return nil
}

// Subscribe delivers every message on topic to the returned channel.
func (c *Client) Subscribe(topic string) (<-chan msg.Msg, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	ch := c.inbox.Open(topic)
	if _, ok := c.subs[topic]; ok {
		return ch, nil
	}
	c.subs[topic] = nil
	if c.connected {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		defer cancel()
		if err := c.subscribe(ctx, topic); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

func (c *Client) subscribe(ctx context.Context, topic string) error {
	ps := c.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}
	c.subs[topic] = ps

	go func(in <-chan *redis.Message) {
		for m := range in {
			c.inbox.Deliver(m.Channel, []byte(m.Payload))
		}
	}(ps.Channel())
	return nil
}

// Disconnect closes subscriptions, the connection pool and every subscription channel.
func (c *Client) Disconnect() {
	c.mux.Lock()
	defer c.mux.Unlock()
	for topic, ps := range c.subs {
		if ps != nil {
			ps.Close()
		}
		c.subs[topic] = nil
	}
	if c.rdb != nil {
		c.rdb.Close()
		c.rdb = nil
	}
	c.connected = false
	c.inbox.Close()
	logs.Infof("[Redis] disconnected from %s", c.config.Addr)
}
