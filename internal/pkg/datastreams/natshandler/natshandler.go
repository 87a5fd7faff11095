package natshandler

import (
	"context"
	"strings"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/msg"

	nats "github.com/nats-io/nats.go"
)

// Config holds the NATS server settings.
type Config struct {
	URL     string        `toml:"url"`
	Name    string        `toml:"name"`
	Timeout time.Duration `toml:"timeout"`
}

// Handler is a NATS connection. Topics are mapped to subjects by replacing '/' with '.'.
type Handler struct {
	mux    *sync.Mutex
	config Config
	nc     *nats.Conn
	inbox  *datastreams.Inbox
	topics map[string]bool
}

// New returns a disconnected Handler.
func New(cfg Config) *Handler {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "sestream"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Handler{
		mux:    &sync.Mutex{},
		config: cfg,
		inbox:  datastreams.NewInbox(50),
		topics: make(map[string]bool),
	}
}

// Subject maps a slash separated topic to a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

// Addr returns the server URL.
func (h *Handler) Addr() string {
	return h.config.URL
}

// lost closes every subscription channel once the server connection drops.
// Disconnect clears h.nc under the lock, so its own close is ignored here.
func (h *Handler) lost(nc *nats.Conn, err error) {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.nc != nc {
		return
	}
	logs.Warnf("[NATS client] disconnected from %s: %v", h.config.URL, err)
	h.inbox.Close()
}

// Connect dials the server and restores existing subscriptions.
func (h *Handler) Connect(ctx context.Context) error {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.nc != nil && h.nc.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &datastreams.ConnectionFailure{Addr: h.Addr(), Err: err}
	}

	nc, err := nats.Connect(h.config.URL,
		nats.Name(h.config.Name),
		nats.Timeout(h.config.Timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(h.lost),
	)
	if err != nil {
		return &datastreams.ConnectionFailure{Addr: h.Addr(), Err: err}
	}
	h.nc = nc
	h.inbox.Reset()

	for topic := range h.topics {
		if err := h.subscribe(topic); err != nil {
			nc.Close()
			h.nc = nil
			return &datastreams.ConnectionFailure{Addr: h.Addr(), Err: err}
		}
	}
	logs.Infof("[NATS client] connected to %s", h.config.URL)
	return nil
}

// Connected reports whether the server connection is up.
func (h *Handler) Connected() bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.nc != nil && h.nc.IsConnected()
}

// Publish writes payload and flushes so transport errors surface to the caller.
func (h *Handler) Publish(topic string, payload []byte) error {
	h.mux.Lock()
	nc := h.nc
	h.mux.Unlock()

	if nc == nil || !nc.IsConnected() {
		return &datastreams.PublishFailure{Topic: topic, Err: datastreams.ErrNotConnected}
	}
	if err := nc.Publish(Subject(topic), payload); err != nil {
		return &datastreams.PublishFailure{Topic: topic, Err: err}
	}
	if err := nc.FlushTimeout(h.config.Timeout); err != nil {
		return &datastreams.PublishFailure{Topic: topic, Err: err}
	}
	return nil
}

// Subscribe delivers every message on topic to the returned channel.
func (h *Handler) Subscribe(topic string) (<-chan msg.Msg, error) {
	h.mux.Lock()
	defer h.mux.Unlock()

	ch := h.inbox.Open(topic)
	if !h.topics[topic] && h.nc != nil {
		if err := h.subscribe(topic); err != nil {
			return nil, err
		}
	}
	h.topics[topic] = true
	return ch, nil
}

func (h *Handler) subscribe(topic string) error {
	_, err := h.nc.Subscribe(Subject(topic), func(m *nats.Msg) {
		h.inbox.Deliver(topic, m.Data)
	})
	return err
}

// Disconnect closes the connection and every subscription channel.
func (h *Handler) Disconnect() {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.nc != nil {
		h.nc.Close()
		h.nc = nil
	}
	h.inbox.Close()
	logs.Infof("[NATS client] disconnected from %s", h.config.URL)
}
