/*
subscriber.go Downstream consumer of the results topic. Every payload is
decoded, kept as the latest estimate, pushed to live listeners and stored as one
document. Messages are handled one at a time by Process.
*/

package subscriber

import (
	"context"
	"errors"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"github.com/ohowland/sestream/internal/pkg/clock"
	"github.com/ohowland/sestream/internal/pkg/codec"
	"github.com/ohowland/sestream/internal/pkg/datastreams"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"github.com/ohowland/sestream/internal/pkg/msg"
)

// ErrSubscriptionClosed is returned by Process when the transport drops the subscription.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Store persists decoded payloads.
type Store interface {
	Insert(ctx context.Context, records []codec.Record, received time.Time) error
}

// Subscriber consumes one topic.
type Subscriber struct {
	mux       *sync.RWMutex
	pid       uuid.UUID
	client    datastreams.Client
	topic     string
	store     Store
	metrics   *metrics.Collector
	inbox     <-chan msg.Msg
	latest    []codec.Record
	received  time.Time
	listeners map[uuid.UUID]chan []byte
}

// New returns a Subscriber. A nil store keeps only the latest estimate.
func New(client datastreams.Client, topic string, store Store) *Subscriber {
	return &Subscriber{
		mux:       &sync.RWMutex{},
		pid:       uuid.New(),
		client:    client,
		topic:     topic,
		store:     store,
		listeners: make(map[uuid.UUID]chan []byte),
	}
}

// WithMetrics counts handled messages on m.
func (s *Subscriber) WithMetrics(m *metrics.Collector) *Subscriber {
	s.metrics = m
	return s
}

// PID identifies the subscriber in logs.
func (s *Subscriber) PID() uuid.UUID {
	return s.pid
}

// Open subscribes to the topic. Messages published before Open are not seen.
func (s *Subscriber) Open() error {
	if s.inbox != nil {
		return nil
	}
	inbox, err := s.client.Subscribe(s.topic)
	if err != nil {
		return err
	}
	s.inbox = inbox
	logs.Infof("[Subscriber] %s listening on %s via %s", s.pid, s.topic, s.client.Addr())
	return nil
}

// Process handles messages until ctx is done, opening the subscription if needed.
func (s *Subscriber) Process(ctx context.Context) error {
	if err := s.Open(); err != nil {
		return err
	}

	for {
		select {
		case m, ok := <-s.inbox:
			if !ok {
				return ErrSubscriptionClosed
			}
			s.handle(ctx, m)
		case <-ctx.Done():
			logs.Infof("[Subscriber] %s shutdown", s.pid)
			return nil
		}
	}
}

// Serve runs Process and, whenever the transport drops the subscription,
// reconnects with backoff and subscribes again. It returns nil once ctx is done.
func (s *Subscriber) Serve(ctx context.Context, backoff time.Duration, clk clock.Clock) error {
	for {
		err := s.Process(ctx)
		if !errors.Is(err, ErrSubscriptionClosed) {
			return err
		}
		logs.Warnf("[Subscriber] %s lost subscription on %s, reconnecting", s.pid, s.topic)
		s.inbox = nil
		if err := datastreams.ConnectRetry(ctx, s.client, backoff, clk, nil); err != nil {
			logs.Infof("[Subscriber] %s shutdown", s.pid)
			return nil
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, m msg.Msg) {
	records, err := codec.Decode(m.Payload())
	if err != nil {
		s.metrics.Consumed("invalid")
		logs.Warnf("[Subscriber] skipping payload on %s: %v", m.Topic(), err)
		return
	}

	s.mux.Lock()
	s.latest = records
	s.received = m.Received()
	for _, ch := range s.listeners {
		select {
		case ch <- m.Payload():
		default:
		}
	}
	s.mux.Unlock()

	if s.store == nil {
		s.metrics.Consumed("kept")
		return
	}
	if err := s.store.Insert(ctx, records, m.Received()); err != nil {
		s.metrics.Consumed("failed")
		logs.Errorf(err, "[Subscriber] storing %d records", len(records))
		return
	}
	s.metrics.Consumed("stored")
	logs.Debugf("[Subscriber] stored %d records", len(records))
}

// Latest returns the last decoded estimate and when it arrived.
func (s *Subscriber) Latest() ([]codec.Record, time.Time, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if s.latest == nil {
		return nil, time.Time{}, false
	}
	return append([]codec.Record(nil), s.latest...), s.received, true
}

// Node returns one node of the last estimate.
func (s *Subscriber) Node(id string) (codec.Record, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	for _, r := range s.latest {
		if r.Node == id {
			return r, true
		}
	}
	return codec.Record{}, false
}

// Listen registers a channel receiving every valid payload. Slow listeners miss payloads.
func (s *Subscriber) Listen() (uuid.UUID, <-chan []byte) {
	s.mux.Lock()
	defer s.mux.Unlock()
	id := uuid.New()
	ch := make(chan []byte, 10)
	s.listeners[id] = ch
	return id, ch
}

// Unlisten removes and closes a listener.
func (s *Subscriber) Unlisten(id uuid.UUID) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if ch, ok := s.listeners[id]; ok {
		close(ch)
		delete(s.listeners, id)
	}
}
