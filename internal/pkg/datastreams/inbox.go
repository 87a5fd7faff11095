package datastreams

import (
	"sync"

	logs "github.com/danmuck/smplog"
	"github.com/ohowland/sestream/internal/pkg/msg"
)

// Inbox fans transport callbacks out to per-topic subscription channels.
// Deliveries never block the transport; a full channel drops the message.
type Inbox struct {
	mux    *sync.Mutex
	size   int
	subs   map[string][]chan msg.Msg
	closed bool
}

// NewInbox returns an Inbox whose channels buffer size messages.
func NewInbox(size int) *Inbox {
	return &Inbox{
		mux:  &sync.Mutex{},
		size: size,
		subs: make(map[string][]chan msg.Msg),
	}
}

// Open registers a new subscription channel for topic.
func (in *Inbox) Open(topic string) <-chan msg.Msg {
	in.mux.Lock()
	defer in.mux.Unlock()
	ch := make(chan msg.Msg, in.size)
	if in.closed {
		close(ch)
		return ch
	}
	in.subs[topic] = append(in.subs[topic], ch)
	return ch
}

// Deliver hands a payload to every channel subscribed to topic.
func (in *Inbox) Deliver(topic string, payload []byte) {
	in.mux.Lock()
	defer in.mux.Unlock()
	if in.closed {
		return
	}
	m := msg.New(topic, payload)
	for _, ch := range in.subs[topic] {
		select {
		case ch <- m:
		default:
			logs.Warnf("[Inbox] subscriber on %s is full, dropping message", topic)
		}
	}
}

// Close closes every subscription channel. Later deliveries are ignored.
func (in *Inbox) Close() {
	in.mux.Lock()
	defer in.mux.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	for topic, chs := range in.subs {
		for _, ch := range chs {
			close(ch)
		}
		delete(in.subs, topic)
	}
}

// Reset reopens a closed Inbox so a reconnected transport can reuse it.
func (in *Inbox) Reset() {
	in.mux.Lock()
	defer in.mux.Unlock()
	in.closed = false
}
