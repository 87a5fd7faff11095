package webservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/sestream/internal/pkg/codec"
	"github.com/ohowland/sestream/internal/pkg/metrics"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type fakeSource struct {
	records  []codec.Record
	received time.Time
	live     chan []byte
	listened chan struct{}
	removed  chan struct{}
}

func newFakeSource(records []codec.Record) *fakeSource {
	return &fakeSource{
		records:  records,
		received: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		live:     make(chan []byte, 1),
		listened: make(chan struct{}, 1),
		removed:  make(chan struct{}, 1),
	}
}

func (f *fakeSource) Latest() ([]codec.Record, time.Time, bool) {
	return f.records, f.received, f.records != nil
}

func (f *fakeSource) Node(id string) (codec.Record, bool) {
	for _, r := range f.records {
		if r.Node == id {
			return r, true
		}
	}
	return codec.Record{}, false
}

func (f *fakeSource) Listen() (uuid.UUID, <-chan []byte) {
	f.listened <- struct{}{}
	return uuid.New(), f.live
}

func (f *fakeSource) Unlisten(uuid.UUID) {
	f.removed <- struct{}{}
}

var records = []codec.Record{
	{Node: "N1", Voltage: "20.0+0j"},
	{Node: "N2", Voltage: "19.8-0.3j"},
}

func serve(app *App, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, "http://example.com"+target, nil)
	app.Router().ServeHTTP(w, r)
	return w
}

func TestLatest(t *testing.T) {
	app := New(newFakeSource(records), nil)

	w := serve(app, "GET", "/results/latest")
	assert.Equal(t, w.Code, http.StatusOK, "get returned 200")
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json; charset=UTF-8")
	assert.Equal(t, w.Header().Get("Last-Modified"), "Fri, 01 Mar 2024 12:00:00 GMT")

	got, err := codec.Decode(w.Body.Bytes())
	assert.NilError(t, err)
	assert.DeepEqual(t, got, records)
}

func TestLatestEmpty(t *testing.T) {
	app := New(newFakeSource(nil), nil)
	w := serve(app, "GET", "/results/latest")
	assert.Equal(t, w.Code, http.StatusNotFound)
}

func TestNode(t *testing.T) {
	app := New(newFakeSource(records), nil)

	w := serve(app, "GET", "/results/latest/N2")
	assert.Equal(t, w.Code, http.StatusOK)
	got := codec.Record{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, got, records[1])

	w = serve(app, "GET", "/results/latest/N9")
	assert.Equal(t, w.Code, http.StatusNotFound)
	assert.Assert(t, is.Contains(w.Body.String(), "N9"))
}

func TestMethodNotAllowed(t *testing.T) {
	app := New(newFakeSource(records), nil)
	w := serve(app, "POST", "/results/latest")
	assert.Equal(t, w.Code, http.StatusMethodNotAllowed)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.Consumed("stored")

	w := serve(New(newFakeSource(nil), m.Handler()), "GET", "/metrics")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, is.Contains(w.Body.String(), "sestream_consumer_messages_total"))

	w = serve(New(newFakeSource(nil), nil), "GET", "/metrics")
	assert.Equal(t, w.Code, http.StatusNotFound)

	// publisher side: metrics only
	w = serve(New(nil, m.Handler()), "GET", "/results/latest")
	assert.Equal(t, w.Code, http.StatusNotFound)
}

func TestStream(t *testing.T) {
	source := newFakeSource(records)
	srv := httptest.NewServer(New(source, nil).Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/results/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NilError(t, err)

	<-source.listened
	source.live <- []byte(`[{"node":"N1","voltage":"1.0+0j"}]`)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, payload, err := conn.ReadMessage()
	assert.NilError(t, err)
	assert.Equal(t, kind, websocket.TextMessage)
	assert.Equal(t, string(payload), `[{"node":"N1","voltage":"1.0+0j"}]`)

	assert.NilError(t, conn.Close())
	select {
	case <-source.removed:
	case <-time.After(5 * time.Second):
		t.Fatal("listener not removed after client closed")
	}
}
