package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestCycle(t *testing.T) {
	c := New()
	now := time.Unix(1700000000, 0)
	c.Cycle("success", 20*time.Millisecond, now)
	c.Cycle("success", 10*time.Millisecond, now)
	c.Cycle("estimate", time.Millisecond, now)

	assert.Equal(t, testutil.ToFloat64(c.cycles.WithLabelValues("success")), 2.0)
	assert.Equal(t, testutil.ToFloat64(c.cycles.WithLabelValues("estimate")), 1.0)
	assert.Equal(t, testutil.ToFloat64(c.lastSuccess), 1700000000.0)
}

func TestConnection(t *testing.T) {
	c := New()
	c.ConnectAttempt(false)
	c.ConnectAttempt(true)
	c.Connected(true)

	assert.Equal(t, testutil.ToFloat64(c.connectAttempts.WithLabelValues("failure")), 1.0)
	assert.Equal(t, testutil.ToFloat64(c.connected), 1.0)
	c.Connected(false)
	assert.Equal(t, testutil.ToFloat64(c.connected), 0.0)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Cycle("success", time.Second, time.Now())
	c.ConnectAttempt(true)
	c.Connected(true)
	c.Consumed("stored")

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, w.Code, http.StatusNotFound)
}

func TestHandler(t *testing.T) {
	c := New()
	c.Consumed("stored")

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, is.Contains(w.Body.String(), `sestream_consumer_messages_total{result="stored"} 1`))
}
