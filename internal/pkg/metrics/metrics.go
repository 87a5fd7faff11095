package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the process metrics. A nil *Collector records nothing.
type Collector struct {
	registry        *prometheus.Registry
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	lastSuccess     prometheus.Gauge
	connectAttempts *prometheus.CounterVec
	connected       prometheus.Gauge
	consumed        *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sestream_cycles_total",
				Help: "Estimation cycles by outcome; failures are labelled with the failing stage.",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sestream_cycle_duration_seconds",
				Help:    "Duration of one synthesize, estimate, encode, publish cycle.",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sestream_last_success_timestamp_seconds",
				Help: "Unix time of the last published estimate.",
			},
		),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sestream_bus_connect_attempts_total",
				Help: "Message bus connection attempts by result.",
			},
			[]string{"result"},
		),
		connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sestream_bus_connected",
				Help: "1 while the publisher holds a bus connection.",
			},
		),
		consumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sestream_consumer_messages_total",
				Help: "Messages handled by the downstream consumer by result.",
			},
			[]string{"result"},
		),
	}
	c.registry.MustRegister(c.cycles, c.cycleDuration, c.lastSuccess, c.connectAttempts, c.connected, c.consumed)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Cycle records one finished cycle. outcome is "success" or the failing stage.
func (c *Collector) Cycle(outcome string, d time.Duration, at time.Time) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(d.Seconds())
	if outcome == "success" {
		c.lastSuccess.Set(float64(at.Unix()))
	}
}

// ConnectAttempt records a bus connection attempt.
func (c *Collector) ConnectAttempt(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.connectAttempts.WithLabelValues("success").Inc()
	} else {
		c.connectAttempts.WithLabelValues("failure").Inc()
	}
}

// Connected sets the connection gauge.
func (c *Collector) Connected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

// Consumed records a message handled by the consumer.
func (c *Collector) Consumed(result string) {
	if c == nil {
		return
	}
	c.consumed.WithLabelValues(result).Inc()
}
