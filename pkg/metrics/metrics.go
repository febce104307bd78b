// Package metrics exposes Prometheus collectors for the HTTP surface and the
// realtime transport.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event dispatch outcomes
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeUnhandled = "unhandled"
)

type Metrics struct {
	registry *prometheus.Registry

	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec

	connections  prometheus.Gauge
	connectTotal prometheus.Counter
	disconnects  *prometheus.CounterVec
	events       *prometheus.CounterVec
	eventDur     *prometheus.HistogramVec
	rooms        prometheus.Gauge
	dropped      *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:     r,
		httpReqCnt:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total"}, []string{"method", "route", "status"}),
		httpDur:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route"}),
		connections:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connections"}),
		connectTotal: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ws_connections_total"}),
		disconnects:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_disconnects_total"}, []string{"reason"}),
		events:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_events_total"}, []string{"event", "outcome"}),
		eventDur:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "ws_event_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"event"}),
		rooms:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_rooms"}),
		dropped:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_frames_dropped_total"}, []string{"cause"}),
	}
	r.MustRegister(m.httpReqCnt, m.httpDur, m.connections, m.connectTotal, m.disconnects, m.events, m.eventDur, m.rooms, m.dropped)
	return m
}

// Registry returns the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connectTotal.Inc()
}

func (m *Metrics) Disconnected(reason string) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.disconnects.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventDone(event, outcome string, since time.Time) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
	if outcome != OutcomeUnhandled {
		m.eventDur.WithLabelValues(event).Observe(time.Since(since).Seconds())
	}
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

// FrameDropped counts inbound or outbound frames that were discarded
func (m *Metrics) FrameDropped(cause string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(cause).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
