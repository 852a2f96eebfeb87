package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live segment server.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         *prometheus.CounterVec
	errorsTotal           prometheus.Counter
	segmentsProducedTotal prometheus.Counter
	segmentsEvictedTotal  prometheus.Counter
	sessionsCreatedTotal  prometheus.Counter
	sessionsReapedTotal   prometheus.Counter
	streamsEndedTotal     *prometheus.CounterVec
	activeStreams         prometheus.Gauge
	activeSessions        prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_requests_total",
			Help: "Total number of HTTP requests received, by route pattern",
		}, []string{"route"}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		segmentsProducedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segments_produced_total",
			Help: "Total number of live segments cut by segmenters",
		}),
		segmentsEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segments_evicted_total",
			Help: "Total number of live segments removed by the reaper",
		}),
		sessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_sessions_created_total",
			Help: "Total number of viewer sessions opened",
		}),
		sessionsReapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_sessions_reaped_total",
			Help: "Total number of idle viewer sessions removed",
		}),
		streamsEndedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_streams_ended_total",
			Help: "Total number of streams ended, by reason",
		}, []string{"reason"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_active_streams",
			Help: "Number of registered live streams",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_active_sessions",
			Help: "Number of open viewer sessions across all streams",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.segmentsProducedTotal,
		m.segmentsEvictedTotal,
		m.sessionsCreatedTotal,
		m.sessionsReapedTotal,
		m.streamsEndedTotal,
		m.activeStreams,
		m.activeSessions,
	)
	return m
}

// Reasons used with IncStreamsEnded.
const (
	ReasonEnded   = "ended"
	ReasonTimeout = "timeout"
)

// IncRequests increments the request counter for route.
func (m *Metrics) IncRequests(route string) {
	m.requestsTotal.WithLabelValues(route).Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSegmentsProduced increments the produced segments counter.
func (m *Metrics) IncSegmentsProduced() {
	m.segmentsProducedTotal.Inc()
}

// AddSegmentsEvicted adds n to the evicted segments counter.
func (m *Metrics) AddSegmentsEvicted(n int) {
	m.segmentsEvictedTotal.Add(float64(n))
}

// IncSessionsCreated increments the opened sessions counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreatedTotal.Inc()
}

// AddSessionsReaped adds n to the reaped sessions counter.
func (m *Metrics) AddSessionsReaped(n int) {
	m.sessionsReapedTotal.Add(float64(n))
}

// IncStreamsEnded increments the streams ended counter for reason.
func (m *Metrics) IncStreamsEnded(reason string) {
	m.streamsEndedTotal.WithLabelValues(reason).Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
