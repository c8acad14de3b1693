package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskhub"

// Metrics holds the auth subsystem collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	sessionsIssued  prometheus.Counter
	sessionsRotated prometheus.Counter
	sessionsRevoked *prometheus.CounterVec
	reuseDetected   prometheus.Counter
	refreshFailures *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	bridgeRefreshes *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors in reg
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		sessionsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_sessions_issued_total",
			Help:      "Refresh sessions issued.",
		}),
		sessionsRotated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_sessions_rotated_total",
			Help:      "Successful refresh rotations.",
		}),
		sessionsRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_sessions_revoked_total",
			Help:      "Refresh sessions revoked, by reason.",
		}, []string{"reason"}),
		reuseDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_reuse_detected_total",
			Help:      "Re-presentations of revoked refresh secrets that triggered a family revoke.",
		}),
		refreshFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_failures_total",
			Help:      "Failed refresh attempts, by cause.",
		}, []string{"cause"}),
		gateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_gate_decisions_total",
			Help:      "Authorization gate outcomes by credential channel.",
		}, []string{"channel", "outcome"}),
		bridgeRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_bridge_refresh_total",
			Help:      "Transparent refreshes performed for page requests.",
		}, []string{"outcome"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// SessionIssued counts a newly issued refresh session
func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

// SessionRotated counts a successful rotation
func (m *Metrics) SessionRotated() {
	if m == nil {
		return
	}
	m.sessionsRotated.Inc()
}

// SessionsRevoked adds n revocations for reason
func (m *Metrics) SessionsRevoked(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

// ReuseDetected counts a reuse cascade
func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

// RefreshFailed counts a failed refresh by cause
func (m *Metrics) RefreshFailed(cause string) {
	if m == nil {
		return
	}
	m.refreshFailures.WithLabelValues(cause).Inc()
}

// GateDecision counts one gate outcome
func (m *Metrics) GateDecision(channel, outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(channel, outcome).Inc()
}

// BridgeRefresh counts a bridge refresh attempt
func (m *Metrics) BridgeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.bridgeRefreshes.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records request count, latency and in-flight requests.
// Routes are labelled by the matched ServeMux pattern to bound cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
