package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every gateway metric.
const Namespace = "composite_gateway"

// Metrics holds the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	UpstreamDuration *prometheus.HistogramVec
	UpstreamInFlight *prometheus.GaugeVec
	BranchOutcomes   *prometheus.CounterVec
	ValidationChecks *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of calls to backend services",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend", "method", "code"}),
		UpstreamInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "upstream",
			Name:      "requests_in_flight",
			Help:      "Calls to backend services currently in flight",
		}, []string{"backend"}),
		BranchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "aggregate",
			Name:      "branch_outcomes_total",
			Help:      "Outcomes of movie-details fan-out branches",
		}, []string{"branch", "outcome"}),
		ValidationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "validate",
			Name:      "checks_total",
			Help:      "Existence checks by entity and result",
		}, []string{"entity", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Inbound HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.UpstreamDuration,
			m.UpstreamInFlight,
			m.BranchOutcomes,
			m.ValidationChecks,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// ObserveUpstream records one backend call.
func (m *Metrics) ObserveUpstream(backend, method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(backend, method, code).Observe(seconds)
}

// SetInFlight sets the in-flight gauge for a backend.
func (m *Metrics) SetInFlight(backend string, n int64) {
	if m == nil {
		return
	}
	m.UpstreamInFlight.WithLabelValues(backend).Set(float64(n))
}

// CountBranch records the outcome of one aggregate branch.
func (m *Metrics) CountBranch(branch, outcome string) {
	if m == nil {
		return
	}
	m.BranchOutcomes.WithLabelValues(branch, outcome).Inc()
}

// CountCheck records one existence check.
func (m *Metrics) CountCheck(entity, result string) {
	if m == nil {
		return
	}
	m.ValidationChecks.WithLabelValues(entity, result).Inc()
}

// ObserveHTTP records one inbound request.
func (m *Metrics) ObserveHTTP(method, route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
