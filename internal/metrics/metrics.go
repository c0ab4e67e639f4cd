// Package metrics provides Prometheus metrics for the forwarder.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Forward outcomes recorded in ForwardOutcomes.
const (
	OutcomeNotFound     = "not_found"
	OutcomeForwarded    = "forwarded"
	OutcomeBackendError = "backend_error"
)

// unmatchedLabel is the path_prefix label for requests that hit no route.
const unmatchedLabel = "unmatched"

// Metrics holds all Prometheus metric collectors for the forwarder.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	ForwardOutcomes *prometheus.CounterVec

	prefixes []string
}

// New creates a Metrics instance with a custom registry and all collectors
// registered. prefixes bounds the path_prefix label to the configured routes.
func New(prefixes []string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_forwarder_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_forwarder_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_forwarder_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_forwarder_upstream_request_duration_seconds",
			Help:    "Upstream call latency (until response headers) in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_forwarder_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		ForwardOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_forwarder_forward_outcomes_total",
			Help: "Routing outcomes by matched prefix: not_found, forwarded or backend_error.",
		}, []string{"path_prefix", "outcome"}),

		prefixes: append([]string(nil), prefixes...),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.ForwardOutcomes,
	)

	return m
}

// Outcome increments the outcome counter for path.
func (m *Metrics) Outcome(path, outcome string) {
	m.ForwardOutcomes.WithLabelValues(m.NormalizePath(path), outcome).Inc()
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizePath returns the first configured route prefix matching path, or
// "unmatched". Routing is first-match-wins, so the label names the route that
// actually served the request.
func (m *Metrics) NormalizePath(path string) string {
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	return unmatchedLabel
}
