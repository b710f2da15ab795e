// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the relay.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ForwardsTotal  *prometheus.CounterVec
	ForwardRetries prometheus.Counter
	RateLimitWait  prometheus.Histogram
	AdmissionWait  prometheus.Histogram

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_proxy_http_requests_in_flight",
			Help: "Number of inbound HTTP requests currently being processed.",
		}),

		ForwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_forwards_total",
			Help: "Total forwarding calls by upstream method and outcome.",
		}, []string{"method", "outcome"}),

		ForwardRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_proxy_forward_retries_total",
			Help: "Total retry attempts across all forwarding calls.",
		}),

		RateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_proxy_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the inter-dispatch interval.",
			Buckets: defaultBuckets,
		}),

		AdmissionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_proxy_admission_wait_seconds",
			Help:    "Time spent waiting for a concurrency slot.",
			Buckets: defaultBuckets,
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_proxy_upstream_request_duration_seconds",
			Help:    "Upstream attempt latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.ForwardsTotal,
		m.ForwardRetries,
		m.RateLimitWait,
		m.AdmissionWait,
		m.UpstreamDuration,
		m.UpstreamResponses,
	)

	return m
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

// knownPaths lists the allowed path label values (bounded cardinality).
// The relay's route set is flat, so exact matches suffice.
var knownPaths = map[string]bool{
	"/": true, "/proxy": true, "/status": true, "/healthz": true, "/metrics": true,
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}
