package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes recorded on every outbound hop.
const (
	OutcomeSuccess       = "success"        // 2xx from the provider
	OutcomeProviderError = "provider_error" // non-2xx, forwarded untouched
	OutcomeTransport     = "transport_error"
)

// Collector tracks proxy call timings per provider and hop.
//
// Metrics:
//   - <ns>_proxy_call_duration_seconds: outbound call latency
//   - <ns>_proxy_calls_total: outbound calls by outcome
//   - <ns>_proxy_rejected_total: calls rejected before any network I/O, by reason
type Collector struct {
	registry *prometheus.Registry

	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewCollector creates and registers proxy metrics in a fresh registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "call_duration_seconds",
				Help:      "Outbound provider call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "hop", "outcome"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "calls_total",
				Help:      "Total outbound provider calls by outcome",
			},
			[]string{"provider", "hop", "outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "rejected_total",
				Help:      "Calls rejected before reaching a provider",
			},
			[]string{"provider", "reason"},
		),
	}

	registry.MustRegister(c.duration, c.calls, c.rejected)

	return c
}

// ObserveCall records one outbound call. A nil collector is a no-op.
func (c *Collector) ObserveCall(provider, hop, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(provider, hop, outcome).Observe(elapsed.Seconds())
	c.calls.WithLabelValues(provider, hop, outcome).Inc()
}

// RecordRejected counts a call that never left the proxy.
func (c *Collector) RecordRejected(provider, reason string) {
	if c == nil {
		return
	}
	c.rejected.WithLabelValues(provider, reason).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// OutcomeFor classifies a provider status code.
func OutcomeFor(statusCode int) string {
	if statusCode >= 200 && statusCode <= 299 {
		return OutcomeSuccess
	}
	return OutcomeProviderError
}
