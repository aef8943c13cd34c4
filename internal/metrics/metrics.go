// Package metrics exposes Prometheus instrumentation for the proxy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Decisions      *prometheus.CounterVec
	Forwards       *prometheus.CounterVec
	ForwardLatency prometheus.Histogram
	Resolutions    *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	Delegations    prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callproxy_decisions_total",
			Help: "Authorization decisions by kind and rule",
		}, []string{"decision", "rule"}),
		Forwards: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callproxy_forwards_total",
			Help: "Forwarded calls by result",
		}, []string{"result"}),
		ForwardLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callproxy_forward_duration_seconds",
			Help:    "Time spent waiting for forwarded calls",
			Buckets: prometheus.DefBuckets,
		}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callproxy_resolutions_total",
			Help: "Owner resolutions of queued requests by disposition",
		}, []string{"disposition"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "callproxy_queue_pending",
			Help: "Queued requests awaiting the owner",
		}),
		Delegations: f.NewGauge(prometheus.GaugeOpts{
			Name: "callproxy_delegations",
			Help: "Stored delegation records",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts one authorization decision.
func (m *Metrics) RecordDecision(kind, rule string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind, rule).Inc()
}

// RecordForward counts one forward and observes its duration.
func (m *Metrics) RecordForward(err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Forwards.WithLabelValues(result).Inc()
	m.ForwardLatency.Observe(took.Seconds())
}

// RecordResolution counts one owner resolution.
func (m *Metrics) RecordResolution(disposition string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(disposition).Inc()
}

// SetQueueDepth sets the pending queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetDelegations sets the stored delegations gauge.
func (m *Metrics) SetDelegations(n int) {
	if m == nil {
		return
	}
	m.Delegations.Set(float64(n))
}
