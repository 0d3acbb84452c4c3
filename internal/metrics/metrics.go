// Package metrics defines the Prometheus collectors of the inventory core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphinventory"

// Metrics owns one registry so tests and multiple servers do not collide
// on the process-wide default registerer.
type Metrics struct {
	registry *prometheus.Registry

	serializeTotal         *prometheus.CounterVec
	serializeFailures      *prometheus.CounterVec
	parentResolveAttempts  prometheus.Histogram
	transientRetries       prometheus.Counter
	probesTotal            *prometheus.CounterVec
	probeDurationSeconds   prometheus.Histogram
	availabilityCacheState prometheus.Gauge
	dlqRecordsTotal        prometheus.Counter
}

// New creates and registers all collectors, plus the Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mr := Registry{R: reg}
	return &Metrics{
		registry: reg,
		serializeTotal: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serializer",
			Name:      "operations_total",
			Help:      `Resource mutations handled by the serializer, by operation and outcome.`,
		}, []string{"operation", "outcome"}),
		serializeFailures: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serializer",
			Name:      "failures_total",
			Help:      `Terminal serializer failures by error code.`,
		}, []string{"code"}),
		parentResolveAttempts: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "serializer",
			Name:      "parent_resolution_attempts",
			Help:      `Evaluations needed to resolve a dependent resource's parent.`,
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		transientRetries: mr.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serializer",
			Name:      "transient_retries_total",
			Help:      `Parent evaluations that hit a transient store error.`,
		}),
		probesTotal: mr.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "probes_total",
			Help:      `ACTUAL store probes by result.`,
		}, []string{"result"}),
		probeDurationSeconds: mr.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "probe_duration_seconds",
			Help:      `The time an ACTUAL store probe takes.`,
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		availabilityCacheState: mr.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "cache_state",
			Help:      `Cached store status: 0 unknown, 1 available, 2 unavailable.`,
		}),
		dlqRecordsTotal: mr.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "records_total",
			Help:      `Terminal failures written to the dead-letter queue.`,
		}),
	}
}

// Registry returns the underlying registry, e.g. for testutil
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSerialize counts one SerializeToDb call
func (m *Metrics) ObserveSerialize(operation, outcome string) {
	if m == nil {
		return
	}
	m.serializeTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveFailure counts a terminal failure by its error code
func (m *Metrics) ObserveFailure(code string) {
	if m == nil {
		return
	}
	m.serializeFailures.WithLabelValues(code).Inc()
}

// ObserveParentResolution records how many evaluations a parent lookup took
func (m *Metrics) ObserveParentResolution(attempts int) {
	if m == nil {
		return
	}
	m.parentResolveAttempts.Observe(float64(attempts))
}

// IncTransientRetry counts one transient parent evaluation failure
func (m *Metrics) IncTransientRetry() {
	if m == nil {
		return
	}
	m.transientRetries.Inc()
}

// ObserveProbe records an ACTUAL probe outcome and latency
func (m *Metrics) ObserveProbe(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(result).Inc()
	m.probeDurationSeconds.Observe(d.Seconds())
}

// SetCacheState publishes the cached availability status
func (m *Metrics) SetCacheState(state int) {
	if m == nil {
		return
	}
	m.availabilityCacheState.Set(float64(state))
}

// IncDLQRecord counts one dead-letter write
func (m *Metrics) IncDLQRecord() {
	if m == nil {
		return
	}
	m.dlqRecordsTotal.Inc()
}
