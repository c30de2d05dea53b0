// Package resilience provides observability for the resolution pipeline:
// structured logging middleware and a metrics abstraction with no-op and
// Prometheus implementations.
package resilience

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names recorded by the logging middleware.
const (
	MetricRequestsTotal   = "deferred.requests.total"
	MetricRequestDuration = "deferred.request.duration_ms"
	MetricErrorsTotal     = "deferred.errors.total"
	MetricDecisionsTotal  = "deferred.decisions.total"
	MetricRetryAfter      = "deferred.retry_after_seconds"
)

// Metrics collects observability data with tag-based dimensionality.
// A given metric name must always be recorded with the same tag keys.
type Metrics interface {
	// IncrementCounter increases a counter metric by value.
	IncrementCounter(name string, tags map[string]string, value float64)
	// RecordHistogram records value in a histogram metric.
	RecordHistogram(name string, tags map[string]string, value float64)
	// SetGauge sets a gauge metric to value.
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics discards all data.
type NoOpMetrics struct{}

// NewNoOpMetrics returns a new no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// PrometheusMetrics adapts Metrics onto Prometheus collectors. Collectors are
// created on first use, named namespace_<name> with dots replaced by
// underscores, and labelled by the sorted tag keys.
type PrometheusMetrics struct {
	namespace  string
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics registering on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		namespace:  namespace,
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// IncrementCounter implements Metrics.
func (p *PrometheusMetrics) IncrementCounter(name string, tags map[string]string, value float64) {
	labels := labelNames(tags)
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = register(p.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      "Counter " + name + ".",
		}, labels))
		p.counters[name] = vec
	}
	p.mu.Unlock()
	vec.With(tags).Add(value)
}

// RecordHistogram implements Metrics.
func (p *PrometheusMetrics) RecordHistogram(name string, tags map[string]string, value float64) {
	labels := labelNames(tags)
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = register(p.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      "Histogram " + name + ".",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, labels))
		p.histograms[name] = vec
	}
	p.mu.Unlock()
	vec.With(tags).Observe(value)
}

// SetGauge implements Metrics.
func (p *PrometheusMetrics) SetGauge(name string, tags map[string]string, value float64) {
	labels := labelNames(tags)
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = register(p.registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      "Gauge " + name + ".",
		}, labels))
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	vec.With(tags).Set(value)
}

// register registers c, returning the existing collector if an identical one
// is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
