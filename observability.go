// observability.go: metrics collection for the plugin host and pipelines
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is the pluggable metrics sink used by the host,
// its registries and every analysis pipeline.
type MetricsCollector interface {
	// IncrementCounter adds value to a counter
	IncrementCounter(name string, labels map[string]string, value int64)

	// SetGauge sets a gauge to value
	SetGauge(name string, labels map[string]string, value float64)

	// RecordHistogram records one observation
	RecordHistogram(name string, labels map[string]string, value float64)

	// RecordCustomMetric stores an arbitrary value
	RecordCustomMetric(name string, labels map[string]string, value interface{})

	// GetMetrics returns a snapshot keyed by name{label=value,...}
	GetMetrics() map[string]interface{}
}

// Metric names emitted by the host.
const (
	MetricPipelineRequests   = "pipeline_requests_total"
	MetricPipelineAnalysis   = "pipeline_analysis_seconds"
	MetricInstancesLive      = "instances_live"
	MetricInstanceEvents     = "instance_events_total"
	MetricInstallationEvents = "installation_events_total"
	MetricCatalogTypes       = "catalog_types"
	MetricCatalogDiagnostics = "catalog_diagnostics"
	MetricCatalogSource      = "catalog_source"
	MetricPanicsRecovered    = "panics_recovered_total"
)

// DefaultMetricsCollector is an in-memory collector.
type DefaultMetricsCollector struct {
	metrics map[string]interface{}
	mu      sync.RWMutex
}

func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		metrics: make(map[string]interface{}),
	}
}

func (dmc *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	key := buildMetricKey(name, labels)
	if current, exists := dmc.metrics[key]; exists {
		if counter, ok := current.(int64); ok {
			dmc.metrics[key] = counter + value
		}
	} else {
		dmc.metrics[key] = value
	}
}

func (dmc *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	dmc.metrics[buildMetricKey(name, labels)] = value
}

func (dmc *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	key := buildMetricKey(name, labels)
	if current, exists := dmc.metrics[key]; exists {
		if histogram, ok := current.([]float64); ok {
			dmc.metrics[key] = append(histogram, value)
		}
	} else {
		dmc.metrics[key] = []float64{value}
	}
}

func (dmc *DefaultMetricsCollector) RecordCustomMetric(name string, labels map[string]string, value interface{}) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	dmc.metrics[buildMetricKey(name, labels)] = value
}

func (dmc *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()
	result := make(map[string]interface{}, len(dmc.metrics))
	for k, v := range dmc.metrics {
		result[k] = v
	}
	return result
}

// Counter returns the current value of a counter, or 0.
func (dmc *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()
	if v, ok := dmc.metrics[buildMetricKey(name, labels)].(int64); ok {
		return v
	}
	return 0
}

func buildMetricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s{%s}", name, strings.Join(parts, ","))
}

// PrometheusMetricsCollector backs MetricsCollector with client_golang
// vectors registered on a private registry. Vectors are created on first
// use; the label names seen first fix the vector's schema and later calls
// with a different label set are dropped.
type PrometheusMetricsCollector struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	custom     map[string]interface{}
	dropped    int64
}

// NewPrometheusMetricsCollector creates a collector whose metric names are
// prefixed with namespace.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		namespace:  namespace,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		custom:     make(map[string]interface{}),
	}
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (p *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return p.registry
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (p *PrometheusMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "devtools counter " + name,
		}, labelNames(labels))
		if err := p.registry.Register(vec); err != nil {
			p.dropped++
			return
		}
		p.counters[name] = vec
	}
	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		p.dropped++
		return
	}
	c.Add(float64(value))
}

func (p *PrometheusMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "devtools gauge " + name,
		}, labelNames(labels))
		if err := p.registry.Register(vec); err != nil {
			p.dropped++
			return
		}
		p.gauges[name] = vec
	}
	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		p.dropped++
		return
	}
	g.Set(value)
}

func (p *PrometheusMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      "devtools histogram " + name,
			Buckets:   prometheus.DefBuckets,
		}, labelNames(labels))
		if err := p.registry.Register(vec); err != nil {
			p.dropped++
			return
		}
		p.histograms[name] = vec
	}
	h, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		p.dropped++
		return
	}
	h.Observe(value)
}

// RecordCustomMetric keeps the value in memory only; Prometheus has no
// representation for arbitrary values.
func (p *PrometheusMetricsCollector) RecordCustomMetric(name string, labels map[string]string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.custom[buildMetricKey(name, labels)] = value
}

// GetMetrics flattens the gathered families. Counters and gauges map to
// float64, histograms to their sample count and sum.
func (p *PrometheusMetricsCollector) GetMetrics() map[string]interface{} {
	result := make(map[string]interface{})

	families, err := p.registry.Gather()
	if err != nil {
		result["gather_error"] = err.Error()
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			key := buildMetricKey(mf.GetName(), labels)
			switch {
			case m.GetCounter() != nil:
				result[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				result[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				result[key+"_count"] = m.GetHistogram().GetSampleCount()
				result[key+"_sum"] = m.GetHistogram().GetSampleSum()
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range p.custom {
		result[k] = v
	}
	if p.dropped > 0 {
		result["dropped_observations"] = p.dropped
	}
	return result
}

// NoOpMetricsCollector discards all observations.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) IncrementCounter(string, map[string]string, int64)         {}
func (NoOpMetricsCollector) SetGauge(string, map[string]string, float64)               {}
func (NoOpMetricsCollector) RecordHistogram(string, map[string]string, float64)        {}
func (NoOpMetricsCollector) RecordCustomMetric(string, map[string]string, interface{}) {}
func (NoOpMetricsCollector) GetMetrics() map[string]interface{} {
	return map[string]interface{}{}
}
