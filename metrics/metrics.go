// Package metrics is a small in-process registry of counters and gauges.
package metrics

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MetricType represents different types of metrics
type MetricType int

const (
	Counter MetricType = iota
	Gauge
)

func (t MetricType) String() string {
	if t == Gauge {
		return "gauge"
	}
	return "counter"
}

// Metric describes a registered metric
type Metric struct {
	Name        string
	Type        MetricType
	Description string
}

// MetricValue is the current value of a metric for one label set
type MetricValue struct {
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Registry stores and manages metrics
type Registry struct {
	metrics map[string]Metric
	values  map[string]map[string]MetricValue
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]Metric),
		values:  make(map[string]map[string]MetricValue),
	}
}

func (r *Registry) Register(metric Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[metric.Name] = metric
}

// RecordCounter adds delta to a counter. Unregistered names are ignored.
func (r *Registry) RecordCounter(name string, delta float64, labels map[string]string) {
	r.record(name, Counter, labels, func(old float64) float64 { return old + delta })
}

// RecordGauge sets a gauge. Unregistered names are ignored.
func (r *Registry) RecordGauge(name string, value float64, labels map[string]string) {
	r.record(name, Gauge, labels, func(float64) float64 { return value })
}

func (r *Registry) record(name string, typ MetricType, labels map[string]string, update func(float64) float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if metric, ok := r.metrics[name]; !ok || metric.Type != typ {
		return
	}
	series := r.values[name]
	if series == nil {
		series = make(map[string]MetricValue)
		r.values[name] = series
	}
	key := labelKey(labels)
	series[key] = MetricValue{
		Value:     update(series[key].Value),
		Timestamp: time.Now(),
		Labels:    maps.Clone(labels),
	}
}

// Value returns the current value of name for labels.
func (r *Registry) Value(name string, labels map[string]string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name][labelKey(labels)]
	return v.Value, ok
}

// GetMetrics returns a snapshot of every recorded series, ordered by labels.
func (r *Registry) GetMetrics() map[string][]MetricValue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]MetricValue, len(r.values))
	for name, series := range r.values {
		keys := slices.Sorted(maps.Keys(series))
		values := make([]MetricValue, 0, len(keys))
		for _, k := range keys {
			values = append(values, series[k])
		}
		result[name] = values
	}
	return result
}

func labelKey(labels map[string]string) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
