// Package telemetry provides an in-process metric registry for component
// events. The API layer additionally exports Prometheus metrics; this
// registry exists so leaf packages can count things without dragging an
// exporter dependency into every constructor.
package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Labels represents a set of dimensional labels for metrics.
type Labels map[string]string

// String returns a canonical representation usable as a map key.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%s", k, l[k])
	}
	return out
}

// Counter is a monotonically increasing metric. All methods are nil-safe.
type Counter struct {
	name   string
	labels Labels
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.value.Add(1)
}

// Add adds delta to the counter; negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if c == nil || delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	if c == nil {
		return 0
	}
	return c.value.Load()
}

// MarshalJSON implements json.Marshaler.
func (c *Counter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"name": c.name, "labels": c.labels, "value": c.Get()})
}

// Gauge is a metric that can go up and down. All methods are nil-safe.
type Gauge struct {
	name   string
	labels Labels
	value  atomic.Int64
}

// Set sets the gauge.
func (g *Gauge) Set(value int64) {
	if g == nil {
		return
	}
	g.value.Store(value)
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.value.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.value.Add(-1)
}

// Get returns the current value.
func (g *Gauge) Get() int64 {
	if g == nil {
		return 0
	}
	return g.value.Load()
}

// MarshalJSON implements json.Marshaler.
func (g *Gauge) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"name": g.name, "labels": g.labels, "value": g.Get()})
}

// Registry manages counters and gauges.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
	}
}

func makeKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	return name + "{" + labels.String() + "}"
}

// Counter returns the counter for name+labels, registering it on first use.
// Nil registries hand back detached metrics so callers never branch.
func (r *Registry) Counter(name string, labels Labels) *Counter {
	if r == nil {
		return &Counter{name: name, labels: labels}
	}
	key := makeKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, labels: labels}
	r.counters[key] = c
	return c
}

// Gauge returns the gauge for name+labels, registering it on first use.
func (r *Registry) Gauge(name string, labels Labels) *Gauge {
	if r == nil {
		return &Gauge{name: name, labels: labels}
	}
	key := makeKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, labels: labels}
	r.gauges[key] = g
	return g
}

// Export returns a JSON-serializable snapshot of all metrics.
func (r *Registry) Export() map[string]any {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]any{
		"counters": r.counters,
		"gauges":   r.gauges,
	}
}

// Metric names emitted by the pipeline.
const (
	MetricModeChanges          = "budget_mode_changes_total"
	MetricSpendRecorded        = "budget_spend_recorded_total"
	MetricCacheHits            = "cache_hits_total"
	MetricCacheMisses          = "cache_misses_total"
	MetricCacheValidationFails = "cache_validation_failures_total"
	MetricNegativeCacheWrites  = "negative_cache_writes_total"
	MetricLockAcquired         = "locks_acquired_total"
	MetricLockContended        = "locks_contended_total"
	MetricFetchesTotal         = "source_fetches_total"
	MetricSynthesisRetries     = "synthesis_retries_total"
)
