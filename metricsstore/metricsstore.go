// Package metricsstore keeps in-memory counters, gauges, and bounded
// histograms, and renders them in Prometheus exposition format for the
// /metrics endpoint. jobqueue records its per-operation metrics here, and
// httpapi serves them on /metrics.
package metricsstore

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const histogramWindow = 2000

// Registry owns a namespaced set of counters, gauges, and histograms plus
// the prometheus.Registerer that exposes them for scraping.
type Registry struct {
	namespace string
	promReg   *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*counter
	gauges     map[string]*gauge
	histograms map[string]*histogram
}

// New returns an empty Registry. namespace prefixes every metric name
// (e.g. "skybridge").
func New(namespace string) *Registry {
	return &Registry{
		namespace:  namespace,
		promReg:    prometheus.NewRegistry(),
		counters:   make(map[string]*counter),
		gauges:     make(map[string]*gauge),
		histograms: make(map[string]*histogram),
	}
}

// Registerer exposes the underlying prometheus.Registerer so callers (e.g.
// httpapi) can mount promhttp.HandlerFor against it.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.promReg
}

// Gatherer exposes the underlying prometheus.Gatherer for the /metrics
// handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.promReg
}

// Counter returns (creating if necessary) a monotonically increasing
// counter identified by name, with the given constant labels.
func (r *Registry) Counter(name, help string, labels prometheus.Labels) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if c, ok := r.counters[key]; ok {
		return c
	}

	pc := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   r.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
	r.promReg.MustRegister(pc)
	c := &counter{prom: pc}
	r.counters[key] = c
	return c
}

// Gauge returns (creating if necessary) a gauge identified by name.
func (r *Registry) Gauge(name, help string, labels prometheus.Labels) Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if g, ok := r.gauges[key]; ok {
		return g
	}

	pg := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   r.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
	r.promReg.MustRegister(pg)
	g := &gauge{prom: pg}
	r.gauges[key] = g
	return g
}

// Histogram returns (creating if necessary) a latency-style histogram
// identified by name, keeping the last histogramWindow samples for
// percentile computation in addition to feeding a prometheus.Histogram.
func (r *Registry) Histogram(name, help string, labels prometheus.Labels) Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if h, ok := r.histograms[key]; ok {
		return h
	}

	ph := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   r.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	})
	r.promReg.MustRegister(ph)
	h := &histogram{prom: ph, window: histogramWindow}
	r.histograms[key] = h
	return h
}

func metricKey(name string, labels prometheus.Labels) string {
	key := name
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key += "|" + k + "=" + labels[k]
	}
	return key
}

// Counter increments a monotonic count.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge holds an arbitrary point-in-time value.
type Gauge interface {
	Set(v float64)
}

// Histogram records samples and exposes percentile queries over a bounded
// retained window, in addition to feeding the Prometheus collector.
type Histogram interface {
	Observe(v float64)
	Percentile(p float64) float64
}

type counter struct {
	prom prometheus.Counter
}

func (c *counter) Inc()                  { c.prom.Inc() }
func (c *counter) Add(delta float64)     { c.prom.Add(delta) }

type gauge struct {
	prom prometheus.Gauge
}

func (g *gauge) Set(v float64) { g.prom.Set(v) }

type histogram struct {
	prom   prometheus.Histogram
	window int

	mu      sync.Mutex
	samples []float64
	next    int
}

func (h *histogram) Observe(v float64) {
	h.prom.Observe(v)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) < h.window {
		h.samples = append(h.samples, v)
		return
	}
	h.samples[h.next] = v
	h.next = (h.next + 1) % h.window
}

// Percentile returns the p-th percentile (0 < p < 100) over the retained
// samples, or 0 if no samples have been recorded yet.
func (h *histogram) Percentile(p float64) float64 {
	h.mu.Lock()
	sorted := make([]float64, len(h.samples))
	copy(sorted, h.samples)
	h.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)

	idx := int(p / 100 * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
