// Package metrics exposes the engine's execution counters on a private
// Prometheus registry. Embedding applications decide whether and where to
// serve them; the engine only increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the engine's metrics. A nil *Collector is a valid
// no-op receiver everywhere the engine records.
type Collector struct {
	registry *prometheus.Registry

	nodeExecutions     prometheus.Counter
	cacheHits          prometheus.Counter
	cacheInvalidations prometheus.Counter
	executions         *prometheus.CounterVec
	texturesLive       prometheus.Gauge
}

// New creates a Collector with all metrics registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		nodeExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgraph_node_executions_total",
			Help: "Number of node execute functions invoked.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgraph_cache_hits_total",
			Help: "Number of nodes skipped because their cached output was valid.",
		}),
		cacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgraph_cache_invalidations_total",
			Help: "Number of cache entries dropped by dirty-marking or clearing.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgraph_executions_total",
			Help: "Top-level execution passes by outcome.",
		}, []string{"outcome"}),
		texturesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelgraph_gpu_textures_live",
			Help: "Textures currently held by the GPU context.",
		}),
	}
	c.registry.MustRegister(c.nodeExecutions, c.cacheHits, c.cacheInvalidations, c.executions, c.texturesLive)
	return c
}

// Gatherer returns the private registry for exposition.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

// NodeExecuted records one node function invocation.
func (c *Collector) NodeExecuted() {
	if c != nil {
		c.nodeExecutions.Inc()
	}
}

// CacheHit records a node skipped on a valid cache entry.
func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

// CacheInvalidated records n cache entries dropped.
func (c *Collector) CacheInvalidated(n int) {
	if c != nil && n > 0 {
		c.cacheInvalidations.Add(float64(n))
	}
}

// ExecutionFinished records a top-level pass with the given outcome
// ("complete", "error", or "aborted").
func (c *Collector) ExecutionFinished(outcome string) {
	if c != nil {
		c.executions.WithLabelValues(outcome).Inc()
	}
}

// SetTexturesLive sets the live-texture gauge.
func (c *Collector) SetTexturesLive(n int) {
	if c != nil {
		c.texturesLive.Set(float64(n))
	}
}
