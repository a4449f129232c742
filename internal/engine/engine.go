// Package engine orchestrates node execution over a graph snapshot:
// validation, topological ordering, per-node invocation with input
// coercion and lazy transform composition, an output cache keyed by node
// id, and the lifetime of GPU-resident cached values.
//
// The engine is single-threaded and cooperative. Node execute functions
// are awaited strictly in dependency order; there is never more than one
// node running against a snapshot, so the cache and runtime-state maps
// need no locking. Callers must not overlap top-level execution requests;
// the engine rejects overlap with ErrBusy rather than queueing.
package engine

import (
	"context"
	"image/color"
	"log/slog"
	"sync"

	"github.com/vk/pixelgraph/internal/gpu"
	"github.com/vk/pixelgraph/internal/graph"
	"github.com/vk/pixelgraph/internal/metrics"
	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// outputs is one node's cached output set, keyed by output port id.
type outputs map[string]value.Value

// Engine executes graphs. Create with New; a disposed engine is not
// reusable.
type Engine struct {
	log     *slog.Logger
	reg     *registry.Registry
	gpu     *gpu.Context
	metrics *metrics.Collector

	graph   *graph.Graph
	states  map[string]*NodeState
	cache   map[string]outputs
	scratch map[string]map[string]any

	observers []Observer

	// mu guards only the cross-goroutine control surface: the busy flag,
	// cancel functions, and disposed bit. Abort may be called from
	// another goroutine while a pass is in flight.
	mu           sync.Mutex
	busy         bool
	disposed     bool
	cancelRun    context.CancelFunc
	cancelSingle context.CancelCauseFunc
	// singleDone is closed when the current single-node run has fully
	// unwound; a superseding call waits on it so two runs never mutate
	// engine state concurrently.
	singleDone chan struct{}
	// singleGen identifies the most recent single-node run so a finished
	// run only clears its own cancel func.
	singleGen uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithGPU attaches a texture context. Absence is a logged degradation:
// nodes fall back to their CPU paths.
func WithGPU(c *gpu.Context) Option {
	return func(e *Engine) { e.gpu = c }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithObserver appends a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// New creates an engine over the given registry.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		log:     slog.Default(),
		reg:     reg,
		states:  make(map[string]*NodeState),
		cache:   make(map[string]outputs),
		scratch: make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gpu == nil {
		e.log.Info("No GPU context attached; executing on the CPU path.")
	} else if e.metrics != nil {
		e.gpu.SetLiveCallback(e.metrics.SetTexturesLive)
	}
	return e
}

// UpdateGraph replaces the engine's snapshot. New node ids get fresh idle
// runtime states; ids no longer present lose their runtime state and
// their cached outputs (releasing any GPU-resident values). Cache entries
// of surviving nodes are not disturbed.
func (e *Engine) UpdateGraph(g *graph.Graph) error {
	if e.isDisposed() {
		return ErrDisposed
	}

	e.graph = g
	for id := range g.Nodes {
		if _, ok := e.states[id]; !ok {
			e.states[id] = &NodeState{Status: StatusIdle}
		}
	}
	for id := range e.states {
		if _, ok := g.Nodes[id]; !ok {
			e.log.Debug("Dropping state for removed node.", "nodeID", id)
			delete(e.states, id)
			delete(e.scratch, id)
			e.invalidate(id)
		}
	}
	return nil
}

// Graph returns the current snapshot.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// CachedOutputs returns a node's cached output set, or nil when the node
// has no valid entry. The cache is the sole authority for upstream
// values; callers must not mutate the returned map.
func (e *Engine) CachedOutputs(nodeID string) map[string]value.Value {
	return e.cache[nodeID]
}

// MarkDirty drops the cache entries for exactly the given node ids,
// releasing any GPU-resident values among them. A pure invalidation
// primitive: nothing executes.
func (e *Engine) MarkDirty(nodeIDs []string) {
	if e.isDisposed() {
		return
	}
	n := 0
	for _, id := range nodeIDs {
		if _, ok := e.cache[id]; ok {
			n++
		}
		e.invalidate(id)
		if st, ok := e.states[id]; ok {
			st.Status = StatusIdle
			st.Progress = 0
			st.Err = ""
		}
	}
	e.metrics.CacheInvalidated(n)
}

// ClearCache releases every GPU-resident cached value and empties the
// cache entirely.
func (e *Engine) ClearCache() {
	if e.isDisposed() {
		return
	}
	e.clearCache()
}

func (e *Engine) clearCache() {
	n := len(e.cache)
	for id := range e.cache {
		e.invalidate(id)
	}
	e.cache = make(map[string]outputs)
	e.metrics.CacheInvalidated(n)
}

// Dispose aborts any in-flight execution, clears the cache, and releases
// the GPU context. Terminal: the engine is unusable afterwards.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	cancelRun, cancelSingle := e.cancelRun, e.cancelSingle
	e.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	if cancelSingle != nil {
		cancelSingle(context.Canceled)
	}
	e.clearCache()
	if e.gpu != nil {
		e.gpu.Dispose()
	}
	e.log.Debug("Engine disposed.")
}

// Abort signals cancellation to whatever execution is in flight. The
// aborted run caches nothing it had not already committed and surfaces a
// recoverable error to its caller.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancelRun, cancelSingle := e.cancelRun, e.cancelSingle
	e.mu.Unlock()
	if cancelRun != nil {
		cancelRun()
	}
	if cancelSingle != nil {
		cancelSingle(context.Canceled)
	}
}

func (e *Engine) isDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// invalidate drops one cache entry and releases its GPU-resident values.
func (e *Engine) invalidate(nodeID string) {
	out, ok := e.cache[nodeID]
	if !ok {
		return
	}
	e.releaseOutputs(out)
	delete(e.cache, nodeID)
}

// releaseOutputs releases every GPU-resident value in an output set.
// Whoever removes an entry from the cache releases its textures exactly
// once; this is that release point.
func (e *Engine) releaseOutputs(out outputs) {
	if e.gpu == nil {
		return
	}
	for port, v := range out {
		if tex, ok := v.Texture(); ok {
			if err := e.gpu.Release(tex.ID); err != nil {
				e.log.Error("Texture release failed.", "port", port, "error", err)
			}
		}
	}
}

// background resolves the canvas background fill, defaulting to
// transparent black on absent or malformed settings.
func (e *Engine) background() color.RGBA {
	if e.graph == nil || e.graph.Canvas.Background == "" {
		return color.RGBA{}
	}
	c, err := value.ParseHexColor(e.graph.Canvas.Background)
	if err != nil {
		e.log.Warn("Invalid canvas background color.", "value", e.graph.Canvas.Background)
		return color.RGBA{}
	}
	return c
}
