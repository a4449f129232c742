package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pixelgraph/internal/graph"
	"github.com/vk/pixelgraph/internal/gpu"
	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
	"github.com/vk/pixelgraph/internal/xform"
)

// tracker records which node instances executed, via the "name" parameter
// each test node carries.
type tracker struct {
	mu   sync.Mutex
	runs []string
}

func (t *tracker) record(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = append(t.runs, name)
}

func (t *tracker) count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.runs {
		if r == name {
			n++
		}
	}
	return n
}

func (t *tracker) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

func named(params map[string]any) string {
	return registry.StringParam(params, "name", "?")
}

// testRegistry builds the node catalog the engine tests execute: constant
// numbers, adders, failures, blockers, and image producers.
func testRegistry(tr *tracker, started chan struct{}) *registry.Registry {
	r := registry.New()

	r.Register(&registry.Definition{
		Type:    "num",
		Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
		Params:  []registry.Param{{ID: "value", Type: value.TypeNumber, Default: 0.0}},
		Run: func(_ context.Context, _ *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			return map[string]value.Value{"out": value.NumberValue(registry.NumberParam(params, "value", 0))}, nil
		},
	})

	r.Register(&registry.Definition{
		Type: "add",
		Inputs: []registry.Port{
			{ID: "a", Type: value.TypeNumber, Required: true},
			{ID: "b", Type: value.TypeNumber, Default: value.NumberValue(0)},
		},
		Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
		Run: func(_ context.Context, _ *registry.ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			a, _ := inputs["a"].Number()
			b, _ := inputs["b"].Number()
			return map[string]value.Value{"out": value.NumberValue(a + b)}, nil
		},
	})

	r.Register(&registry.Definition{
		Type:   "fail",
		Inputs: []registry.Port{{ID: "a", Type: value.TypeNumber, Required: true}},
		Outputs: []registry.Port{
			{ID: "out", Type: value.TypeNumber},
		},
		Run: func(_ context.Context, _ *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			return nil, errors.New("boom")
		},
	})

	r.Register(&registry.Definition{
		Type:    "block",
		Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
		Run: func(ctx context.Context, _ *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			if started != nil {
				started <- struct{}{}
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	r.Register(&registry.Definition{
		Type:    "img",
		Outputs: []registry.Port{{ID: "image", Type: value.TypeImage}},
		Run: func(_ context.Context, _ *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			pix := image.NewRGBA(image.Rect(0, 0, 4, 4))
			for i := range pix.Pix {
				pix.Pix[i] = uint8(i)
			}
			return map[string]value.Value{"image": value.ImageValue(value.NewImage(pix))}, nil
		},
	})

	r.Register(&registry.Definition{
		Type:            "move",
		Inputs:          []registry.Port{{ID: "image", Type: value.TypeImage, Required: true}},
		Outputs:         []registry.Port{{ID: "image", Type: value.TypeImage}},
		Params:          []registry.Param{{ID: "tx", Type: value.TypeNumber, Default: 0.0}},
		AcceptsDeferred: true,
		HasLocalTransform: true,
		LocalTransform: func(params map[string]any) xform.Affine {
			return xform.Translate(float32(registry.NumberParam(params, "tx", 0)), 0)
		},
		Run: func(_ context.Context, _ *registry.ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			return map[string]value.Value{"image": inputs["image"]}, nil
		},
	})

	return r
}

func node(id, typ string, params map[string]any) *graph.Node {
	if params == nil {
		params = map[string]any{}
	}
	params["name"] = id
	return &graph.Node{ID: id, Type: typ, Params: params}
}

func edge(id, from, fromPort, to, toPort string) *graph.Edge {
	return &graph.Edge{ID: id, SourceNode: from, SourcePort: fromPort, TargetNode: to, TargetPort: toPort}
}

func mustGraph(t *testing.T, nodes []*graph.Node, edges []*graph.Edge) *graph.Graph {
	t.Helper()
	g := graph.New("g", "test")
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

// chainGraph is a -> b -> c with a disconnected sibling d.
func chainGraph(t *testing.T) *graph.Graph {
	return mustGraph(t,
		[]*graph.Node{
			node("a", "num", map[string]any{"value": 2.0}),
			node("b", "add", nil),
			node("c", "add", nil),
			node("d", "num", map[string]any{"value": 7.0}),
		},
		[]*graph.Edge{
			edge("e1", "a", "out", "b", "a"),
			edge("e2", "b", "out", "c", "a"),
		},
	)
}

func numOut(t *testing.T, e *Engine, nodeID string) float64 {
	t.Helper()
	out := e.CachedOutputs(nodeID)
	require.NotNil(t, out, "node %s has no cache entry", nodeID)
	n, ok := out["out"].Number()
	require.True(t, ok)
	return n
}

func TestExecute(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	ctx := context.Background()

	require.NoError(t, e.Execute(ctx))

	t.Run("all nodes executed once", func(t *testing.T) {
		assert.Equal(t, 4, tr.total())
		assert.Equal(t, 2.0, numOut(t, e, "a"))
		assert.Equal(t, 2.0, numOut(t, e, "b"))
		assert.Equal(t, 2.0, numOut(t, e, "c"))
		assert.Equal(t, 7.0, numOut(t, e, "d"))
	})

	t.Run("states complete", func(t *testing.T) {
		for _, id := range []string{"a", "b", "c", "d"} {
			st, ok := e.State(id)
			require.True(t, ok)
			assert.Equal(t, StatusComplete, st.Status)
			assert.Equal(t, 1.0, st.Progress)
		}
	})

	t.Run("second pass executes nothing", func(t *testing.T) {
		require.NoError(t, e.Execute(ctx))
		assert.Equal(t, 4, tr.total(), "every node served from cache")
	})

	t.Run("no snapshot", func(t *testing.T) {
		bare := New(testRegistry(&tracker{}, nil))
		err := bare.Execute(ctx)
		assert.ErrorContains(t, err, "no graph snapshot")
	})
}

func TestExecuteValidationFailure(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	g := mustGraph(t, []*graph.Node{
		node("a", "num", nil),
		node("x", "ghost", nil),
	}, nil)
	require.NoError(t, e.UpdateGraph(g))

	err := e.Execute(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, verr.Report.Valid)

	assert.Zero(t, tr.total(), "nothing executes on an invalid graph")

	st, ok := e.State("x")
	require.True(t, ok)
	assert.Equal(t, StatusError, st.Status)
	assert.Contains(t, st.Err, "unknown node type")

	// The valid node is untouched.
	st, _ = e.State("a")
	assert.Equal(t, StatusIdle, st.Status)
}

func TestExecutePartial(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx))

	require.NoError(t, e.ExecutePartial(ctx, []string{"b"}))

	t.Run("only the dirty closure re-executes", func(t *testing.T) {
		assert.Equal(t, 1, tr.count("a"))
		assert.Equal(t, 2, tr.count("b"))
		assert.Equal(t, 2, tr.count("c"))
		assert.Equal(t, 1, tr.count("d"), "sibling branch untouched")
	})

	t.Run("untouched caches survive", func(t *testing.T) {
		assert.NotNil(t, e.CachedOutputs("a"))
		assert.NotNil(t, e.CachedOutputs("d"))
		assert.Equal(t, 2.0, numOut(t, e, "c"), "downstream recomputed from cached upstream")
	})

	t.Run("cycle rejects", func(t *testing.T) {
		g := mustGraph(t,
			[]*graph.Node{node("p", "add", nil), node("q", "add", nil)},
			[]*graph.Edge{
				edge("e1", "p", "out", "q", "a"),
				edge("e2", "q", "out", "p", "a"),
			},
		)
		e2 := New(testRegistry(&tracker{}, nil))
		require.NoError(t, e2.UpdateGraph(g))
		err := e2.ExecutePartial(ctx, []string{"p"})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestNodeFailureIsolation(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	g := mustGraph(t,
		[]*graph.Node{
			node("a", "num", map[string]any{"value": 1.0}),
			node("f", "fail", nil),
			node("c", "add", nil),
		},
		[]*graph.Edge{
			edge("e1", "a", "out", "f", "a"),
			edge("e2", "f", "out", "c", "a"),
		},
	)
	require.NoError(t, e.UpdateGraph(g))

	err := e.Execute(context.Background())
	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "f", nerr.NodeID)
	assert.ErrorContains(t, err, "boom")

	t.Run("upstream cache survives, failure caches nothing", func(t *testing.T) {
		assert.NotNil(t, e.CachedOutputs("a"))
		assert.Nil(t, e.CachedOutputs("f"))
		assert.Nil(t, e.CachedOutputs("c"))
	})

	t.Run("states", func(t *testing.T) {
		st, _ := e.State("f")
		assert.Equal(t, StatusError, st.Status)
		assert.Contains(t, st.Err, "boom")

		st, _ = e.State("c")
		assert.Equal(t, StatusIdle, st.Status, "downstream of the failure never started")
	})

	t.Run("recovery after fixing the graph", func(t *testing.T) {
		fixed := mustGraph(t,
			[]*graph.Node{
				node("a", "num", map[string]any{"value": 1.0}),
				node("c", "add", nil),
			},
			[]*graph.Edge{edge("e1", "a", "out", "c", "a")},
		)
		require.NoError(t, e.UpdateGraph(fixed))
		require.NoError(t, e.Execute(context.Background()))
		assert.Equal(t, 1.0, numOut(t, e, "c"))
		assert.Equal(t, 1, tr.count("a"), "a still served from cache")
	})
}

func TestBusyAndAbort(t *testing.T) {
	started := make(chan struct{}, 1)
	tr := &tracker{}
	e := New(testRegistry(tr, started))
	g := mustGraph(t, []*graph.Node{
		node("a", "num", map[string]any{"value": 3.0}),
		node("bl", "block", nil),
	}, nil)
	require.NoError(t, e.UpdateGraph(g))

	done := make(chan error, 1)
	go func() { done <- e.Execute(context.Background()) }()
	<-started

	t.Run("overlapping execution rejected", func(t *testing.T) {
		assert.ErrorIs(t, e.Execute(context.Background()), ErrBusy)
		assert.ErrorIs(t, e.ExecutePartial(context.Background(), []string{"a"}), ErrBusy)
	})

	e.Abort()
	err := <-done

	t.Run("aborted run surfaces cancellation", func(t *testing.T) {
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("aborted node cached nothing", func(t *testing.T) {
		assert.NotNil(t, e.CachedOutputs("a"), "nodes completed before the abort stay cached")
		assert.Nil(t, e.CachedOutputs("bl"))
	})

	t.Run("engine usable again", func(t *testing.T) {
		g2 := mustGraph(t, []*graph.Node{node("a", "num", map[string]any{"value": 3.0})}, nil)
		require.NoError(t, e.UpdateGraph(g2))
		require.NoError(t, e.Execute(context.Background()))
	})
}

func TestExecuteSingleNode(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx))

	t.Run("reruns one node from cached upstream", func(t *testing.T) {
		require.NoError(t, e.ExecuteSingleNode(ctx, "c"))
		assert.Equal(t, 2, tr.count("c"))
		assert.Equal(t, 1, tr.count("b"), "upstream not re-walked")
		assert.Equal(t, 2.0, numOut(t, e, "c"))
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.ErrorContains(t, e.ExecuteSingleNode(ctx, "ghost"), "unknown node")
	})
}

func TestExecuteSingleNodeSupersedure(t *testing.T) {
	started := make(chan struct{}, 1)
	tr := &tracker{}
	e := New(testRegistry(tr, started))
	g := mustGraph(t, []*graph.Node{
		node("bl", "block", nil),
		node("a", "num", map[string]any{"value": 5.0}),
	}, nil)
	require.NoError(t, e.UpdateGraph(g))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- e.ExecuteSingleNode(ctx, "bl") }()
	<-started

	// The newer request supersedes the blocked one.
	require.NoError(t, e.ExecuteSingleNode(ctx, "a"))

	assert.NoError(t, <-done, "a superseded run is silent, not an error")
	assert.Nil(t, e.CachedOutputs("bl"), "the superseded run cached nothing")
	assert.Equal(t, 5.0, numOut(t, e, "a"))
}

func TestExecuteSingleNodeConcurrentRequests(t *testing.T) {
	tr := &tracker{}
	r := testRegistry(tr, nil)
	// A node function that ignores cancellation long enough for a
	// supersedure to land mid-run.
	r.Register(&registry.Definition{
		Type:    "sleepy",
		Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
		Run: func(_ context.Context, _ *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
			tr.record(named(params))
			time.Sleep(time.Millisecond)
			return map[string]value.Value{"out": value.NumberValue(1)}, nil
		},
	})
	e := New(r)
	require.NoError(t, e.UpdateGraph(mustGraph(t, []*graph.Node{node("n", "sleepy", nil)}, nil)))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.ExecuteSingleNode(context.Background(), "n")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err, "superseded runs are silent")
	}
	assert.Equal(t, 50, tr.total(), "requests serialize; none is dropped")

	st, ok := e.State("n")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, st.Status)
	assert.Equal(t, 1.0, numOut(t, e, "n"))
}

func TestExecuteSingleNodeCancellation(t *testing.T) {
	newBlocked := func(t *testing.T) (*Engine, chan struct{}) {
		t.Helper()
		started := make(chan struct{}, 1)
		e := New(testRegistry(&tracker{}, started))
		g := mustGraph(t, []*graph.Node{node("bl", "block", nil)}, nil)
		require.NoError(t, e.UpdateGraph(g))
		return e, started
	}

	t.Run("caller cancellation is reported", func(t *testing.T) {
		e, started := newBlocked(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- e.ExecuteSingleNode(ctx, "bl") }()
		<-started
		cancel()

		err := <-done
		require.Error(t, err, "only supersedure is silent")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, e.CachedOutputs("bl"))
	})

	t.Run("abort is reported", func(t *testing.T) {
		e, started := newBlocked(t)
		done := make(chan error, 1)
		go func() { done <- e.ExecuteSingleNode(context.Background(), "bl") }()
		<-started
		e.Abort()

		err := <-done
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMarkDirty(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx))

	e.MarkDirty([]string{"b", "ghost"})

	t.Run("exact invalidation", func(t *testing.T) {
		assert.Nil(t, e.CachedOutputs("b"))
		assert.NotNil(t, e.CachedOutputs("a"))
		assert.NotNil(t, e.CachedOutputs("c"), "dirty-marking does not cascade; ordering is the caller's job")
	})

	t.Run("state reset", func(t *testing.T) {
		st, _ := e.State("b")
		assert.Equal(t, StatusIdle, st.Status)
		assert.Zero(t, st.Progress)
	})

	t.Run("nothing executed", func(t *testing.T) {
		assert.Equal(t, 4, tr.total())
	})
}

func TestUpdateGraphRemovesNodeState(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx))

	// Drop the whole b -> c tail; keep a and d.
	smaller := mustGraph(t, []*graph.Node{
		node("a", "num", map[string]any{"value": 2.0}),
		node("d", "num", map[string]any{"value": 7.0}),
	}, nil)
	require.NoError(t, e.UpdateGraph(smaller))

	t.Run("removed nodes lose state and cache", func(t *testing.T) {
		_, ok := e.State("b")
		assert.False(t, ok)
		assert.Nil(t, e.CachedOutputs("b"))
		assert.Nil(t, e.CachedOutputs("c"))
	})

	t.Run("survivors keep their cache", func(t *testing.T) {
		require.NoError(t, e.Execute(ctx))
		assert.Equal(t, 1, tr.count("a"))
		assert.Equal(t, 1, tr.count("d"))
	})
}

func TestClearCache(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	ctx := context.Background()
	require.NoError(t, e.Execute(ctx))

	e.ClearCache()
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Nil(t, e.CachedOutputs(id))
	}

	require.NoError(t, e.Execute(ctx))
	assert.Equal(t, 8, tr.total(), "everything recomputes after a clear")
}

func TestDispose(t *testing.T) {
	tr := &tracker{}
	e := New(testRegistry(tr, nil))
	require.NoError(t, e.UpdateGraph(chainGraph(t)))
	require.NoError(t, e.Execute(context.Background()))

	e.Dispose()
	e.Dispose() // idempotent

	assert.ErrorIs(t, e.Execute(context.Background()), ErrDisposed)
	assert.ErrorIs(t, e.ExecutePartial(context.Background(), []string{"a"}), ErrDisposed)
	assert.ErrorIs(t, e.ExecuteSingleNode(context.Background(), "a"), ErrDisposed)
	assert.ErrorIs(t, e.UpdateGraph(chainGraph(t)), ErrDisposed)
	assert.Nil(t, e.CachedOutputs("a"))

	// Invalidation entry points are inert once disposed.
	st, ok := e.State("a")
	require.True(t, ok)
	require.Equal(t, StatusComplete, st.Status)
	e.MarkDirty([]string{"a"})
	st, _ = e.State("a")
	assert.Equal(t, StatusComplete, st.Status)
	e.ClearCache()
}

// recordingObserver captures lifecycle callbacks in order.
type recordingObserver struct {
	NopObserver
	events   []string
	progress []float64
}

func (o *recordingObserver) ExecutionStarted()   { o.events = append(o.events, "exec-start") }
func (o *recordingObserver) ExecutionCompleted() { o.events = append(o.events, "exec-done") }
func (o *recordingObserver) ExecutionFailed(error) {
	o.events = append(o.events, "exec-fail")
}
func (o *recordingObserver) NodeStarted(id string) { o.events = append(o.events, "start:"+id) }
func (o *recordingObserver) NodeCompleted(id string, _ time.Duration) {
	o.events = append(o.events, "done:"+id)
}
func (o *recordingObserver) NodeFailed(id string, _ error) {
	o.events = append(o.events, "fail:"+id)
}
func (o *recordingObserver) NodeProgress(_ string, p float64) {
	o.progress = append(o.progress, p)
}

func TestObserverLifecycle(t *testing.T) {
	tr := &tracker{}
	obs := &recordingObserver{}
	e := New(testRegistry(tr, nil), WithObserver(obs))
	g := mustGraph(t,
		[]*graph.Node{node("a", "num", nil), node("b", "add", nil)},
		[]*graph.Edge{edge("e1", "a", "out", "b", "a")},
	)
	require.NoError(t, e.UpdateGraph(g))
	require.NoError(t, e.Execute(context.Background()))

	assert.Equal(t, []string{"exec-start", "start:a", "done:a", "start:b", "done:b", "exec-done"}, obs.events)
}

func TestObserverNodeFailure(t *testing.T) {
	tr := &tracker{}
	obs := &recordingObserver{}
	e := New(testRegistry(tr, nil), WithObserver(obs))
	g := mustGraph(t,
		[]*graph.Node{node("a", "num", nil), node("f", "fail", nil)},
		[]*graph.Edge{edge("e1", "a", "out", "f", "a")},
	)
	require.NoError(t, e.UpdateGraph(g))
	require.Error(t, e.Execute(context.Background()))

	assert.Equal(t, []string{"exec-start", "start:a", "done:a", "start:f", "fail:f", "exec-fail"}, obs.events)
}

func TestProgressClamping(t *testing.T) {
	tr := &tracker{}
	r := testRegistry(tr, nil)
	r.Register(&registry.Definition{
		Type:    "prog",
		Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
		Run: func(_ context.Context, ec *registry.ExecContext, _ map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
			ec.Progress(0.5)
			ec.Progress(0.3) // regressions hold at the high-water mark
			ec.Progress(2.0) // overshoot clamps to 1
			return map[string]value.Value{"out": value.NumberValue(0)}, nil
		},
	})

	obs := &recordingObserver{}
	e := New(r, WithObserver(obs))
	g := mustGraph(t, []*graph.Node{node("p", "prog", nil)}, nil)
	require.NoError(t, e.UpdateGraph(g))
	require.NoError(t, e.Execute(context.Background()))

	assert.Equal(t, []float64{0.5, 0.5, 1.0}, obs.progress)
}

func TestLazyTransformComposition(t *testing.T) {
	tr := &tracker{}
	var captured value.Value
	r := testRegistry(tr, nil)
	r.Register(&registry.Definition{
		Type:    "sink",
		Inputs:  []registry.Port{{ID: "image", Type: value.TypeImage, Required: true}},
		Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
		Run: func(_ context.Context, _ *registry.ExecContext, inputs map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
			captured = inputs["image"]
			return map[string]value.Value{"out": value.NumberValue(0)}, nil
		},
	})

	e := New(r)
	g := mustGraph(t,
		[]*graph.Node{
			node("i", "img", nil),
			node("m1", "move", map[string]any{"tx": 1.0}),
			node("m2", "move", map[string]any{"tx": 2.0}),
			node("s", "sink", nil),
		},
		[]*graph.Edge{
			edge("e1", "i", "image", "m1", "image"),
			edge("e2", "m1", "image", "m2", "image"),
			edge("e3", "m2", "image", "s", "image"),
		},
	)
	require.NoError(t, e.UpdateGraph(g))
	require.NoError(t, e.Execute(context.Background()))

	srcImg, ok := e.CachedOutputs("i")["image"].Image()
	require.True(t, ok)

	t.Run("transform chain defers pixels", func(t *testing.T) {
		m2Img, ok := e.CachedOutputs("m2")["image"].Image()
		require.True(t, ok)
		require.True(t, m2Img.HasPendingTransform())
		assert.Same(t, srcImg.Pix, m2Img.Pix, "no resampling along the chain")
		assert.Equal(t, xform.Translate(3, 0), *m2Img.Pending, "translations compose")
	})

	t.Run("transform-unaware consumer gets baked pixels", func(t *testing.T) {
		img, ok := captured.Image()
		require.True(t, ok)
		assert.False(t, img.HasPendingTransform())
		assert.NotSame(t, srcImg.Pix, img.Pix)

		// Source pixel (0,0) landed at (3,0).
		i := img.Pix.PixOffset(3, 0)
		assert.Equal(t, srcImg.Pix.Pix[0:4], img.Pix.Pix[i:i+4])
	})
}

func TestInputCoercion(t *testing.T) {
	newSink := func(r *registry.Registry, captured *value.Value) {
		r.Register(&registry.Definition{
			Type:    "imgsink",
			Inputs:  []registry.Port{{ID: "image", Type: value.TypeImage, Required: true}},
			Outputs: []registry.Port{{ID: "out", Type: value.TypeNumber}},
			Run: func(_ context.Context, _ *registry.ExecContext, inputs map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
				*captured = inputs["image"]
				return map[string]value.Value{"out": value.NumberValue(0)}, nil
			},
		})
	}

	build := func(t *testing.T, canvasW, canvasH int) (value.Value, error) {
		tr := &tracker{}
		r := testRegistry(tr, nil)
		var captured value.Value
		newSink(r, &captured)
		e := New(r)
		g := mustGraph(t,
			[]*graph.Node{
				node("n", "num", map[string]any{"value": 128.0}),
				node("s", "imgsink", nil),
			},
			[]*graph.Edge{edge("e1", "n", "out", "s", "image")},
		)
		g.Canvas = graph.Canvas{Width: canvasW, Height: canvasH}
		require.NoError(t, e.UpdateGraph(g))
		err := e.Execute(context.Background())
		return captured, err
	}

	t.Run("number input to image port fills at canvas dims", func(t *testing.T) {
		captured, err := build(t, 32, 24)
		require.NoError(t, err)
		img, ok := captured.Image()
		require.True(t, ok)
		assert.Equal(t, 32, img.W)
		assert.Equal(t, 24, img.H)
		assert.Equal(t, uint8(128), img.Pix.Pix[0])
	})

	t.Run("no canvas falls back to default dims", func(t *testing.T) {
		captured, err := build(t, 0, 0)
		require.NoError(t, err)
		img, ok := captured.Image()
		require.True(t, ok)
		assert.Equal(t, value.FallbackDim, img.W)
		assert.Equal(t, value.FallbackDim, img.H)
	})
}

func TestGPUTextureLifecycle(t *testing.T) {
	upload := func(tr *tracker) *registry.Definition {
		return &registry.Definition{
			Type:    "upload",
			Outputs: []registry.Port{{ID: "tex", Type: value.TypeTexture}},
			Run: func(_ context.Context, ec *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
				tr.record(named(params))
				pix := image.NewRGBA(image.Rect(0, 0, 2, 2))
				id, err := ec.GPU.CreateTexture(pix)
				if err != nil {
					return nil, err
				}
				return map[string]value.Value{"tex": value.TextureValue(&value.Texture{ID: id, W: 2, H: 2})}, nil
			},
		}
	}

	newEngine := func(t *testing.T, preview bool) (*Engine, *gpu.Context, *tracker) {
		tr := &tracker{}
		r := testRegistry(tr, nil)
		def := upload(tr)
		def.GPUPreview = true
		r.Register(def)
		c := gpu.New(4)
		e := New(r, WithGPU(c))
		n := node("u", "upload", nil)
		n.Preview = preview
		require.NoError(t, e.UpdateGraph(mustGraph(t, []*graph.Node{n}, nil)))
		return e, c, tr
	}

	t.Run("cached texture counts as live", func(t *testing.T) {
		e, c, _ := newEngine(t, false)
		require.NoError(t, e.Execute(context.Background()))
		assert.Equal(t, 1, c.Live())

		tex, ok := e.CachedOutputs("u")["tex"].Texture()
		require.True(t, ok)
		assert.NotZero(t, tex.ID)
	})

	t.Run("invalidation releases exactly once", func(t *testing.T) {
		e, c, tr := newEngine(t, false)
		ctx := context.Background()
		require.NoError(t, e.Execute(ctx))
		e.MarkDirty([]string{"u"})
		assert.Equal(t, 0, c.Live())

		require.NoError(t, e.Execute(ctx))
		assert.Equal(t, 1, c.Live())
		assert.Equal(t, 2, tr.count("u"))

		e.ClearCache()
		assert.Equal(t, 0, c.Live())
	})

	t.Run("single node rerun supersedes the old texture", func(t *testing.T) {
		e, c, _ := newEngine(t, false)
		ctx := context.Background()
		require.NoError(t, e.Execute(ctx))
		require.NoError(t, e.ExecuteSingleNode(ctx, "u"))
		assert.Equal(t, 1, c.Live(), "old handle released, new one cached")
	})

	t.Run("dispose releases everything", func(t *testing.T) {
		e, c, _ := newEngine(t, false)
		require.NoError(t, e.Execute(context.Background()))
		e.Dispose()
		assert.Equal(t, 0, c.Live())
		_, err := c.CreateTexture(image.NewRGBA(image.Rect(0, 0, 1, 1)))
		assert.ErrorIs(t, err, gpu.ErrDisposed)
	})

	t.Run("preview downloads and releases", func(t *testing.T) {
		e, c, _ := newEngine(t, true)
		require.NoError(t, e.Execute(context.Background()))
		assert.Equal(t, 0, c.Live(), "preview download returns the handle")

		img, ok := e.CachedOutputs("u")["tex"].Image()
		require.True(t, ok, "texture output replaced with pixels")
		assert.Equal(t, 2, img.W)
	})

	t.Run("failed preview download releases the output set", func(t *testing.T) {
		tr := &tracker{}
		r := testRegistry(tr, nil)
		r.Register(&registry.Definition{
			Type:       "upload2",
			GPUPreview: true,
			Outputs: []registry.Port{
				{ID: "tex", Type: value.TypeTexture},
				{ID: "bad", Type: value.TypeTexture},
			},
			Run: func(_ context.Context, ec *registry.ExecContext, _ map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
				pix := image.NewRGBA(image.Rect(0, 0, 2, 2))
				good, err := ec.GPU.CreateTexture(pix)
				if err != nil {
					return nil, err
				}
				stale, err := ec.GPU.CreateTexture(pix)
				if err != nil {
					return nil, err
				}
				// A handle the node already gave back; the preview
				// download fails on it.
				if err := ec.GPU.Release(stale); err != nil {
					return nil, err
				}
				return map[string]value.Value{
					"tex": value.TextureValue(&value.Texture{ID: good, W: 2, H: 2}),
					"bad": value.TextureValue(&value.Texture{ID: stale, W: 2, H: 2}),
				}, nil
			},
		})
		c := gpu.New(4)
		e := New(r, WithGPU(c))
		n := node("u2", "upload2", nil)
		n.Preview = true
		require.NoError(t, e.UpdateGraph(mustGraph(t, []*graph.Node{n}, nil)))

		err := e.Execute(context.Background())
		var nerr *NodeError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "u2", nerr.NodeID)
		assert.Equal(t, 0, c.Live(), "surviving textures released on the failure path")
		assert.Nil(t, e.CachedOutputs("u2"))
	})

	t.Run("removed node releases its texture", func(t *testing.T) {
		e, c, _ := newEngine(t, false)
		require.NoError(t, e.Execute(context.Background()))
		require.Equal(t, 1, c.Live())

		empty := graph.New("g", "empty")
		require.NoError(t, e.UpdateGraph(empty))
		assert.Equal(t, 0, c.Live())
	})
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "complete", StatusComplete.String())
	assert.Equal(t, "error", StatusError.String())
}
