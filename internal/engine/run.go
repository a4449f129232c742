package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/pixelgraph/internal/graph"
	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/toposort"
	"github.com/vk/pixelgraph/internal/validate"
	"github.com/vk/pixelgraph/internal/value"
)

// beginRun claims the engine's single execution slot and derives the
// cancellable run context. The returned release func must be deferred.
func (e *Engine) beginRun(ctx context.Context) (context.Context, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return nil, nil, ErrDisposed
	}
	if e.busy {
		return nil, nil, ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.busy = true
	e.cancelRun = cancel

	release := func() {
		e.mu.Lock()
		e.busy = false
		e.cancelRun = nil
		e.mu.Unlock()
		cancel()
	}
	return runCtx, release, nil
}

// Execute validates the full graph and runs every node whose output is
// not already cached, in topological order. Invalid graphs reject before
// any node runs, with per-offending-node error states. This is the cold
// start / full recompute path; on an unchanged graph a second call
// performs zero node executions.
func (e *Engine) Execute(ctx context.Context) error {
	runCtx, release, err := e.beginRun(ctx)
	if err != nil {
		return err
	}
	defer release()

	if e.graph == nil {
		return fmt.Errorf("engine: no graph snapshot; call UpdateGraph first")
	}

	rep := validate.Check(e.graph, e.reg)
	if !rep.Valid {
		verr := &ValidationError{Report: rep}
		for _, iss := range rep.Errors {
			if iss.NodeID == "" {
				continue
			}
			st, ok := e.states[iss.NodeID]
			if !ok {
				st = &NodeState{}
				e.states[iss.NodeID] = st
			}
			st.Status = StatusError
			st.Err = iss.Message
		}
		e.log.Error("Graph validation failed.", "errors", len(rep.Errors))
		e.notifyExecutionFailed(verr)
		e.metrics.ExecutionFinished("error")
		return verr
	}
	for _, iss := range rep.Warnings {
		e.log.Warn("Graph validation warning.", "nodeID", iss.NodeID, "message", iss.Message)
	}

	order, hasCycle := toposort.Sort(e.graph)
	if hasCycle {
		// Unreachable after validation, kept as a hard stop.
		verr := &ValidationError{Report: &validate.Report{
			Errors: []validate.Issue{{Message: "graph contains a dependency cycle"}},
		}}
		e.notifyExecutionFailed(verr)
		e.metrics.ExecutionFinished("error")
		return verr
	}

	return e.runPass(runCtx, order)
}

// ExecutePartial invalidates the cache for the given dirty nodes,
// computes the minimal downstream-inclusive order, and executes exactly
// that subset. Nodes outside the closure keep their cached outputs. This
// is the incremental path triggered after a parameter edit.
func (e *Engine) ExecutePartial(ctx context.Context, dirtyNodeIDs []string) error {
	runCtx, release, err := e.beginRun(ctx)
	if err != nil {
		return err
	}
	defer release()

	if e.graph == nil {
		return fmt.Errorf("engine: no graph snapshot; call UpdateGraph first")
	}

	order := toposort.Partial(e.graph, dirtyNodeIDs)
	if order == nil {
		verr := &ValidationError{Report: &validate.Report{
			Errors: []validate.Issue{{Message: "graph contains a dependency cycle"}},
		}}
		e.notifyExecutionFailed(verr)
		e.metrics.ExecutionFinished("error")
		return verr
	}
	// Invalidate the whole subset so the cache skip in the loop does not
	// short-circuit downstream nodes.
	e.MarkDirty(order)

	return e.runPass(runCtx, order)
}

// ExecuteSingleNode forces re-execution of one node against whatever is
// currently cached for its upstream dependencies, without walking
// upstream. A superseding call aborts the previous in-flight single-node
// run; supersession is a silent, expected outcome, not an error.
func (e *Engine) ExecuteSingleNode(ctx context.Context, nodeID string) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if e.cancelSingle != nil {
		e.cancelSingle(errSuperseded)
	}
	prevDone := e.singleDone
	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	e.cancelSingle = cancel
	e.singleDone = done
	e.singleGen++
	gen := e.singleGen
	e.mu.Unlock()

	// Wait out the superseded run before touching the state and cache
	// maps; its node function may ignore cancellation for a while.
	if prevDone != nil {
		<-prevDone
	}

	defer func() {
		cancel(context.Canceled)
		close(done)
		e.mu.Lock()
		if e.singleGen == gen {
			e.cancelSingle = nil
			e.singleDone = nil
		}
		e.mu.Unlock()
	}()

	if e.graph == nil {
		return fmt.Errorf("engine: no graph snapshot; call UpdateGraph first")
	}
	if _, ok := e.graph.Nodes[nodeID]; !ok {
		return fmt.Errorf("engine: unknown node %q", nodeID)
	}

	e.invalidate(nodeID)
	err := e.runNode(runCtx, nodeID)
	if err != nil && errors.Is(err, context.Canceled) && errors.Is(context.Cause(runCtx), errSuperseded) {
		e.log.Debug("Single-node execution superseded.", "nodeID", nodeID)
		return nil
	}
	return err
}

// runPass executes the ordered node ids, skipping valid cache entries.
// A node failure stops the pass; cached outputs of already completed
// nodes stay valid.
func (e *Engine) runPass(ctx context.Context, order []string) error {
	e.notifyExecutionStarted()
	started := time.Now()
	e.log.Info("Execution pass started.", "nodes", len(order))

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			e.log.Info("Execution pass aborted.", "nodeID", id)
			e.notifyExecutionFailed(err)
			e.metrics.ExecutionFinished("aborted")
			return fmt.Errorf("engine: execution aborted: %w", err)
		}
		if _, ok := e.cache[id]; ok {
			e.metrics.CacheHit()
			continue
		}
		if err := e.runNode(ctx, id); err != nil {
			outcome := "error"
			if errors.Is(err, context.Canceled) {
				outcome = "aborted"
			}
			e.notifyExecutionFailed(err)
			e.metrics.ExecutionFinished(outcome)
			return err
		}
	}

	e.log.Info("Execution pass completed.", "duration", time.Since(started))
	e.notifyExecutionCompleted()
	e.metrics.ExecutionFinished("complete")
	return nil
}

// runNode is the core per-node loop: gather inputs from upstream cache
// entries (coercing across declared-type mismatches), bake pending
// transforms for transform-unaware nodes, invoke the execute function,
// post-process GPU previews and local transforms, and commit the output
// set to the cache. Nothing is cached on failure or cancellation.
func (e *Engine) runNode(ctx context.Context, id string) error {
	n := e.graph.Nodes[id]
	def, ok := e.reg.Get(n.Type)
	if !ok {
		err := fmt.Errorf("unknown node type %q", n.Type)
		e.failNode(id, err)
		return &NodeError{NodeID: id, Err: err}
	}

	st, ok := e.states[id]
	if !ok {
		st = &NodeState{}
		e.states[id] = st
	}
	st.Status = StatusRunning
	st.Progress = 0
	st.Err = ""
	e.notifyNodeStarted(id)
	started := time.Now()

	inputs, err := e.gatherInputs(n, def)
	if err != nil {
		e.failNode(id, err)
		return &NodeError{NodeID: id, Err: err}
	}

	if !def.AcceptsDeferred {
		e.materializeInputs(inputs)
	}

	scratch := e.scratch[id]
	if scratch == nil {
		scratch = make(map[string]any)
		e.scratch[id] = scratch
	}

	last := 0.0
	ec := &registry.ExecContext{
		Progress: func(p float64) {
			// Clamped to be monotonically non-decreasing in [0,1].
			if p < last {
				p = last
			}
			if p > 1 {
				p = 1
			}
			last = p
			st.Progress = p
			e.notifyNodeProgress(id, p)
		},
		Scratch:    scratch,
		GPU:        e.gpu,
		CanvasW:    e.graph.Canvas.Width,
		CanvasH:    e.graph.Canvas.Height,
		Background: e.background(),
	}

	e.log.Debug("Executing node.", "nodeID", id, "type", n.Type)
	out, runErr := def.Run(ctx, ec, inputs, n.Params)
	if runErr == nil && ctx.Err() != nil {
		// Cancellation observed after the function returned: the result
		// is treated as never computed.
		runErr = ctx.Err()
	}
	if runErr != nil {
		if out != nil {
			e.releaseOutputs(out)
		}
		e.failNode(id, runErr)
		return &NodeError{NodeID: id, Err: runErr}
	}

	if def.GPUPreview && previewEnabled(n) {
		if err := e.downloadPreviews(out); err != nil {
			e.releaseOutputs(out)
			e.failNode(id, err)
			return &NodeError{NodeID: id, Err: err}
		}
	}

	if def.HasLocalTransform && def.LocalTransform != nil {
		if t := def.LocalTransform(n.Params); !t.IsIdentity() {
			for port, v := range out {
				switch v.Kind() {
				case value.KindImage:
					img, _ := v.Image()
					out[port] = value.ImageValue(img.WithTransform(t))
				case value.KindMask:
					m, _ := v.Mask()
					out[port] = value.MaskValue(m.WithTransform(t))
				}
			}
		}
	}

	// Commit: release whatever entry this one supersedes, then store.
	e.invalidate(id)
	e.cache[id] = out
	st.Status = StatusComplete
	st.Progress = 1
	st.Duration = time.Since(started)
	e.notifyNodeCompleted(id, st.Duration)
	e.metrics.NodeExecuted()
	e.log.Debug("Node completed.", "nodeID", id, "duration", st.Duration)
	return nil
}

func (e *Engine) failNode(id string, err error) {
	st, ok := e.states[id]
	if !ok {
		st = &NodeState{}
		e.states[id] = st
	}
	st.Status = StatusError
	st.Err = err.Error()
	e.log.Error("Node execution failed.", "nodeID", id, "error", err)
	e.notifyNodeFailed(id, err)
}

// gatherInputs resolves each declared input port: the unique incoming
// edge's cached upstream value when connected (coerced when declared
// types differ and neither is the wildcard), otherwise the port default.
func (e *Engine) gatherInputs(n *graph.Node, def *registry.Definition) (map[string]value.Value, error) {
	inputs := make(map[string]value.Value, len(def.Inputs))
	for _, port := range def.Inputs {
		edge := e.graph.EdgeInto(n.ID, port.ID)
		if edge == nil {
			if !port.Default.IsZero() {
				inputs[port.ID] = port.Default
			}
			continue
		}

		v, ok := e.cache[edge.SourceNode][edge.SourcePort]
		if !ok {
			if !port.Default.IsZero() {
				inputs[port.ID] = port.Default
				continue
			}
			if port.Required {
				return nil, fmt.Errorf("no cached output for upstream %s.%s feeding port %q",
					edge.SourceNode, edge.SourcePort, port.ID)
			}
			continue
		}

		srcType := value.TypeAny
		if srcNode, ok := e.graph.Nodes[edge.SourceNode]; ok {
			if srcDef, ok := e.reg.Get(srcNode.Type); ok {
				if p, ok := srcDef.Output(edge.SourcePort); ok {
					srcType = p.Type
				}
			}
		}
		if srcType != port.Type && srcType != value.TypeAny && port.Type != value.TypeAny {
			v = value.Coerce(v, srcType, port.Type, e.inferDims(def, inputs))
		}
		inputs[port.ID] = v
	}
	return inputs, nil
}

// inferDims scans already-resolved sibling inputs, in declaration order,
// for an image or mask whose dimensions a buffer-producing coercion can
// reuse. Falls back to the canvas dimensions.
func (e *Engine) inferDims(def *registry.Definition, resolved map[string]value.Value) value.Dims {
	for _, port := range def.Inputs {
		v, ok := resolved[port.ID]
		if !ok {
			continue
		}
		switch v.Kind() {
		case value.KindImage:
			img, _ := v.Image()
			return value.Dims{W: img.W, H: img.H}
		case value.KindMask:
			m, _ := v.Mask()
			return value.Dims{W: m.W, H: m.H}
		}
	}
	return value.Dims{W: e.graph.Canvas.Width, H: e.graph.Canvas.Height}
}

// materializeInputs bakes any pending transform on image or mask inputs
// so transform-unaware nodes always see materialized pixels.
func (e *Engine) materializeInputs(inputs map[string]value.Value) {
	bg := e.background()
	for port, v := range inputs {
		switch v.Kind() {
		case value.KindImage:
			img, _ := v.Image()
			if img.HasPendingTransform() {
				inputs[port] = value.ImageValue(img.Materialize(bg))
			}
		case value.KindMask:
			m, _ := v.Mask()
			if m.HasPendingTransform() {
				inputs[port] = value.MaskValue(m.Materialize())
			}
		}
	}
}

// downloadPreviews replaces texture outputs with downloaded pixel
// buffers, releasing each source texture once copied.
func (e *Engine) downloadPreviews(out map[string]value.Value) error {
	if e.gpu == nil {
		return nil
	}
	for port, v := range out {
		tex, ok := v.Texture()
		if !ok {
			continue
		}
		pix, err := e.gpu.Download(tex.ID)
		if err != nil {
			return fmt.Errorf("downloading preview for port %q: %w", port, err)
		}
		if err := e.gpu.Release(tex.ID); err != nil {
			return fmt.Errorf("releasing texture after preview download: %w", err)
		}
		out[port] = value.ImageValue(value.NewImage(pix))
	}
	return nil
}

func previewEnabled(n *graph.Node) bool {
	if n.Preview {
		return true
	}
	if p, ok := n.Params["preview"].(bool); ok {
		return p
	}
	return false
}
