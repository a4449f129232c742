package engine

import "time"

// Observer receives execution lifecycle callbacks. All callbacks fire
// synchronously inside the engine's control flow, in execution order; an
// observer that blocks stalls the engine.
type Observer interface {
	ExecutionStarted()
	ExecutionCompleted()
	ExecutionFailed(err error)
	NodeStarted(nodeID string)
	NodeProgress(nodeID string, progress float64)
	NodeCompleted(nodeID string, duration time.Duration)
	NodeFailed(nodeID string, err error)
}

// NopObserver is an Observer with empty methods, for embedding when only
// a subset of callbacks matters.
type NopObserver struct{}

func (NopObserver) ExecutionStarted()                  {}
func (NopObserver) ExecutionCompleted()                {}
func (NopObserver) ExecutionFailed(error)              {}
func (NopObserver) NodeStarted(string)                 {}
func (NopObserver) NodeProgress(string, float64)       {}
func (NopObserver) NodeCompleted(string, time.Duration) {}
func (NopObserver) NodeFailed(string, error)           {}

func (e *Engine) notifyExecutionStarted() {
	for _, o := range e.observers {
		o.ExecutionStarted()
	}
}

func (e *Engine) notifyExecutionCompleted() {
	for _, o := range e.observers {
		o.ExecutionCompleted()
	}
}

func (e *Engine) notifyExecutionFailed(err error) {
	for _, o := range e.observers {
		o.ExecutionFailed(err)
	}
}

func (e *Engine) notifyNodeStarted(id string) {
	for _, o := range e.observers {
		o.NodeStarted(id)
	}
}

func (e *Engine) notifyNodeProgress(id string, p float64) {
	for _, o := range e.observers {
		o.NodeProgress(id, p)
	}
}

func (e *Engine) notifyNodeCompleted(id string, d time.Duration) {
	for _, o := range e.observers {
		o.NodeCompleted(id, d)
	}
}

func (e *Engine) notifyNodeFailed(id string, err error) {
	for _, o := range e.observers {
		o.NodeFailed(id, err)
	}
}
