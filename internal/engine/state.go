package engine

import (
	"time"
)

// Status is a node's execution state. Transitions are driven exclusively
// by the engine during execution.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusRunning
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// NodeState is the per-node runtime record surfaced to observers and the
// UI layer.
type NodeState struct {
	Status   Status
	Progress float64
	Err      string
	Duration time.Duration
}

// State returns a copy of a node's runtime state. The second result is
// false for unknown node ids.
func (e *Engine) State(nodeID string) (NodeState, bool) {
	st, ok := e.states[nodeID]
	if !ok {
		return NodeState{}, false
	}
	return *st, true
}
