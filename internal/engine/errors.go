package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/pixelgraph/internal/validate"
)

// Engine-level sentinel errors.
var (
	// ErrBusy is returned when a top-level execution is requested while
	// another is in flight. The engine is single-threaded by contract;
	// callers must not overlap Execute/ExecutePartial calls.
	ErrBusy = errors.New("engine: execution already in progress")
	// ErrDisposed is returned from every operation after Dispose.
	ErrDisposed = errors.New("engine: disposed")
)

// errSuperseded is the cancellation cause of a single-node run replaced
// by a newer request for the same engine. It keeps supersedure silent
// while caller-initiated cancellation still surfaces.
var errSuperseded = errors.New("superseded by a newer single-node run")

// ValidationError reports that a graph failed structural validation.
// Nothing was executed; the graph can be edited and resubmitted.
type ValidationError struct {
	Report *validate.Report
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Report.Errors))
	for _, iss := range e.Report.Errors {
		msgs = append(msgs, iss.String())
	}
	return fmt.Sprintf("graph validation failed: %s", strings.Join(msgs, "; "))
}

// NodeError wraps a failure raised by one node's execute function,
// carrying the node id for UI attribution.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
