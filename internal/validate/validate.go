// Package validate checks a graph's structural correctness before
// execution: every edge must reference real nodes and declared ports,
// required inputs must be satisfiable, and the dependency structure must
// be acyclic. Validation is a pure read of the graph.
package validate

import (
	"fmt"
	"sort"

	"github.com/vk/pixelgraph/internal/graph"
	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/toposort"
	"github.com/vk/pixelgraph/internal/value"
)

// Issue is one finding, attributed to a node (and optionally a port) for
// UI blame.
type Issue struct {
	NodeID  string
	PortID  string
	Message string
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return i.Message
	}
	if i.PortID == "" {
		return fmt.Sprintf("%s: %s", i.NodeID, i.Message)
	}
	return fmt.Sprintf("%s.%s: %s", i.NodeID, i.PortID, i.Message)
}

// Report is the validation outcome. Valid is false iff Errors is
// non-empty; warnings never block execution.
type Report struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

func (r *Report) errorf(nodeID, portID, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{NodeID: nodeID, PortID: portID, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) warnf(nodeID, portID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{NodeID: nodeID, PortID: portID, Message: fmt.Sprintf(format, args...)})
}

// Check validates the graph against the registry's declarations.
func Check(g *graph.Graph, reg *registry.Registry) *Report {
	rep := &Report{}

	for _, id := range g.Order() {
		n := g.Nodes[id]
		def, ok := reg.Get(n.Type)
		if !ok {
			rep.errorf(id, "", "unknown node type %q", n.Type)
			continue
		}
		for _, p := range def.Inputs {
			edge := g.EdgeInto(id, p.ID)
			if edge != nil {
				continue
			}
			if p.Required && p.Default.IsZero() {
				rep.errorf(id, p.ID, "required input %q has no incoming edge and no default", p.ID)
			} else if !p.Required && !p.Default.IsZero() {
				rep.warnf(id, p.ID, "input %q unconnected; default applies", p.ID)
			}
		}
	}

	seenTarget := make(map[string]string)
	for _, eid := range sortedEdgeIDs(g) {
		e := g.Edges[eid]
		srcNode, ok := g.Nodes[e.SourceNode]
		if !ok {
			rep.errorf(e.SourceNode, e.SourcePort, "edge %q references missing source node %q", eid, e.SourceNode)
			continue
		}
		tgtNode, ok := g.Nodes[e.TargetNode]
		if !ok {
			rep.errorf(e.TargetNode, e.TargetPort, "edge %q references missing target node %q", eid, e.TargetNode)
			continue
		}

		key := e.TargetNode + "." + e.TargetPort
		if prev, dup := seenTarget[key]; dup {
			rep.errorf(e.TargetNode, e.TargetPort, "port has multiple incoming edges (%q and %q)", prev, eid)
		}
		seenTarget[key] = eid

		srcDef, srcOK := reg.Get(srcNode.Type)
		tgtDef, tgtOK := reg.Get(tgtNode.Type)
		if !srcOK || !tgtOK {
			// Unknown types already reported per node.
			continue
		}
		srcPort, ok := srcDef.Output(e.SourcePort)
		if !ok {
			rep.errorf(e.SourceNode, e.SourcePort, "edge %q references undeclared output port %q on type %q", eid, e.SourcePort, srcNode.Type)
			continue
		}
		tgtPort, ok := tgtDef.Input(e.TargetPort)
		if !ok {
			rep.errorf(e.TargetNode, e.TargetPort, "edge %q references undeclared input port %q on type %q", eid, e.TargetPort, tgtNode.Type)
			continue
		}

		if srcPort.Type != tgtPort.Type && srcPort.Type != value.TypeAny && tgtPort.Type != value.TypeAny {
			if value.CanCoerce(srcPort.Type, tgtPort.Type) {
				rep.warnf(e.TargetNode, e.TargetPort, "edge %q coerces %s to %s", eid, srcPort.Type, tgtPort.Type)
			} else {
				rep.warnf(e.TargetNode, e.TargetPort, "edge %q connects %s to %s with no defined coercion", eid, srcPort.Type, tgtPort.Type)
			}
		}
	}

	if _, hasCycle := toposort.Sort(g); hasCycle {
		rep.errorf("", "", "graph contains a dependency cycle")
	}

	rep.Valid = len(rep.Errors) == 0
	return rep
}

func sortedEdgeIDs(g *graph.Graph) []string {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
