// Package graph holds the declarative node/edge data model the engine
// executes. The engine treats a Graph as an immutable snapshot per pass;
// only the owning editor session mutates it, and a new snapshot is handed
// over via the engine's UpdateGraph.
package graph

import (
	"fmt"
	"sort"
)

// Position is a node's 2D canvas position. Display-only; the engine never
// reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one node instance: a typed unit of computation plus its
// parameter values.
type Node struct {
	ID       string         `json:"id" validate:"required"`
	Type     string         `json:"type" validate:"required"`
	Position Position       `json:"position"`
	Params   map[string]any `json:"params,omitempty"`
	// Display-only flags, passed through unexamined.
	Collapsed bool `json:"collapsed,omitempty"`
	Preview   bool `json:"preview,omitempty"`
}

// Edge connects one node's output port to another node's input port.
// Each target port accepts at most one incoming edge.
type Edge struct {
	ID         string `json:"id" validate:"required"`
	SourceNode string `json:"sourceNode" validate:"required"`
	SourcePort string `json:"sourcePort" validate:"required"`
	TargetNode string `json:"targetNode" validate:"required"`
	TargetPort string `json:"targetPort" validate:"required"`
}

// Canvas holds the output dimensions and default fill color.
type Canvas struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Background string `json:"background,omitempty"`
}

// Graph is the full editable document: nodes and edges keyed by id, plus
// canvas settings.
type Graph struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Nodes  map[string]*Node `json:"nodes" validate:"dive"`
	Edges  map[string]*Edge `json:"edges" validate:"dive"`
	Canvas Canvas           `json:"canvas"`

	// nodeOrder preserves insertion order so execution order is
	// reproducible when nodes have no dependency constraint between them.
	nodeOrder []string
}

// New creates an empty graph.
func New(id, name string) *Graph {
	return &Graph{
		ID:    id,
		Name:  name,
		Nodes: make(map[string]*Node),
		Edges: make(map[string]*Edge),
	}
}

// AddNode inserts a node, recording insertion order. Duplicate ids error.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("graph: node must have an id")
	}
	if _, ok := g.Nodes[n.ID]; ok {
		return fmt.Errorf("graph: duplicate node id %q", n.ID)
	}
	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}
	g.Nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
	return nil
}

// AddEdge inserts an edge. Both endpoints must already be in the graph,
// and the target port must not already have an incoming edge.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("graph: edge must have an id")
	}
	if _, ok := g.Edges[e.ID]; ok {
		return fmt.Errorf("graph: duplicate edge id %q", e.ID)
	}
	if _, ok := g.Nodes[e.SourceNode]; !ok {
		return fmt.Errorf("graph: edge %q: source node %q not found", e.ID, e.SourceNode)
	}
	if _, ok := g.Nodes[e.TargetNode]; !ok {
		return fmt.Errorf("graph: edge %q: target node %q not found", e.ID, e.TargetNode)
	}
	if prev := g.EdgeInto(e.TargetNode, e.TargetPort); prev != nil {
		return fmt.Errorf("graph: edge %q: port %s.%s already has incoming edge %q",
			e.ID, e.TargetNode, e.TargetPort, prev.ID)
	}
	if g.Edges == nil {
		g.Edges = make(map[string]*Edge)
	}
	g.Edges[e.ID] = e
	return nil
}

// EdgeInto returns the unique edge targeting the given port, or nil.
func (g *Graph) EdgeInto(nodeID, portID string) *Edge {
	for _, id := range g.edgeOrder() {
		e := g.Edges[id]
		if e.TargetNode == nodeID && e.TargetPort == portID {
			return e
		}
	}
	return nil
}

// EdgesFrom returns every edge whose source is the given node, in a
// deterministic order.
func (g *Graph) EdgesFrom(nodeID string) []*Edge {
	var out []*Edge
	for _, id := range g.edgeOrder() {
		if e := g.Edges[id]; e.SourceNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesInto returns every edge whose target is the given node, in a
// deterministic order.
func (g *Graph) EdgesInto(nodeID string) []*Edge {
	var out []*Edge
	for _, id := range g.edgeOrder() {
		if e := g.Edges[id]; e.TargetNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Order returns node ids in insertion order. Nodes present in the map but
// missing from the recorded order (graphs assembled by hand or decoded
// from JSON) are appended sorted by id, keeping the result deterministic.
func (g *Graph) Order() []string {
	out := make([]string, 0, len(g.Nodes))
	seen := make(map[string]bool, len(g.Nodes))
	for _, id := range g.nodeOrder {
		if _, ok := g.Nodes[id]; ok && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range g.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// edgeOrder returns edge ids sorted for deterministic iteration.
func (g *Graph) edgeOrder() []string {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a snapshot copy of the graph structure. Node parameter
// maps are copied shallowly; pixel buffers referenced from parameters are
// shared because the engine never mutates input buffers.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		ID:        g.ID,
		Name:      g.Name,
		Nodes:     make(map[string]*Node, len(g.Nodes)),
		Edges:     make(map[string]*Edge, len(g.Edges)),
		Canvas:    g.Canvas,
		nodeOrder: append([]string(nil), g.nodeOrder...),
	}
	for id, n := range g.Nodes {
		cp := *n
		if n.Params != nil {
			cp.Params = make(map[string]any, len(n.Params))
			for k, v := range n.Params {
				cp.Params[k] = v
			}
		}
		out.Nodes[id] = &cp
	}
	for id, e := range g.Edges {
		cp := *e
		out.Edges[id] = &cp
	}
	return out
}
