// Package hclgraph loads graph documents written in HCL. It is a front
// end over the graph model: blocks describe nodes and edges, node
// parameters are plain HCL attributes converted from cty values, and
// file order defines node insertion order.
package hclgraph

import (
	"github.com/hashicorp/hcl/v2"
)

// paramsBlock captures the raw body of a node's params block for
// attribute-level decoding.
type paramsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// nodeBlock is a `node "<type>" "<id>"` block.
type nodeBlock struct {
	Type      string       `hcl:"node_type,label"`
	ID        string       `hcl:"id,label"`
	Params    *paramsBlock `hcl:"params,block"`
	Position  []float64    `hcl:"position,optional"`
	Collapsed bool         `hcl:"collapsed,optional"`
	Preview   bool         `hcl:"preview,optional"`
}

// edgeBlock is an `edge "<id>"` block with port addresses written as
// "node.port".
type edgeBlock struct {
	ID   string `hcl:"id,label"`
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// canvasBlock carries the output dimensions and background fill.
type canvasBlock struct {
	Width      int    `hcl:"width"`
	Height     int    `hcl:"height"`
	Background string `hcl:"background,optional"`
}

// graphBlock is the single top-level `graph "<name>"` block.
type graphBlock struct {
	Name   string       `hcl:"name,label"`
	ID     string       `hcl:"id,optional"`
	Canvas *canvasBlock `hcl:"canvas,block"`
	Nodes  []*nodeBlock `hcl:"node,block"`
	Edges  []*edgeBlock `hcl:"edge,block"`
}

// fileSchema is the root of a graph document.
type fileSchema struct {
	Graph *graphBlock `hcl:"graph,block"`
}
