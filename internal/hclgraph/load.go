package hclgraph

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pixelgraph/internal/graph"
)

// Load reads and decodes a graph document from disk.
func Load(path string) (*graph.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hclgraph: reading %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes a graph document from source. filename is used in
// diagnostics only.
func Parse(src []byte, filename string) (*graph.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclgraph: %w", diags)
	}

	var doc fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, fmt.Errorf("hclgraph: %w", diags)
	}
	if doc.Graph == nil {
		return nil, fmt.Errorf("hclgraph: %s: missing graph block", filename)
	}

	gb := doc.Graph
	id := gb.ID
	if id == "" {
		id = uuid.NewString()
	}
	g := graph.New(id, gb.Name)
	if gb.Canvas != nil {
		g.Canvas = graph.Canvas{
			Width:      gb.Canvas.Width,
			Height:     gb.Canvas.Height,
			Background: gb.Canvas.Background,
		}
	}

	for _, nb := range gb.Nodes {
		params, err := decodeParams(nb.Params)
		if err != nil {
			return nil, fmt.Errorf("hclgraph: node %q: %w", nb.ID, err)
		}
		n := &graph.Node{
			ID:        nb.ID,
			Type:      nb.Type,
			Params:    params,
			Collapsed: nb.Collapsed,
			Preview:   nb.Preview,
		}
		if len(nb.Position) == 2 {
			n.Position = graph.Position{X: nb.Position[0], Y: nb.Position[1]}
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("hclgraph: %w", err)
		}
	}

	for _, eb := range gb.Edges {
		srcNode, srcPort, err := splitAddress(eb.From)
		if err != nil {
			return nil, fmt.Errorf("hclgraph: edge %q: from: %w", eb.ID, err)
		}
		tgtNode, tgtPort, err := splitAddress(eb.To)
		if err != nil {
			return nil, fmt.Errorf("hclgraph: edge %q: to: %w", eb.ID, err)
		}
		e := &graph.Edge{
			ID:         eb.ID,
			SourceNode: srcNode,
			SourcePort: srcPort,
			TargetNode: tgtNode,
			TargetPort: tgtPort,
		}
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("hclgraph: %w", err)
		}
	}

	return g, nil
}

// splitAddress parses a "node.port" port address.
func splitAddress(addr string) (node, port string, err error) {
	node, port, ok := strings.Cut(addr, ".")
	if !ok || node == "" || port == "" {
		return "", "", fmt.Errorf("invalid port address %q, want \"node.port\"", addr)
	}
	return node, port, nil
}

// decodeParams converts the attributes of a params block into Go values.
func decodeParams(pb *paramsBlock) (map[string]any, error) {
	if pb == nil {
		return nil, nil
	}
	attrs, diags := pb.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	params := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		converted, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		params[name] = converted
	}
	return params, nil
}

// ctyToGo converts a cty.Value into the plain Go representation parameter
// maps carry: float64, bool, string, []any, map[string]any.
func ctyToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			conv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			conv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
