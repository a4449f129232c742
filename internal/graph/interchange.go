package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// document is the serialized interchange shape. It mirrors Graph plus the
// node-order list, which keeps execution tie-breaks stable across a
// save/load round trip.
type document struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Nodes     map[string]*Node `json:"nodes" validate:"dive"`
	Edges     map[string]*Edge `json:"edges" validate:"dive"`
	Canvas    Canvas           `json:"canvas"`
	NodeOrder []string         `json:"nodeOrder,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON parses and structurally validates an interchange document.
func DecodeJSON(data []byte) (*Graph, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: decoding json: %w", err)
	}
	// Map keys double as ids; backfill before structural validation so a
	// document may omit the redundant id field.
	for id, n := range doc.Nodes {
		if n.ID == "" {
			n.ID = id
		} else if n.ID != id {
			return nil, fmt.Errorf("graph: node keyed %q declares id %q", id, n.ID)
		}
	}
	for id, e := range doc.Edges {
		if e.ID == "" {
			e.ID = id
		} else if e.ID != id {
			return nil, fmt.Errorf("graph: edge keyed %q declares id %q", id, e.ID)
		}
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("graph: invalid document: %w", err)
	}
	g := &Graph{
		ID:        doc.ID,
		Name:      doc.Name,
		Nodes:     doc.Nodes,
		Edges:     doc.Edges,
		Canvas:    doc.Canvas,
		nodeOrder: doc.NodeOrder,
	}
	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}
	if g.Edges == nil {
		g.Edges = make(map[string]*Edge)
	}
	return g, nil
}

// EncodeJSON serializes the graph to the interchange shape.
func (g *Graph) EncodeJSON() ([]byte, error) {
	doc := document{
		ID:        g.ID,
		Name:      g.Name,
		Nodes:     g.Nodes,
		Edges:     g.Edges,
		Canvas:    g.Canvas,
		NodeOrder: g.Order(),
	}
	return json.MarshalIndent(&doc, "", "  ")
}

// LoadJSON reads an interchange document from disk.
func LoadJSON(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: reading %s: %w", path, err)
	}
	return DecodeJSON(data)
}

// SaveJSON writes the graph to disk in the interchange shape.
func (g *Graph) SaveJSON(path string) error {
	data, err := g.EncodeJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
