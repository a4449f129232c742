// Package registry holds the catalog of node types: their declared ports,
// parameters, flags, and execute functions. The catalog is constructed
// explicitly at application startup and passed by reference to the
// validator and engine; there is no process-global instance.
package registry

import (
	"context"
	"image/color"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/vk/pixelgraph/internal/ctxlog"
	"github.com/vk/pixelgraph/internal/gpu"
	"github.com/vk/pixelgraph/internal/graph"
	"github.com/vk/pixelgraph/internal/value"
	"github.com/vk/pixelgraph/internal/xform"
)

// Port declares one input or output slot on a node type.
type Port struct {
	ID       string
	Type     value.DataType
	Required bool
	// Default is used when an input port has no incoming edge. Zero
	// Value means no default.
	Default value.Value
}

// Param declares one parameter: its value kind, default, and optional
// numeric constraints.
type Param struct {
	ID      string
	Type    value.DataType
	Default any
	Min     *float64
	Max     *float64
}

// ExecContext is handed to a node's execute function alongside its inputs
// and parameters.
type ExecContext struct {
	// Progress reports execution progress in [0,1]. May be called zero or
	// more times with non-decreasing values.
	Progress func(float64)
	// Scratch is a per-node key/value cache persisting across calls, for
	// nodes that memoize internal state.
	Scratch map[string]any
	// GPU is the texture context, or nil when acceleration is
	// unavailable; nodes with a CPU path must fall back.
	GPU *gpu.Context
	// Canvas dimensions and background fill from the graph settings.
	CanvasW, CanvasH int
	Background       color.RGBA
}

// RunFunc is the uniform node contract: gather outputs from inputs and
// parameters, honoring ctx for cancellation. Inputs and outputs are keyed
// by declared port ids.
type RunFunc func(ctx context.Context, ec *ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error)

// Definition is one immutable registry entry, loaded at startup.
type Definition struct {
	Type     string
	Category string
	Inputs   []Port
	Outputs  []Port
	Params   []Param
	Run      RunFunc

	// HeavyCompute marks nodes callers should not re-execute during a
	// continuous parameter drag, only on release.
	HeavyCompute bool
	// HasLocalTransform marks nodes whose outputs carry a composable
	// affine transform rather than baked pixels. LocalTransform builds
	// that transform from the node's parameters.
	HasLocalTransform bool
	LocalTransform    func(params map[string]any) xform.Affine
	// AcceptsDeferred marks nodes that understand inputs with pending
	// transforms; everything else gets materialized pixels.
	AcceptsDeferred bool
	// GPUPreview marks nodes whose texture outputs are downloaded to
	// plain pixels when the instance's preview parameter is set.
	GPUPreview bool
}

// Input returns the declared input port with the given id.
func (d *Definition) Input(id string) (Port, bool) {
	for _, p := range d.Inputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// Output returns the declared output port with the given id.
func (d *Definition) Output(id string) (Port, bool) {
	for _, p := range d.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// Module is implemented by packages contributing node definitions.
type Module interface {
	Register(r *Registry)
}

// Registry is the in-memory node-type catalog.
type Registry struct {
	defs map[string]*Definition
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register stores a definition keyed by its type id. Re-registering an
// existing type warns and overwrites.
func (r *Registry) Register(def *Definition) {
	if _, ok := r.defs[def.Type]; ok {
		slog.Default().Warn("Overwriting existing node definition.", "type", def.Type)
	}
	r.defs[def.Type] = def
}

// Install registers every definition the given modules contribute.
func (r *Registry) Install(mods ...Module) {
	for _, m := range mods {
		m.Register(r)
	}
}

// Get returns the definition for a type id.
func (r *Registry) Get(typeID string) (*Definition, bool) {
	def, ok := r.defs[typeID]
	return def, ok
}

// ByCategory returns all definitions in a category, sorted by type id.
func (r *Registry) ByCategory(category string) []*Definition {
	var out []*Definition
	for _, def := range r.defs {
		if def.Category == category {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Types returns all registered type ids, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CreateInstance builds a node instance of the given type with parameters
// defaulted from the definition. When id is empty a fresh unique id is
// generated. An unknown type logs a warning and returns (nil, false).
func (r *Registry) CreateInstance(ctx context.Context, typeID string, pos graph.Position, id string) (*graph.Node, bool) {
	def, ok := r.defs[typeID]
	if !ok {
		ctxlog.FromContext(ctx).Warn("Cannot instantiate unknown node type.", "type", typeID)
		return nil, false
	}
	if id == "" {
		id = uuid.NewString()
	}
	params := make(map[string]any, len(def.Params))
	for _, p := range def.Params {
		params[p.ID] = p.Default
	}
	return &graph.Node{
		ID:       id,
		Type:     typeID,
		Position: pos,
		Params:   params,
	}, true
}
