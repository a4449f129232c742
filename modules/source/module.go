// Package source provides the generator node: it emits a solid-color
// image at the requested (or canvas) dimensions. It is the entry point of
// most graphs and the standard test input.
package source

import (
	"context"
	"fmt"
	"image"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// Module registers the source node definition.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "source",
		Category: "generate",
		Outputs: []registry.Port{
			{ID: "image", Type: value.TypeImage},
		},
		Params: []registry.Param{
			{ID: "width", Type: value.TypeNumber, Default: 0.0},
			{ID: "height", Type: value.TypeNumber, Default: 0.0},
			{ID: "color", Type: value.TypeString, Default: "#000000ff"},
		},
		Run: run,
	})
}

func run(ctx context.Context, ec *registry.ExecContext, _ map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
	w := int(registry.NumberParam(params, "width", 0))
	h := int(registry.NumberParam(params, "height", 0))
	if w <= 0 {
		w = ec.CanvasW
	}
	if h <= 0 {
		h = ec.CanvasH
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("source: no usable dimensions (params %dx%d, canvas %dx%d)", w, h, ec.CanvasW, ec.CanvasH)
	}

	fill := ec.Background
	if s := registry.StringParam(params, "color", ""); s != "" {
		c, err := value.ParseHexColor(s)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		fill = c
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = fill.R
		img.Pix[i+1] = fill.G
		img.Pix[i+2] = fill.B
		img.Pix[i+3] = fill.A
	}
	ec.Progress(1)

	return map[string]value.Value{
		"image": value.ImageValue(value.NewImage(img)),
	}, nil
}
