// Package composite provides the source-over composite node: overlay
// drawn onto base with an opacity factor. It requires materialized
// pixels, so it is a bake point for any pending upstream transforms.
package composite

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// Module registers the composite node definition.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	min, max := 0.0, 1.0
	r.Register(&registry.Definition{
		Type:     "composite",
		Category: "combine",
		Inputs: []registry.Port{
			{ID: "base", Type: value.TypeImage, Required: true},
			{ID: "overlay", Type: value.TypeImage, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "image", Type: value.TypeImage},
		},
		Params: []registry.Param{
			{ID: "opacity", Type: value.TypeNumber, Default: 1.0, Min: &min, Max: &max},
		},
		Run: run,
	})
}

func run(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
	base, ok := inputs["base"].Image()
	if !ok {
		return nil, fmt.Errorf("composite: input %q is not an image", "base")
	}
	overlay, ok := inputs["overlay"].Image()
	if !ok {
		return nil, fmt.Errorf("composite: input %q is not an image", "overlay")
	}

	opacity := registry.NumberParam(params, "opacity", 1)
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := image.NewRGBA(image.Rect(0, 0, base.W, base.H))
	copy(out.Pix, base.Pix.Pix)
	ec.Progress(0.5)

	alpha := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(out, out.Bounds(), overlay.Pix, image.Point{}, alpha, image.Point{}, draw.Over)
	ec.Progress(1)

	return map[string]value.Value{
		"image": value.ImageValue(value.NewImage(out)),
	}, nil
}
