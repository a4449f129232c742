// Package blur provides the gaussian blur node, backed by bild. Marked
// heavy-compute: callers should defer re-execution to the end of a
// parameter drag.
package blur

import (
	"context"
	"fmt"
	"image/color"

	bildblur "github.com/anthonynsimon/bild/blur"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// Module registers the blur node definition.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	min, max := 0.0, 100.0
	r.Register(&registry.Definition{
		Type:     "blur",
		Category: "filter",
		Inputs: []registry.Port{
			{ID: "image", Type: value.TypeImage, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "image", Type: value.TypeImage},
		},
		Params: []registry.Param{
			{ID: "radius", Type: value.TypeNumber, Default: 4.0, Min: &min, Max: &max},
		},
		Run:          run,
		HeavyCompute: true,
	})
}

func run(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
	img, ok := inputs["image"].Image()
	if !ok {
		return nil, fmt.Errorf("blur: input %q is not an image", "image")
	}
	img = img.Materialize(color.RGBA{})

	radius := registry.NumberParam(params, "radius", 4)
	if radius < 0 {
		return nil, fmt.Errorf("blur: radius must be non-negative, got %g", radius)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := img.Pix
	if radius > 0 {
		out = bildblur.Gaussian(img.Pix, radius)
	}
	ec.Progress(1)

	return map[string]value.Value{
		"image": value.ImageValue(value.NewImage(out)),
	}, nil
}
