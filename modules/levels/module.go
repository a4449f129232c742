// Package levels provides the tonal adjustment node: brightness and
// gamma remapping backed by bild's adjust package.
package levels

import (
	"context"
	"fmt"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// Module registers the levels node definition.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	bMin, bMax := -1.0, 1.0
	gMin := 0.01
	r.Register(&registry.Definition{
		Type:     "levels",
		Category: "adjust",
		Inputs: []registry.Port{
			{ID: "image", Type: value.TypeImage, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "image", Type: value.TypeImage},
		},
		Params: []registry.Param{
			{ID: "brightness", Type: value.TypeNumber, Default: 0.0, Min: &bMin, Max: &bMax},
			{ID: "gamma", Type: value.TypeNumber, Default: 1.0, Min: &gMin},
		},
		Run: run,
	})
}

func run(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
	img, ok := inputs["image"].Image()
	if !ok {
		return nil, fmt.Errorf("levels: input %q is not an image", "image")
	}
	img = img.Materialize(color.RGBA{})

	brightness := registry.NumberParam(params, "brightness", 0)
	gamma := registry.NumberParam(params, "gamma", 1)
	if gamma <= 0 {
		return nil, fmt.Errorf("levels: gamma must be positive, got %g", gamma)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := img.Pix
	if brightness != 0 {
		out = adjust.Brightness(out, brightness)
	}
	ec.Progress(0.5)
	if gamma != 1 {
		out = adjust.Gamma(out, gamma)
	}
	ec.Progress(1)

	return map[string]value.Value{
		"image": value.ImageValue(value.NewImage(out)),
	}, nil
}
