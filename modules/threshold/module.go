// Package threshold provides the luminance threshold node: image in,
// binary mask out. Mask samples are 1 where Rec.601 luminance reaches the
// threshold and 0 below it, flipped when invert is set.
package threshold

import (
	"context"
	"fmt"
	"image/color"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// Module registers the threshold node definition.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	min, max := 0.0, 255.0
	r.Register(&registry.Definition{
		Type:     "threshold",
		Category: "filter",
		Inputs: []registry.Port{
			{ID: "image", Type: value.TypeImage, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "mask", Type: value.TypeMask},
		},
		Params: []registry.Param{
			{ID: "threshold", Type: value.TypeNumber, Default: 128.0, Min: &min, Max: &max},
			{ID: "invert", Type: value.TypeBool, Default: false},
		},
		Run: run,
	})
}

func run(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, params map[string]any) (map[string]value.Value, error) {
	img, ok := inputs["image"].Image()
	if !ok {
		return nil, fmt.Errorf("threshold: input %q is not an image", "image")
	}
	img = img.Materialize(color.RGBA{})

	cut := registry.NumberParam(params, "threshold", 128)
	invert := registry.BoolParam(params, "invert", false)

	on, off := uint8(1), uint8(0)
	if invert {
		on, off = off, on
	}

	data := make([]uint8, img.W*img.H)
	for y := 0; y < img.H; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ec.Progress(float64(y) / float64(img.H))
		}
		for x := 0; x < img.W; x++ {
			i := img.Pix.PixOffset(x, y)
			luma := value.Luma(img.Pix.Pix[i], img.Pix.Pix[i+1], img.Pix.Pix[i+2])
			if float64(luma) >= cut {
				data[y*img.W+x] = on
			} else {
				data[y*img.W+x] = off
			}
		}
	}
	ec.Progress(1)

	return map[string]value.Value{
		"mask": value.MaskValue(value.NewMask(data, img.W, img.H)),
	}, nil
}
