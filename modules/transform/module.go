// Package transform provides the geometric transform node. It does not
// resample: the engine attaches the node's affine (built from its
// parameters) to the output as a pending transform, so chained
// translate/rotate/scale nodes stay lossless until a transform-unaware
// consumer forces a bake.
package transform

import (
	"context"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
	"github.com/vk/pixelgraph/internal/xform"
)

// Module registers the transform node definition.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "transform",
		Category: "geometry",
		Inputs: []registry.Port{
			{ID: "image", Type: value.TypeImage, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "image", Type: value.TypeImage},
		},
		Params: []registry.Param{
			{ID: "tx", Type: value.TypeNumber, Default: 0.0},
			{ID: "ty", Type: value.TypeNumber, Default: 0.0},
			{ID: "angle", Type: value.TypeNumber, Default: 0.0},
			{ID: "sx", Type: value.TypeNumber, Default: 1.0},
			{ID: "sy", Type: value.TypeNumber, Default: 1.0},
		},
		Run:               run,
		HasLocalTransform: true,
		LocalTransform:    localTransform,
		AcceptsDeferred:   true,
	})
}

// localTransform builds the node's affine from its parameters: scale,
// then rotate (angle in degrees), then translate.
func localTransform(params map[string]any) xform.Affine {
	tx := float32(registry.NumberParam(params, "tx", 0))
	ty := float32(registry.NumberParam(params, "ty", 0))
	angle := float32(registry.NumberParam(params, "angle", 0)) * math32.Pi / 180
	sx := float32(registry.NumberParam(params, "sx", 1))
	sy := float32(registry.NumberParam(params, "sy", 1))
	return xform.Translate(tx, ty).Mul(xform.Rotate(angle)).Mul(xform.Scale(sx, sy))
}

func run(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
	img, ok := inputs["image"].Image()
	if !ok {
		return nil, fmt.Errorf("transform: input %q is not an image", "image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ec.Progress(1)

	// Pixels pass through untouched; the engine composes this node's
	// affine onto the output after execution.
	return map[string]value.Value{
		"image": value.ImageValue(img),
	}, nil
}
