// Package gputexture provides the texture bridge nodes: upload moves an
// image into the GPU context and hands downstream nodes a handle,
// download brings a handle's pixels back to host memory. The handles
// themselves are owned by whichever cache entry holds them; these nodes
// never release a texture they did not create.
package gputexture

import (
	"context"
	"fmt"

	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
)

// Module registers the upload and download node definitions.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "gpu.upload",
		Category: "gpu",
		Inputs: []registry.Port{
			{ID: "image", Type: value.TypeImage, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "texture", Type: value.TypeTexture},
		},
		Params: []registry.Param{
			{ID: "preview", Type: value.TypeBool, Default: false},
		},
		Run:        runUpload,
		GPUPreview: true,
	})
	r.Register(&registry.Definition{
		Type:     "gpu.download",
		Category: "gpu",
		Inputs: []registry.Port{
			{ID: "texture", Type: value.TypeTexture, Required: true},
		},
		Outputs: []registry.Port{
			{ID: "image", Type: value.TypeImage},
		},
		Run: runDownload,
	})
}

func runUpload(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
	img, ok := inputs["image"].Image()
	if !ok {
		return nil, fmt.Errorf("gpu.upload: input %q is not an image", "image")
	}
	if ec.GPU == nil {
		// No CPU rendition of a texture handle exists; this is a node
		// execution error, not a silent degradation.
		return nil, fmt.Errorf("gpu.upload: no GPU context available")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := ec.GPU.CreateTexture(img.Pix)
	if err != nil {
		return nil, fmt.Errorf("gpu.upload: %w", err)
	}
	ec.Progress(1)

	return map[string]value.Value{
		"texture": value.TextureValue(&value.Texture{ID: id, W: img.W, H: img.H}),
	}, nil
}

func runDownload(ctx context.Context, ec *registry.ExecContext, inputs map[string]value.Value, _ map[string]any) (map[string]value.Value, error) {
	tex, ok := inputs["texture"].Texture()
	if !ok {
		return nil, fmt.Errorf("gpu.download: input %q is not a texture", "texture")
	}
	if ec.GPU == nil {
		return nil, fmt.Errorf("gpu.download: no GPU context available")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pix, err := ec.GPU.Download(tex.ID)
	if err != nil {
		return nil, fmt.Errorf("gpu.download: %w", err)
	}
	ec.Progress(1)

	return map[string]value.Value{
		"image": value.ImageValue(value.NewImage(pix)),
	}, nil
}
