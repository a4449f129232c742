// Package modules aggregates the builtin node packages.
package modules

import (
	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/modules/blur"
	"github.com/vk/pixelgraph/modules/composite"
	"github.com/vk/pixelgraph/modules/gputexture"
	"github.com/vk/pixelgraph/modules/levels"
	"github.com/vk/pixelgraph/modules/source"
	"github.com/vk/pixelgraph/modules/threshold"
	"github.com/vk/pixelgraph/modules/transform"
)

// All returns every builtin module, for registry installation at startup.
func All() []registry.Module {
	return []registry.Module{
		source.Module{},
		threshold.Module{},
		blur.Module{},
		transform.Module{},
		composite.Module{},
		levels.Module{},
		gputexture.Module{},
	}
}
