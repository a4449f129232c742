// Package app is the composition root: it wires the logger, node
// registry, GPU context, metrics, and engine together, loads a graph
// document, executes it, and writes terminal node outputs to disk.
package app

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/pixelgraph/internal/ctxlog"
	"github.com/vk/pixelgraph/internal/engine"
	"github.com/vk/pixelgraph/internal/gpu"
	"github.com/vk/pixelgraph/internal/graph"
	"github.com/vk/pixelgraph/internal/hclgraph"
	"github.com/vk/pixelgraph/internal/metrics"
	"github.com/vk/pixelgraph/internal/registry"
	"github.com/vk/pixelgraph/internal/value"
	"github.com/vk/pixelgraph/modules"
)

// App bundles the wired components for one run.
type App struct {
	cfg *Config
}

// NewApp creates an App for the given config.
func NewApp(cfg *Config) *App {
	return &App{cfg: cfg}
}

// Run executes the configured graph end to end.
func (a *App) Run(ctx context.Context, outW io.Writer) error {
	logger := newLogger(a.cfg.LogLevel, a.cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)

	reg := registry.New()
	reg.Install(modules.All()...)
	if err := reg.Validate(ctx); err != nil {
		return err
	}

	var gpuCtx *gpu.Context
	if a.cfg.DisableGPU {
		logger.Info("GPU disabled by configuration; using the CPU path.")
	} else {
		gpuCtx = gpu.Detect(ctx, a.cfg.TexturePoolSize)
	}

	var collector *metrics.Collector
	if a.cfg.EnableMetrics {
		collector = metrics.New()
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if gpuCtx != nil {
		opts = append(opts, engine.WithGPU(gpuCtx))
	}
	if collector != nil {
		opts = append(opts, engine.WithMetrics(collector))
	}
	eng := engine.New(reg, opts...)
	defer eng.Dispose()

	g, err := loadGraph(a.cfg.GraphPath)
	if err != nil {
		return err
	}
	logger.Info("Graph loaded.", "name", g.Name, "nodes", len(g.Nodes), "edges", len(g.Edges))

	if err := eng.UpdateGraph(g); err != nil {
		return err
	}
	if err := eng.Execute(ctx); err != nil {
		return err
	}

	return a.writeOutputs(ctx, eng, g)
}

// loadGraph picks the front end by file extension: .hcl for the HCL
// format, anything else is treated as the JSON interchange shape.
func loadGraph(path string) (*graph.Graph, error) {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		return hclgraph.Load(path)
	}
	return graph.LoadJSON(path)
}

// writeOutputs saves every image or mask output of the graph's terminal
// nodes (nodes with no outgoing edges) as PNG files.
func (a *App) writeOutputs(ctx context.Context, eng *engine.Engine, g *graph.Graph) error {
	logger := ctxlog.FromContext(ctx)
	if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	bg, _ := value.ParseHexColor(g.Canvas.Background)
	for _, id := range g.Order() {
		if len(g.EdgesFrom(id)) > 0 {
			continue
		}
		outputs := eng.CachedOutputs(id)
		for port, v := range outputs {
			var img *image.RGBA
			switch v.Kind() {
			case value.KindImage:
				im, _ := v.Image()
				img = im.Materialize(bg).Pix
			case value.KindMask:
				m, _ := v.Mask()
				m = m.Materialize()
				img = image.NewRGBA(image.Rect(0, 0, m.W, m.H))
				for i, gray := range m.Data {
					img.Pix[i*4+0] = gray
					img.Pix[i*4+1] = gray
					img.Pix[i*4+2] = gray
					img.Pix[i*4+3] = 0xff
				}
			default:
				continue
			}

			name := fmt.Sprintf("%s_%s.png", id, port)
			path := filepath.Join(a.cfg.OutputDir, name)
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			if err := png.Encode(f, img); err != nil {
				f.Close()
				return fmt.Errorf("encoding %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("Output written.", "path", path)
		}
	}
	return nil
}
