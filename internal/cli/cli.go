// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/pixelgraph/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("pixelgraph", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pixelgraph - node-graph image processing engine.

Usage:
  pixelgraph [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    Path to a graph document (.hcl or .json).

Options:
`)
		flagSet.PrintDefaults()
	}

	graphFlag := flagSet.String("graph", "", "Path to the graph document.")
	gFlag := flagSet.String("g", "", "Path to the graph document (shorthand).")
	outFlag := flagSet.String("out", ".", "Directory for rendered outputs.")
	configFlag := flagSet.String("config", "", "Optional YAML config file.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	noGPUFlag := flagSet.Bool("no-gpu", false, "Force the CPU execution path.")
	poolFlag := flagSet.Int("texture-pool", 0, "GPU texture pool capacity. 0 selects the default.")
	metricsFlag := flagSet.Bool("metrics", false, "Collect Prometheus execution metrics.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *graphFlag != "" {
		path = *graphFlag
	} else if *gFlag != "" {
		path = *gFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	cfg := app.Config{}
	if *configFlag != "" {
		if err := app.LoadConfigFile(*configFlag, &cfg); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
	}

	cfg.GraphPath = path
	cfg.OutputDir = *outFlag
	cfg.LogFormat = strings.ToLower(*logFormatFlag)
	cfg.LogLevel = strings.ToLower(*logLevelFlag)
	if *noGPUFlag {
		cfg.DisableGPU = true
	}
	if *poolFlag > 0 {
		cfg.TexturePoolSize = *poolFlag
	}
	if *metricsFlag {
		cfg.EnableMetrics = true
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return validated, false, nil
}
