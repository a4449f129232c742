package app

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything an App instance needs to run. Fields with yaml
// tags can also be supplied through an optional config file; flags win
// over file values.
type Config struct {
	GraphPath string `yaml:"graph_path"`
	OutputDir string `yaml:"output_dir"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	// DisableGPU forces the CPU path even when a GPU context is available.
	DisableGPU bool `yaml:"disable_gpu"`
	// TexturePoolSize bounds the GPU texture pool; 0 selects the default.
	TexturePoolSize int  `yaml:"texture_pool_size"`
	EnableMetrics   bool `yaml:"enable_metrics"`
}

// NewConfig validates a config assembled by the CLI layer.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" {
		return nil, errors.New("GraphPath is a required configuration field and cannot be empty")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	return &cfg, nil
}

// LoadConfigFile reads a YAML config file into cfg, leaving fields the
// file does not mention untouched.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}
