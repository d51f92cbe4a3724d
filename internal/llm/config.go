package llm

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes one caller-facing model and where its generation
// actually runs.
type ModelConfig struct {
	Name          string `yaml:"name" json:"name"`
	UpstreamURL   string `yaml:"upstream_url" json:"-"`
	UpstreamModel string `yaml:"upstream_model" json:"-"`

	// Per-model timeout overrides. Zero means the server-wide defaults from
	// shared constants apply.
	FirstTokenTimeout time.Duration `yaml:"first_token_timeout" json:"-"`
	StreamTimeout     time.Duration `yaml:"stream_timeout" json:"-"`
}

type Config struct {
	DefaultModel string        `yaml:"default_model"`
	Models       []ModelConfig `yaml:"models"`
}

// LoadConfig reads the model registry file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing model config %s: %w", path, err)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("model config %s declares no models", path)
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = cfg.Models[0].Name
	}
	names := map[string]bool{}
	for _, m := range cfg.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("model config %s: model with empty name", path)
		}
		if names[m.Name] {
			return nil, fmt.Errorf("model config %s: duplicate model %q", path, m.Name)
		}
		names[m.Name] = true
	}
	if !names[cfg.DefaultModel] {
		return nil, fmt.Errorf("model config %s: default model %q not declared", path, cfg.DefaultModel)
	}
	return &cfg, nil
}
