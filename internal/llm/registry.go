package llm

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry resolves caller-facing model names to a backend generator and the
// model's configuration. Models with the "lorem-" prefix are served by the
// in-process mock backend and only exist when debug is enabled.
type Registry struct {
	log          *zap.SugaredLogger
	defaultModel string
	models       map[string]ModelConfig
	order        []string
	debug        bool

	httpGen  *HTTPGenerator
	loremGen *LoremGenerator
	mu       sync.Mutex
}

func NewRegistry(cfg *Config, log *zap.SugaredLogger, debug bool) *Registry {
	models := make(map[string]ModelConfig, len(cfg.Models))
	order := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m.Name] = m
		order = append(order, m.Name)
	}
	return &Registry{
		log:          log,
		defaultModel: cfg.DefaultModel,
		models:       models,
		order:        order,
		debug:        debug,
		httpGen:      NewHTTPGenerator(log),
	}
}

// DefaultModel is the model used when the request does not name one.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Resolve maps name to a generator and the resolved model config. An empty
// name resolves to the default model.
func (r *Registry) Resolve(name string) (Generator, ModelConfig, error) {
	if name == "" {
		name = r.defaultModel
	}

	if r.debug && strings.HasPrefix(name, "lorem-") {
		r.mu.Lock()
		if r.loremGen == nil {
			r.loremGen = NewLoremGenerator()
		}
		gen := r.loremGen
		r.mu.Unlock()
		return gen, ModelConfig{Name: name, UpstreamModel: name}, nil
	}

	cfg, ok := r.models[name]
	if !ok {
		return nil, ModelConfig{}, ErrModelNotFound
	}
	return r.httpGen, cfg, nil
}

// List returns the declared models in configuration order.
func (r *Registry) List() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}
