// Package generate defines the external text-generation collaborator. The
// core treats it as an opaque, slow, fallible generate(prompt) -> text call.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// ErrInvalidConfig indicates invalid generator configuration.
var ErrInvalidConfig = errors.New("invalid generator configuration")

// Generator produces text for a prompt. Implementations must honor context
// cancellation; any non-success is treated by callers as an attempt that
// produced no usable text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// OllamaConfig configures the Ollama-backed generator.
type OllamaConfig struct {
	// URL is the Ollama server base URL (default: http://127.0.0.1:11434).
	URL string

	// Model is the model name (default: qwen2.5-coder:7b-instruct).
	Model string

	// Timeout bounds a single generation call (default: 60s).
	Timeout time.Duration

	// Temperature controls sampling (default 0: deterministic-ish output).
	Temperature float64
}

// ApplyDefaults sets default values for unset fields.
func (c *OllamaConfig) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "http://127.0.0.1:11434"
	}
	if c.Model == "" {
		c.Model = "qwen2.5-coder:7b-instruct"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Ollama generates text via a local Ollama server using langchaingo.
type Ollama struct {
	llm    *ollama.LLM
	config OllamaConfig
}

// NewOllama creates an Ollama generator.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	cfg.ApplyDefaults()

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.URL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Ollama{llm: llm, config: cfg}, nil
}

// Generate runs one completion with the configured timeout.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt,
		llms.WithTemperature(o.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return out, nil
}
