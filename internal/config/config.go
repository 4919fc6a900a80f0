// Package config loads checkd configuration.
//
// Precedence (highest to lowest): environment variables (CHECKD_ prefix),
// YAML config file, hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/checkd/internal/telemetry"
)

// Config is the top-level checkd configuration.
type Config struct {
	Logging   LoggingConfig        `koanf:"logging"`
	Rules     RulesConfig          `koanf:"rules"`
	Telemetry TelemetryConfig      `koanf:"telemetry"`
	History   HistoryConfig        `koanf:"history"`
	Chunking  ChunkingConfig       `koanf:"chunking"`
	Retrieval RetrievalConfig      `koanf:"retrieval"`
	Generator GeneratorConfig      `koanf:"generator"`
	Loop      LoopConfig           `koanf:"loop"`
	OTel      telemetry.OTelConfig `koanf:"otel"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RulesConfig locates the declarative rule store.
type RulesConfig struct {
	Path string `koanf:"path"`
}

// TelemetryConfig locates the violation log.
type TelemetryConfig struct {
	Path string `koanf:"path"`
}

// HistoryConfig locates the fix audit log.
type HistoryConfig struct {
	Path string `koanf:"path"`
}

// ChunkingConfig controls document splitting.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig controls the embedded vector store.
type RetrievalConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	EmbedURL   string `koanf:"embed_url"`
	EmbedModel string `koanf:"embed_model"`
	TopK       int    `koanf:"top_k"`
}

// GeneratorConfig controls the external text generator.
type GeneratorConfig struct {
	URL         string        `koanf:"url"`
	Model       string        `koanf:"model"`
	Timeout     time.Duration `koanf:"timeout"`
	Temperature float64       `koanf:"temperature"`
}

// LoopConfig bounds the correction retry loop.
type LoopConfig struct {
	MaxRetry           int `koanf:"max_retry"`
	MaxCorrectionBytes int `koanf:"max_correction_bytes"`
}

// Default returns configuration defaults rooted under dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Rules:     RulesConfig{Path: filepath.Join(dataDir, "rules", "rules.yaml")},
		Telemetry: TelemetryConfig{Path: filepath.Join(dataDir, "logs", "validation_errors.jsonl")},
		History:   HistoryConfig{Path: filepath.Join(dataDir, "logs", "fix_history.jsonl")},
		Chunking: ChunkingConfig{
			Size:    500,
			Overlap: 100,
		},
		Retrieval: RetrievalConfig{
			Path:       filepath.Join(dataDir, "vectorstore"),
			Collection: "checkd_docs",
			EmbedURL:   "http://127.0.0.1:11434/api",
			EmbedModel: "nomic-embed-text",
			TopK:       4,
		},
		Generator: GeneratorConfig{
			URL:     "http://127.0.0.1:11434",
			Model:   "qwen2.5-coder:7b-instruct",
			Timeout: 60 * time.Second,
		},
		Loop: LoopConfig{
			MaxRetry:           2,
			MaxCorrectionBytes: 4096,
		},
		OTel: telemetry.OTelConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".checkd"
	}
	return filepath.Join(home, ".config", "checkd")
}

// Load reads configuration from an optional YAML file, then applies
// CHECKD_-prefixed environment variables on top.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// CHECKD_GENERATOR_MODEL -> generator.model. The first underscore splits
	// section from field, later underscores stay in the field name.
	if err := k.Load(env.Provider("CHECKD_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "CHECKD_"))
		parts := strings.SplitN(key, "_", 2)
		if len(parts) == 1 {
			return key
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default(DefaultDataDir())
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap %d must be in [0, size) for size %d",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Loop.MaxRetry < 0 {
		return fmt.Errorf("loop.max_retry must be non-negative, got %d", c.Loop.MaxRetry)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator.timeout must be positive, got %s", c.Generator.Timeout)
	}
	if err := c.OTel.Validate(); err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	return nil
}
