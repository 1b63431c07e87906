// Package config holds the process-wide configuration object. It is built
// once at startup and passed explicitly into every component; nothing in the
// repository reads model settings from globals.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ModelConfig describes one entry in the model registry. ModelID uses the
// llm package's "provider:model-name" form.
type ModelConfig struct {
	ModelID     string  `json:"model_id"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// DocIntelConfig holds the document-extraction service connection settings.
type DocIntelConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// Config is the root configuration for the taskrouter process.
type Config struct {
	// Models maps a handler's model key to its registry entry. A handler
	// whose model key is absent here is treated as not installed.
	Models map[string]ModelConfig `json:"models"`

	// DefaultModel is the model key used for internal calls that are not
	// tied to a specific handler (document summarization).
	DefaultModel string `json:"default_model,omitempty"`

	DocIntel DocIntelConfig `json:"doc_intel,omitempty"`

	// StorePath is the sqlite handler-store location. Empty means in-memory.
	StorePath string `json:"store_path,omitempty"`

	// Listen is the HTTP API bind address for `taskrouter serve`.
	Listen string `json:"listen,omitempty"`
}

// Default returns a Config with the stock model registry. The single
// gpt-4.1-mini entry matches the deployment the handler store ships with.
func Default() *Config {
	return &Config{
		Models: map[string]ModelConfig{
			"gpt-4.1-mini": {
				ModelID:     "azure:gpt-4.1-mini",
				MaxTokens:   1000,
				Temperature: 0.4,
			},
		},
		DefaultModel: "gpt-4.1-mini",
		Listen:       ":8080",
	}
}

// Load reads a JSON config file, layers it over Default, and applies
// environment overrides. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays credential-bearing settings from the environment so that
// secrets never need to live in the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AZURE_DI_ENDPOINT"); v != "" {
		cfg.DocIntel.Endpoint = v
	}
	if v := os.Getenv("AZURE_DI_KEY"); v != "" {
		cfg.DocIntel.APIKey = v
	}
	if v := os.Getenv("TASKROUTER_STORE"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("TASKROUTER_LISTEN"); v != "" {
		cfg.Listen = v
	}
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("config: model registry is empty")
	}
	if c.DefaultModel != "" {
		if _, ok := c.Models[c.DefaultModel]; !ok {
			return fmt.Errorf("config: default_model %q not present in model registry", c.DefaultModel)
		}
	}
	return nil
}

// Resolve looks up a model key in the registry.
func (c *Config) Resolve(modelKey string) (ModelConfig, bool) {
	m, ok := c.Models[modelKey]
	return m, ok
}
