// Package config loads run configuration from an optional YAML file with
// environment-variable overrides. Defaults are filled in code so a config
// file is never required; secrets come from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	Provider string `yaml:"provider"`

	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Ollama    OllamaConfig   `yaml:"ollama"`

	// TimeoutSeconds bounds a single backend call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// MaxAttempts is the per-stage retry budget.
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffBaseMillis seeds the exponential backoff between attempts.
	BackoffBaseMillis int `yaml:"backoff_base_millis"`
	// MaxTokens caps the completion length per backend call.
	MaxTokens int `yaml:"max_tokens"`

	Cache  CacheConfig  `yaml:"cache"`
	Output OutputConfig `yaml:"output"`

	LogLevel string `yaml:"log_level"`
}

// ProviderConfig holds the settings for an API-key backed provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds local LLM settings.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// CacheConfig controls the criteria cache.
type CacheConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// OutputConfig controls where and how reports are written.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // json, html, or both
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Provider:          "anthropic",
		TimeoutSeconds:    120,
		MaxAttempts:       3,
		BackoffBaseMillis: 1000,
		MaxTokens:         4096,
		Cache: CacheConfig{
			Path: ".confsentry/criteria.db",
		},
		Output: OutputConfig{
			Dir:    "reports",
			Format: "json",
		},
		LogLevel: "info",
	}
}

// Load reads path (if it exists), then applies environment overrides.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env overrides.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values.
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	setStr(&c.Provider, "CONFSENTRY_PROVIDER")
	setStr(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setStr(&c.Anthropic.Model, "CONFSENTRY_ANTHROPIC_MODEL")
	setStr(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setStr(&c.OpenAI.Model, "CONFSENTRY_OPENAI_MODEL")
	setStr(&c.Ollama.URL, "OLLAMA_URL")
	setStr(&c.Ollama.Model, "CONFSENTRY_OLLAMA_MODEL")
	setStr(&c.Cache.Path, "CONFSENTRY_CACHE_PATH")
	setStr(&c.Output.Dir, "CONFSENTRY_OUTPUT_DIR")
	setStr(&c.LogLevel, "CONFSENTRY_LOG_LEVEL")
	setInt(&c.TimeoutSeconds, "CONFSENTRY_TIMEOUT_SECONDS")
	setInt(&c.MaxAttempts, "CONFSENTRY_MAX_ATTEMPTS")
	setInt(&c.MaxTokens, "CONFSENTRY_MAX_TOKENS")

	if v := os.Getenv("CONFSENTRY_CACHE_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Disabled = b
		}
	}
}

func (c *Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("config: timeout_seconds must be at least 1, got %d", c.TimeoutSeconds)
	}
	switch c.Output.Format {
	case "json", "html", "both":
	default:
		return fmt.Errorf("config: output format must be json, html or both, got %q", c.Output.Format)
	}
	return nil
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase returns the retry backoff seed as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMillis) * time.Millisecond
}
