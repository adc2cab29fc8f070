package backend

import (
	"fmt"

	"confsentry/internal/config"
)

// New builds the Generator named by the configuration. This is the only
// place that knows which concrete providers exist.
func New(cfg *config.Config) (Generator, error) {
	switch Provider(cfg.Provider) {
	case ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("backend: anthropic selected but no API key configured")
		}
		return NewAnthropicClient(cfg.Anthropic.APIKey, Options{
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
			Timeout: cfg.RequestTimeout(),
		}), nil
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("backend: openai selected but no API key configured")
		}
		return NewOpenAIClient(cfg.OpenAI.APIKey, Options{
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.RequestTimeout(),
		}), nil
	case ProviderOllama:
		return NewOllamaClient(Options{
			Model:   cfg.Ollama.Model,
			BaseURL: cfg.Ollama.URL,
			Timeout: cfg.RequestTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("backend: unsupported provider %q (supported: anthropic, openai, ollama)", cfg.Provider)
	}
}
