// Package backend provides the text-completion capability the pipeline
// consumes. Every provider is reduced to one operation: a prompt in, raw
// text out. Provider selection happens once at run configuration time;
// nothing downstream inspects which provider is behind the interface.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Generator is the single capability the pipeline needs from an AI
// backend.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Sentinel errors for the two backend failure modes the pipeline
// distinguishes. Both are retryable at the stage level.
var (
	ErrTimeout     = errors.New("backend: request timed out")
	ErrUnavailable = errors.New("backend: service unavailable")
)

// Provider names a concrete backend implementation.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// classifyTransportErr maps HTTP transport failures onto the backend error
// taxonomy. Context deadline and net timeouts become ErrTimeout; anything
// else a connection-level failure becomes ErrUnavailable.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// statusErr maps non-2xx responses. 408/504 are timeouts as far as the
// retry policy cares; 429 and 5xx are temporary outages; anything else is
// a hard request error surfaced as-is.
func statusErr(provider Provider, status int, body string) error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	switch {
	case status == 408 || status == 504:
		return fmt.Errorf("%w: %s returned %d: %s", ErrTimeout, provider, status, body)
	case status == 429 || status >= 500:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, provider, status, body)
	default:
		return fmt.Errorf("backend: %s request failed with status %d: %s", provider, status, body)
	}
}

// Options carries the knobs shared by every client.
type Options struct {
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
}

func (o *Options) fill(defaultModel, defaultBaseURL string) {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.Temperature == 0 {
		// Low temperature for structured output.
		o.Temperature = 0.1
	}
}
