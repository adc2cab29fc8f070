package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaClient implements Generator against a local Ollama server. Useful
// for air-gapped assessment of configurations that must not leave the
// network.
type OllamaClient struct {
	baseURL    string
	model      string
	temp       float64
	httpClient *http.Client
}

// NewOllamaClient creates a client. Zero-valued Options fields fall back
// to defaults.
func NewOllamaClient(opts Options) *OllamaClient {
	opts.fill("llama3.1:latest", "http://localhost:11434")
	return &OllamaClient{
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		temp:       opts.Temperature,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate sends the prompt and returns the text completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: c.temp,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusErr(ProviderOllama, resp.StatusCode, string(respBody))
	}

	var out ollamaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("backend: parse ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("backend: ollama error: %s", out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}
