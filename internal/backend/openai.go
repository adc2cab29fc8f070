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

// OpenAIClient implements Generator against the OpenAI chat completions
// API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	temp       float64
	httpClient *http.Client
}

// NewOpenAIClient creates a client. Zero-valued Options fields fall back
// to defaults.
func NewOpenAIClient(apiKey string, opts Options) *OpenAIClient {
	opts.fill("gpt-4o", "https://api.openai.com/v1")
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		temp:       opts.Temperature,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends the prompt and returns the text completion.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("backend: openai API key not configured")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: c.temp,
	})
	if err != nil {
		return "", fmt.Errorf("backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return "", statusErr(ProviderOpenAI, resp.StatusCode, string(respBody))
	}

	var out openAIResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("backend: parse openai response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("backend: openai API error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("backend: openai returned no completion")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
