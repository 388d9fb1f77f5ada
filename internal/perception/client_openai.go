package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"
)

// OpenAIConfig configures an OpenAI-compatible chat/completions client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// RetryBackoff is the first wait after a 429; it doubles per retry.
	RetryBackoff time.Duration
}

// DefaultOpenAIConfig returns the defaults used by the chat endpoint.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:       apiKey,
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Second,
	}
}

// OpenAIClient implements Generator over plain HTTP, so any
// OpenAI-compatible server works via BaseURL.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	model        string
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client from cfg, filling unset fields with defaults.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	def := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &OpenAIClient{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Generator.
func (c *OpenAIClient) Name() string { return "openai" }

// Generate sends req to /chat/completions. Rate-limited answers are retried
// with exponential backoff; everything else fails immediately.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrUnconfigured
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	jsonData, err := json.Marshal(openAIRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	logging.APIDebug("[OpenAI] Generate: model=%s system_len=%d messages=%d", c.model, len(req.System), len(req.Messages))

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			wait := c.retryBackoff << uint(i-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, retry, err := c.do(ctx, jsonData)
		if err == nil {
			return text, nil
		}
		if !retry {
			return "", err
		}
		lastErr = err
		logging.APIWarn("[OpenAI] Generate: attempt %d rate limited", i+1)
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) do(ctx context.Context, body []byte) (text string, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", true, &StatusError{Provider: "openai", Code: resp.StatusCode, Body: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, &StatusError{Provider: "openai", Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("%w: no choices returned", ErrMalformed)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}
