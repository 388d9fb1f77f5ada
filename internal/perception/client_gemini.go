package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2oast/Bean-Bot/internal/logging"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when llm.model is empty for provider gemini.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the genai client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GeminiClient implements Generator on google.golang.org/genai.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates the genai client against the Gemini API backend.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnconfigured
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// Name implements Generator.
func (c *GeminiClient) Name() string { return "gemini" }

// Generate calls Models.GenerateContent with the system prompt as the
// system instruction.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	system := req.System
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = strings.TrimSpace(system + "\n" + m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	logging.APIDebug("[Gemini] Generate: model=%s contents=%d", c.model, len(contents))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: "gemini", Code: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
