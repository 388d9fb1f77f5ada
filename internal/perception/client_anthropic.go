package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2oast/Bean-Bot/internal/logging"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when llm.model is empty for provider anthropic.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
}

// AnthropicClient implements Generator with the official SDK.
type AnthropicClient struct {
	client anthropic.Client
	model  string
	hasKey bool
}

// NewAnthropicClient builds an SDK client. Environment variables the SDK
// would normally read are overridden by cfg.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		hasKey: cfg.APIKey != "",
	}
}

// Name implements Generator.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Generate calls Messages.New. System-role messages are folded into the
// system prompt since the API only accepts user and assistant turns.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	if !c.hasKey {
		return "", ErrUnconfigured
	}

	system := []string{}
	if req.System != "" {
		system = append(system, req.System)
	}
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n")},
		}
	}

	logging.APIDebug("[Anthropic] Generate: model=%s messages=%d", c.model, len(messages))

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: "anthropic", Code: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
