package perception

import (
	"context"
	"fmt"
	"strings"

	"github.com/2oast/Bean-Bot/internal/config"
	"github.com/2oast/Bean-Bot/internal/logging"
)

// Provider identifies a remote generator backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// NewGeneratorFromConfig selects the generator once at startup. Without a key,
// or with llm.enabled=false, it returns Disabled so every reply comes from
// the fallback responder. Real clients are wrapped in a Breaker (unless
// llm.breaker_failures is 0) and then in Traced.
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config) (Generator, error) {
	if !cfg.RemoteEnabled() {
		logging.Boot("Remote generator disabled; replies use the fallback responder")
		return Disabled{}, nil
	}

	provider := Provider(cfg.LLM.Provider)
	model := resolveModel(provider, cfg.LLM.Model)

	var gen Generator
	switch provider {
	case ProviderOpenAI:
		gen = NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      model,
			Timeout:    cfg.GetLLMTimeout(),
			MaxRetries: 2,
		})
	case ProviderAnthropic:
		gen = NewAnthropicClient(AnthropicConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      model,
			MaxRetries: 2,
		})
	case ProviderGemini:
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   model,
		})
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	if cfg.LLM.BreakerFailures > 0 {
		gen = NewBreaker(gen, BreakerConfig{
			Failures: cfg.LLM.BreakerFailures,
			Cooldown: cfg.GetBreakerCooldown(),
		})
	}

	logging.Boot("Remote generator: provider=%s model=%s", provider, modelOrDefault(model))
	return NewTraced(gen), nil
}

// resolveModel drops an OpenAI model name carried over from the defaults when
// another provider was picked through its API key.
func resolveModel(p Provider, model string) string {
	if p != ProviderOpenAI && strings.HasPrefix(model, "gpt-") {
		return ""
	}
	return model
}

func modelOrDefault(model string) string {
	if model == "" {
		return "(provider default)"
	}
	return model
}
