package config

// LLMConfig configures the remote generator.
type LLMConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Provider     string  `yaml:"provider"` // openai, anthropic, gemini
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"base_url"` // optional, OpenAI-compatible gateways
	Timeout      string  `yaml:"timeout"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"` // empty = built-in NPC instruction

	// Consecutive failures before remote calls are skipped for BreakerCooldown.
	// 0 disables the breaker.
	BreakerFailures int    `yaml:"breaker_failures"`
	BreakerCooldown string `yaml:"breaker_cooldown"`
}
