package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "beanbot.yaml"

// Config holds all beanbot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP transport
	Server ServerConfig `yaml:"server"`

	// Remote generator
	LLM LLMConfig `yaml:"llm"`

	// Fact store, consent registry and transcript
	Memory MemoryConfig `yaml:"memory"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "beanbot",
		Version: "0.3.0",

		Server: ServerConfig{
			Addr:            ":8000",
			SharedSecret:    DefaultSharedSecret,
			MaxConnections:  0,
			ReadTimeout:     "15s",
			WriteTimeout:    "45s",
			ShutdownTimeout: "10s",
		},

		LLM: LLMConfig{
			Enabled:     true,
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     "20s",
			Temperature: 0.7,
			MaxTokens:   120,

			BreakerFailures: 5,
			BreakerCooldown: "30s",
		},

		Memory: MemoryConfig{
			Driver:           "sqlite3",
			DatabasePath:     "memory.db",
			FactContextLimit: 10,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file is not an error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if secret := os.Getenv("SHARED_SECRET"); secret != "" {
		c.Server.SharedSecret = secret
	}
	if addr := os.Getenv("BEANBOT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	// LLM API key from environment (later entries win)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	// Database path from environment
	if path := os.Getenv("BEANBOT_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "anthropic", "gemini"}

// ValidDrivers lists the database/sql driver names the store can open.
var ValidDrivers = []string{"sqlite3", "sqlite"}

// Validate validates the configuration.
// A missing API key is not an error: the service runs on the fallback responder.
func (c *Config) Validate() error {
	if c.Server.SharedSecret == "" {
		return fmt.Errorf("server.shared_secret must not be empty (set SHARED_SECRET)")
	}

	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if !contains(ValidDrivers, c.Memory.Driver) {
		return fmt.Errorf("invalid memory driver: %s (valid: %v)", c.Memory.Driver, ValidDrivers)
	}

	if c.Memory.DatabasePath == "" {
		return fmt.Errorf("memory.database_path must not be empty")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature out of range [0,2]: %v", c.LLM.Temperature)
	}

	if c.LLM.BreakerFailures < 0 {
		return fmt.Errorf("llm.breaker_failures must not be negative: %d", c.LLM.BreakerFailures)
	}

	return nil
}

// RemoteEnabled reports whether a remote generator should be built at startup.
func (c *Config) RemoteEnabled() bool {
	return c.LLM.Enabled && c.LLM.APIKey != ""
}

// GetLLMTimeout returns the remote generator timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 20*time.Second)
}

// GetBreakerCooldown returns how long an open breaker skips remote calls.
func (c *Config) GetBreakerCooldown() time.Duration {
	return parseDuration(c.LLM.BreakerCooldown, 30*time.Second)
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
// It must outlast the LLM timeout or slow generations get cut mid-reply.
func (c *Config) GetWriteTimeout() time.Duration {
	d := parseDuration(c.Server.WriteTimeout, 45*time.Second)
	if llm := c.GetLLMTimeout(); d <= llm {
		d = llm + 5*time.Second
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown budget as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
