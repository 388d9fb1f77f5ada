package config

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	SharedSecret    string `yaml:"shared_secret"`
	MaxConnections  int    `yaml:"max_connections"` // 0 = unlimited
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DefaultSharedSecret is the placeholder secret; Validate accepts it but serve warns.
const DefaultSharedSecret = "change-me-please"
