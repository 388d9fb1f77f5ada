package config

// MemoryConfig configures the durable store.
type MemoryConfig struct {
	// Driver is the database/sql driver: "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver string `yaml:"driver"`

	DatabasePath string `yaml:"database_path"`

	// FactContextLimit caps how many facts are injected into the remote context.
	FactContextLimit int `yaml:"fact_context_limit"`
}
