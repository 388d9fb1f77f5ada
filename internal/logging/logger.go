// Package logging provides config-driven categorized logging for beanbot.
// Every category is a named child of one zap logger, so a single JSON stream
// carries "logger":"store", "logger":"api" and so on. Categories can be
// switched off individually in the logging section of beanbot.yaml.
package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/2oast/Bean-Bot/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot   Category = "boot"   // Startup, config reloads
	CategoryServer Category = "server" // HTTP transport
	CategoryChat   Category = "chat"   // Reply orchestration, commands, fallback
	CategoryStore  Category = "store"  // SQLite fact/consent/transcript store
	CategoryAPI    Category = "api"    // Remote generator calls
)

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the process logger from the logging config and installs
// it as the root for every category. The returned logger is also handed to
// the HTTP layer for structured request logs.
func Initialize(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	install(logger, cfg.Categories)
	return logger, nil
}

// SetLogger replaces the root logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	install(l, nil)
}

func install(l *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = cats
	loggers = make(map[Category]*zap.SugaredLogger)
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	lc := config.LoggingConfig{Categories: categories}
	return lc.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *zap.SugaredLogger {
	if !IsCategoryEnabled(category) {
		return zap.NewNop().Sugar()
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Infof(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warnf(format, args...)
}

// Server logs to the server category
func Server(format string, args ...interface{}) {
	Get(CategoryServer).Infof(format, args...)
}

// ServerError logs an error to the server category
func ServerError(format string, args ...interface{}) {
	Get(CategoryServer).Errorf(format, args...)
}

// Chat logs to the chat category
func Chat(format string, args ...interface{}) {
	Get(CategoryChat).Infof(format, args...)
}

// ChatDebug logs debug to the chat category
func ChatDebug(format string, args ...interface{}) {
	Get(CategoryChat).Debugf(format, args...)
}

// ChatWarn logs a warning to the chat category
func ChatWarn(format string, args ...interface{}) {
	Get(CategoryChat).Warnf(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Infof(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debugf(format, args...)
}

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Errorf(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Infof(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debugf(format, args...)
}

// APIWarn logs a warning to the api category
func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warnf(format, args...)
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("SLOW: %s took %v (threshold %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
