// Package store persists the transcript log, the fact store and the consent
// registry in SQLite.
//
// Tables:
//   - convos:  append-only transcript (ts, agent_key, agent_name, object_key, region, message)
//   - memory:  facts, UNIQUE(agent_key, fact) ON CONFLICT IGNORE
//   - consent: one row per agent_key, upserted
//
// Two drivers are supported. "sqlite3" is mattn/go-sqlite3 (cgo) and is the
// default; "sqlite" is modernc.org/sqlite, a pure-Go build that the tests and
// cgo-free deployments use. Both share one schema and one SQL dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/2oast/Bean-Bot/internal/logging"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Store owns the connection pool. Request handlers do not touch it directly;
// they Acquire a Session per request.
type Store struct {
	db     *sql.DB
	dbPath string
	driver string
}

// Open creates or opens the database at path with the given driver.
func Open(driver, path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	logging.Store("Opening %s store at %s", driver, path)

	dsn, err := buildDSN(driver, path)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path, driver: driver}
	if err := s.initSchema(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.StoreDebug("Schema ready at %s", path)
	return s, nil
}

func buildDSN(driver, path string) (string, error) {
	switch driver {
	case "sqlite3":
		return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case "sqlite":
		return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

// initSchema creates the database schema.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS convos (
		ts INTEGER NOT NULL,
		agent_key TEXT NOT NULL,
		agent_name TEXT,
		object_key TEXT,
		region TEXT,
		message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_convos_agent ON convos(agent_key, ts);

	CREATE TABLE IF NOT EXISTS memory (
		agent_key TEXT NOT NULL,
		fact TEXT NOT NULL,
		UNIQUE(agent_key, fact) ON CONFLICT IGNORE
	);

	CREATE TABLE IF NOT EXISTS consent (
		agent_key TEXT PRIMARY KEY,
		allowed INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// Acquire pins one pooled connection for the caller. The returned Session must
// be closed on every exit path; closing hands the connection back to the pool.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		logging.StoreError("Failed to acquire connection: %v", err)
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{conn: conn}, nil
}
