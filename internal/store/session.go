package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"
	"github.com/2oast/Bean-Bot/internal/types"
)

// Session is a request-scoped handle on one connection. Every method is a
// single statement, so each call is atomic on its own; nothing spans calls.
type Session struct {
	conn *sql.Conn
}

// Close releases the connection back to the pool. Safe to call twice.
func (s *Session) Close() error {
	err := s.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// AppendTranscript records one inbound message.
func (s *Session) AppendTranscript(ctx context.Context, e types.TranscriptEntry) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO convos (ts, agent_key, agent_name, object_key, region, message) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.Unix(), e.AgentKey, e.AgentName, e.ObjectKey, e.Region, e.Message)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	logging.StoreDebug("Transcript appended for %s (message_len=%d)", e.AgentKey, len(e.Message))
	return nil
}

// RecentTranscript returns the newest entries first. An empty agentKey returns
// entries for every agent.
func (s *Session) RecentTranscript(ctx context.Context, agentKey string, limit int) ([]types.TranscriptEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ts, agent_key, agent_name, object_key, region, message FROM convos`
	args := []interface{}{}
	if agentKey != "" {
		query += ` WHERE agent_key = ?`
		args = append(args, agentKey)
	}
	query += ` ORDER BY ts DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var out []types.TranscriptEntry
	for rows.Next() {
		var ts int64
		var e types.TranscriptEntry
		var name, objectKey, region, message sql.NullString
		if err := rows.Scan(&ts, &e.AgentKey, &name, &objectKey, &region, &message); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.AgentName = name.String
		e.ObjectKey = objectKey.String
		e.Region = region.String
		e.Message = message.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// FACTS
// =============================================================================

// ListFacts returns the agent's facts in insertion order.
func (s *Session) ListFacts(ctx context.Context, agentKey string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT fact FROM memory WHERE agent_key = ? ORDER BY rowid`, agentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	facts := []string{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// AddFact stores fact for the agent. Storing an existing fact is a no-op.
func (s *Session) AddFact(ctx context.Context, agentKey, fact string) error {
	fact = strings.TrimSpace(fact)
	res, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO memory (agent_key, fact) VALUES (?, ?)`, agentKey, fact)
	if err != nil {
		return fmt.Errorf("failed to add fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logging.StoreDebug("Fact already known for %s", agentKey)
	}
	return nil
}

// RemoveFact deletes the exact fact for the agent. Removing an unknown fact is a no-op.
func (s *Session) RemoveFact(ctx context.Context, agentKey, fact string) error {
	fact = strings.TrimSpace(fact)
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM memory WHERE agent_key = ? AND fact = ?`, agentKey, fact)
	if err != nil {
		return fmt.Errorf("failed to remove fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logging.StoreDebug("No matching fact to remove for %s", agentKey)
	}
	return nil
}

// =============================================================================
// CONSENT
// =============================================================================

// GetConsent reports whether the agent opted in. No record means false.
func (s *Session) GetConsent(ctx context.Context, agentKey string) (bool, error) {
	var allowed int
	err := s.conn.QueryRowContext(ctx,
		`SELECT allowed FROM consent WHERE agent_key = ?`, agentKey).Scan(&allowed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read consent: %w", err)
	}
	return allowed == 1, nil
}

// SetConsent overwrites the agent's consent flag.
func (s *Session) SetConsent(ctx context.Context, agentKey string, allowed bool) error {
	v := 0
	if allowed {
		v = 1
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO consent (agent_key, allowed) VALUES (?, ?)
		ON CONFLICT(agent_key) DO UPDATE SET allowed = excluded.allowed
	`, agentKey, v)
	if err != nil {
		return fmt.Errorf("failed to set consent: %w", err)
	}
	logging.Store("Consent for %s set to %v", agentKey, allowed)
	return nil
}

// =============================================================================
// STATS
// =============================================================================

// Stats counts rows across the three tables.
func (s *Session) Stats(ctx context.Context) (types.StoreStats, error) {
	var st types.StoreStats
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM convos),
			(SELECT COUNT(*) FROM memory),
			(SELECT COUNT(DISTINCT agent_key) FROM convos),
			(SELECT COUNT(*) FROM consent WHERE allowed = 1)
	`).Scan(&st.TranscriptEntries, &st.Facts, &st.Agents, &st.ConsentGranted)
	if err != nil {
		return st, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}
