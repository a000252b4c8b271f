// Package recovery persists domain.RecoveryState across runs so an
// escalated goal can be resumed instead of replanned from scratch. It is
// grounded on the teacher's internal/store SQLite layer (single-connection
// *sql.DB behind a sync.RWMutex, PRAGMA tuning, INSERT OR REPLACE
// idempotency) but trades the teacher's mattn/go-sqlite3 cgo driver for the
// pure-Go modernc.org/sqlite, matching SPEC_FULL.md's ambient-stack choice.
package recovery

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"sunwell/internal/domain"
	"sunwell/internal/logging"
	"sunwell/internal/sunerr"
)

// Store persists and retrieves domain.RecoveryState rows.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open initializes (creating if absent) the SQLite database at path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryRecovery, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sunerr.Storage(fmt.Sprintf("create recovery dir %s", dir), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sunerr.Storage("open recovery database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryRecovery).Warn("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS recovery_states (
		run_id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		goal_hash TEXT NOT NULL,
		state_json TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_recovery_resolved ON recovery_states(resolved);
	CREATE INDEX IF NOT EXISTS idx_recovery_goal_hash ON recovery_states(goal_hash);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return sunerr.Storage("migrate recovery schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a RecoveryState, keyed by RunID (idempotent re-save on every
// escalation within a run).
func (s *Store) Save(state domain.RecoveryState) error {
	timer := logging.StartTimer(logging.CategoryRecovery, "Save")
	defer timer.Stop()

	if state.RunID == "" {
		return sunerr.Validation("recovery state requires a run id", nil)
	}
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return sunerr.Storage("marshal recovery state", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO recovery_states (run_id, goal, goal_hash, state_json, resolved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			goal=excluded.goal, goal_hash=excluded.goal_hash, state_json=excluded.state_json,
			updated_at=excluded.updated_at`,
		state.RunID, state.Goal, state.GoalHash, string(payload), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		return sunerr.Storage("save recovery state", err)
	}
	logging.Get(logging.CategoryRecovery).Info("saved recovery state run=%s reason=%s", state.RunID, state.FailureReason)
	return nil
}

// Load fetches a RecoveryState by run id.
func (s *Store) Load(runID string) (domain.RecoveryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRow(`SELECT state_json FROM recovery_states WHERE run_id = ?`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.RecoveryState{}, sunerr.Storage(fmt.Sprintf("no recovery state for run %s", runID), nil)
	}
	if err != nil {
		return domain.RecoveryState{}, sunerr.Storage("load recovery state", err)
	}

	var state domain.RecoveryState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return domain.RecoveryState{}, sunerr.Storage("unmarshal recovery state", err)
	}
	return state, nil
}

// ListPending returns every unresolved RecoveryState, most recently updated
// first.
func (s *Store) ListPending() ([]domain.RecoveryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT state_json FROM recovery_states WHERE resolved = 0 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, sunerr.Storage("list pending recovery states", err)
	}
	defer rows.Close()

	var out []domain.RecoveryState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, sunerr.Storage("scan recovery state", err)
		}
		var state domain.RecoveryState
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			return nil, sunerr.Storage("unmarshal recovery state", err)
		}
		out = append(out, state)
	}
	return out, nil
}

// MarkResolved flags a run's recovery state as resolved, archiving it out of
// ListPending without deleting history.
func (s *Store) MarkResolved(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE recovery_states SET resolved = 1, updated_at = ? WHERE run_id = ?`, time.Now(), runID)
	if err != nil {
		return sunerr.Storage("mark recovery state resolved", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sunerr.Storage(fmt.Sprintf("no recovery state for run %s", runID), nil)
	}
	logging.Get(logging.CategoryRecovery).Info("recovery state resolved run=%s", runID)
	return nil
}
