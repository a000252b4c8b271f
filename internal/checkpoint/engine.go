// Package checkpoint implements the Checkpoint Engine: content-addressed
// workspace snapshots with deduplicated blob storage, grounded on the
// teacher's internal/store single-connection SQLite pattern and on
// domain.SnapshotID for deterministic, order-independent snapshot identity.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"sunwell/internal/contenthash"
	"sunwell/internal/domain"
	"sunwell/internal/logging"
	"sunwell/internal/sunerr"
)

// Engine owns a single SQLite connection guarded by one mutex; checkpoint
// and restore are rare, latency-sensitive operations, not a high-throughput
// workload, so the teacher's single-conn-plus-RWMutex shape is kept as-is.
type Engine struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open initializes the checkpoint database at path.
func Open(path string) (*Engine, error) {
	timer := logging.StartTimer(logging.CategoryCheckpoint, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sunerr.Storage(fmt.Sprintf("create checkpoint dir %s", dir), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sunerr.Storage("open checkpoint database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryCheckpoint).Warn("pragma failed: %s: %v", pragma, err)
		}
	}

	e := &Engine{db: db}
	if err := e.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS blobs (
		content_hash TEXT PRIMARY KEY,
		content BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		parent TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		reasoning TEXT,
		goal_id TEXT,
		task_id TEXT,
		confidence REAL,
		name TEXT,
		manifest_json TEXT NOT NULL,
		artifacts_json TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_parent ON snapshots(parent);
	CREATE INDEX IF NOT EXISTS idx_snapshots_archived ON snapshots(archived);
	`
	if _, err := e.db.Exec(schema); err != nil {
		return sunerr.Storage("migrate checkpoint schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Checkpoint hashes every file in files, deduplicates unchanged blobs
// against what is already stored, and persists a new WorkspaceSnapshot
// whose id is deterministic over (manifest, reasoning) per
// domain.SnapshotID (spec.md §8 property 4).
func (e *Engine) Checkpoint(parent string, intent domain.CheckpointIntent, files map[string][]byte, artifacts []domain.RecoveryArtifact) (domain.WorkspaceSnapshot, error) {
	timer := logging.StartTimer(logging.CategoryCheckpoint, "Checkpoint")
	defer timer.Stop()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	manifest := make([]domain.ManifestEntry, 0, len(paths))
	for _, p := range paths {
		manifest = append(manifest, domain.ManifestEntry{Path: p, ContentHash: contenthash.Sum(files[p])})
	}

	id := domain.SnapshotID(manifest, intent.Reasoning)
	snapshot := domain.WorkspaceSnapshot{
		ID:        id,
		Timestamp: time.Now(),
		Parent:    parent,
		Intent:    intent,
		Artifacts: artifacts,
		Manifest:  manifest,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.Begin()
	if err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("begin checkpoint transaction", err)
	}
	defer tx.Rollback()

	for _, p := range paths {
		hash := contenthash.Sum(files[p])
		if _, err := tx.Exec(`INSERT OR IGNORE INTO blobs (content_hash, content) VALUES (?, ?)`, hash, files[p]); err != nil {
			return domain.WorkspaceSnapshot{}, sunerr.Storage("store blob", err)
		}
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("marshal manifest", err)
	}
	artifactsJSON, err := json.Marshal(artifacts)
	if err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("marshal artifacts", err)
	}

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO snapshots (id, parent, timestamp, reasoning, goal_id, task_id, confidence, name, manifest_json, artifacts_json, archived)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		id, parent, snapshot.Timestamp, intent.Reasoning, intent.GoalID, intent.TaskID, intent.Confidence, intent.Name,
		string(manifestJSON), string(artifactsJSON),
	)
	if err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("store snapshot", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("commit checkpoint", err)
	}

	logging.Get(logging.CategoryCheckpoint).Info("checkpoint %s created (%d files, parent=%s)", id, len(paths), parent)
	return snapshot, nil
}

// Restore reconstructs the file contents recorded by a snapshot.
func (e *Engine) Restore(snapshotID string) (map[string][]byte, error) {
	timer := logging.StartTimer(logging.CategoryCheckpoint, "Restore")
	defer timer.Stop()

	snapshot, err := e.Load(snapshotID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	files := make(map[string][]byte, len(snapshot.Manifest))
	for _, entry := range snapshot.Manifest {
		var content []byte
		err := e.db.QueryRow(`SELECT content FROM blobs WHERE content_hash = ?`, entry.ContentHash).Scan(&content)
		if err != nil {
			return nil, sunerr.Storage(fmt.Sprintf("blob %s missing for %s", entry.ContentHash, entry.Path), err)
		}
		files[entry.Path] = content
	}
	return files, nil
}

// Load fetches a single WorkspaceSnapshot by id without materializing blobs.
func (e *Engine) Load(snapshotID string) (domain.WorkspaceSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadLocked(snapshotID)
}

func (e *Engine) loadLocked(snapshotID string) (domain.WorkspaceSnapshot, error) {
	var (
		parent, reasoning, goalID, taskID, name string
		confidence                              float64
		timestamp                                time.Time
		manifestJSON, artifactsJSON              string
	)
	err := e.db.QueryRow(
		`SELECT parent, timestamp, reasoning, goal_id, task_id, confidence, name, manifest_json, artifacts_json
		 FROM snapshots WHERE id = ?`, snapshotID,
	).Scan(&parent, &timestamp, &reasoning, &goalID, &taskID, &confidence, &name, &manifestJSON, &artifactsJSON)
	if err == sql.ErrNoRows {
		return domain.WorkspaceSnapshot{}, sunerr.Storage(fmt.Sprintf("no snapshot %s", snapshotID), nil)
	}
	if err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("load snapshot", err)
	}

	var manifest []domain.ManifestEntry
	if err := json.Unmarshal([]byte(manifestJSON), &manifest); err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("unmarshal manifest", err)
	}
	var artifacts []domain.RecoveryArtifact
	if err := json.Unmarshal([]byte(artifactsJSON), &artifacts); err != nil {
		return domain.WorkspaceSnapshot{}, sunerr.Storage("unmarshal artifacts", err)
	}

	return domain.WorkspaceSnapshot{
		ID:        snapshotID,
		Timestamp: timestamp,
		Parent:    parent,
		Intent: domain.CheckpointIntent{
			Reasoning:  reasoning,
			GoalID:     goalID,
			TaskID:     taskID,
			Confidence: confidence,
			Name:       name,
		},
		Artifacts: artifacts,
		Manifest:  manifest,
	}, nil
}

// History returns up to limit snapshots, most recent first.
func (e *Engine) History(limit int) ([]domain.WorkspaceSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.Query(`SELECT id FROM snapshots WHERE archived = 0 ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, sunerr.Storage("list snapshot history", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, sunerr.Storage("scan snapshot id", err)
		}
		ids = append(ids, id)
	}

	out := make([]domain.WorkspaceSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := e.loadLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Diff compares two snapshots' manifests, returning paths added, removed,
// and changed (present in both with a different content hash).
func (e *Engine) Diff(fromID, toID string) (added, removed, changed []string, err error) {
	from, err := e.Load(fromID)
	if err != nil {
		return nil, nil, nil, err
	}
	to, err := e.Load(toID)
	if err != nil {
		return nil, nil, nil, err
	}

	fromHashes := make(map[string]string, len(from.Manifest))
	for _, entry := range from.Manifest {
		fromHashes[entry.Path] = entry.ContentHash
	}
	toHashes := make(map[string]string, len(to.Manifest))
	for _, entry := range to.Manifest {
		toHashes[entry.Path] = entry.ContentHash
	}

	for path, hash := range toHashes {
		prior, existed := fromHashes[path]
		if !existed {
			added = append(added, path)
		} else if prior != hash {
			changed = append(changed, path)
		}
	}
	for path := range fromHashes {
		if _, stillPresent := toHashes[path]; !stillPresent {
			removed = append(removed, path)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed, nil
}

// Archive flags a snapshot so History stops returning it, without deleting
// its blobs (other snapshots may still reference them).
func (e *Engine) Archive(snapshotID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.db.Exec(`UPDATE snapshots SET archived = 1 WHERE id = ?`, snapshotID)
	if err != nil {
		return sunerr.Storage("archive snapshot", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sunerr.Storage(fmt.Sprintf("no snapshot %s", snapshotID), nil)
	}
	return nil
}
