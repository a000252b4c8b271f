package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// CheckpointIntent carries the "why" behind a checkpoint (spec.md §3).
type CheckpointIntent struct {
	Reasoning string
	GoalID    string
	TaskID    string
	Confidence float64
	Name       string
}

// ManifestEntry pairs a tracked path with the SHA-256 hash of its content at
// checkpoint time.
type ManifestEntry struct {
	Path        string
	ContentHash string
}

// WorkspaceSnapshot is a session-scoped, content-addressed checkpoint
// (spec.md §3, GLOSSARY: Checkpoint/Snapshot).
type WorkspaceSnapshot struct {
	ID        string
	Timestamp time.Time
	Parent    string // empty for the root of a session
	Intent    CheckpointIntent
	Artifacts []RecoveryArtifact
	Manifest  []ManifestEntry
}

// SnapshotID computes the deterministic id hash(sorted(manifest)+intent.reasoning)[:16]
// required by spec.md §8 property 4.
func SnapshotID(manifest []ManifestEntry, reasoning string) string {
	sorted := make([]ManifestEntry, len(manifest))
	copy(sorted, manifest)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, e := range sorted {
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		h.Write([]byte(e.ContentHash))
		h.Write([]byte{0})
	}
	h.Write([]byte(reasoning))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}
