package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/domain"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCheckpointAndRestoreRoundTrips(t *testing.T) {
	e := openTestEngine(t)

	files := map[string][]byte{
		"main.go":   []byte("package main"),
		"README.md": []byte("# hello"),
	}
	snap, err := e.Checkpoint("", domain.CheckpointIntent{Reasoning: "initial scaffold", GoalID: "g1"}, files, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Manifest, 2)

	restored, err := e.Restore(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, files, restored)
}

func TestCheckpointIDDeterministicAcrossIdenticalIntent(t *testing.T) {
	e := openTestEngine(t)
	files := map[string][]byte{"a.go": []byte("x")}

	snap1, err := e.Checkpoint("", domain.CheckpointIntent{Reasoning: "r"}, files, nil)
	require.NoError(t, err)
	snap2, err := e.Checkpoint("", domain.CheckpointIntent{Reasoning: "r"}, files, nil)
	require.NoError(t, err)
	assert.Equal(t, snap1.ID, snap2.ID)
}

func TestDiffReportsAddedRemovedChanged(t *testing.T) {
	e := openTestEngine(t)

	snap1, err := e.Checkpoint("", domain.CheckpointIntent{Reasoning: "v1"}, map[string][]byte{
		"a.go": []byte("one"),
		"b.go": []byte("keep"),
	}, nil)
	require.NoError(t, err)

	snap2, err := e.Checkpoint(snap1.ID, domain.CheckpointIntent{Reasoning: "v2"}, map[string][]byte{
		"a.go": []byte("two"),
		"c.go": []byte("new"),
	}, nil)
	require.NoError(t, err)

	added, removed, changed, err := e.Diff(snap1.ID, snap2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.go"}, added)
	assert.Equal(t, []string{"b.go"}, removed)
	assert.Equal(t, []string{"a.go"}, changed)
}

func TestHistoryExcludesArchived(t *testing.T) {
	e := openTestEngine(t)

	snap1, err := e.Checkpoint("", domain.CheckpointIntent{Reasoning: "first"}, map[string][]byte{"a.go": []byte("1")}, nil)
	require.NoError(t, err)
	_, err = e.Checkpoint(snap1.ID, domain.CheckpointIntent{Reasoning: "second"}, map[string][]byte{"a.go": []byte("2")}, nil)
	require.NoError(t, err)

	require.NoError(t, e.Archive(snap1.ID))

	history, err := e.History(10)
	require.NoError(t, err)
	for _, s := range history {
		assert.NotEqual(t, snap1.ID, s.ID)
	}
}
