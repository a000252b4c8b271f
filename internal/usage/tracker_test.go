package usage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackAccumulatesAcrossDimensions(t *testing.T) {
	tr, err := NewTracker(filepath.Join(t.TempDir(), "usage.json"))
	require.NoError(t, err)

	tr.Track("run-1", "gemini-2.5-pro", "plan", 100, 50)
	tr.Track("run-1", "gemini-2.5-pro", "refine", 40, 20)
	tr.Track("run-2", "gemini-2.5-flash", "plan", 10, 5)

	stats := tr.Stats()
	assert.Equal(t, int64(225), stats.Total.Total)
	assert.Equal(t, int64(210), stats.ByRun["run-1"].Total)
	assert.Equal(t, int64(15), stats.ByRun["run-2"].Total)
	assert.Equal(t, int64(210), stats.ByModel["gemini-2.5-pro"].Total)
	assert.Equal(t, int64(165), stats.ByOperation["plan"].Total)
}

func TestSaveAndReloadPersistsAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")

	tr1, err := NewTracker(path)
	require.NoError(t, err)
	tr1.Track("run-1", "gemini-2.5-pro", "plan", 100, 50)
	require.NoError(t, tr1.Save())

	tr2, err := NewTracker(path)
	require.NoError(t, err)
	stats := tr2.Stats()
	assert.Equal(t, int64(150), stats.Total.Total)
}

func TestContextRoundTrip(t *testing.T) {
	tr, err := NewTracker(filepath.Join(t.TempDir(), "usage.json"))
	require.NoError(t, err)

	ctx := NewContext(t.Context(), tr)
	assert.Same(t, tr, FromContext(ctx))
	assert.Nil(t, FromContext(t.Context()))
}
