package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Convergence.MaxIterations)
	assert.True(t, cfg.Convergence.FixedPointDetection)
	assert.Equal(t, 5, cfg.Planner.Candidates)
	assert.Equal(t, 1, cfg.Planner.RefinementRounds)
	assert.Equal(t, 5, cfg.Knowledge.LimitPerCategory)
	assert.InDelta(t, 0.3, cfg.Knowledge.MinScore, 1e-9)
	assert.True(t, cfg.Checkpoints.AutoBeforeDestructive)
	assert.Equal(t, 100, cfg.EventBus.MaxSubscribers)
	assert.Equal(t, 100, cfg.EventBus.RetentionRuns)
	assert.Equal(t, 3600, cfg.EventBus.RetentionSeconds)
	assert.NotEmpty(t, cfg.AllowedCommandPrefixes)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Convergence, cfg.Convergence)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sunwell.yaml")
	contents := "convergence:\n  max_iterations: 9\nplanner:\n  candidates: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Convergence.MaxIterations)
	assert.Equal(t, 3, cfg.Planner.Candidates)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Knowledge.LimitPerCategory)
}

func TestEnvOverridesLLMAndEmbeddingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret-key")
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
	assert.Equal(t, "secret-key", cfg.Embedding.APIKey)
}

func TestEnvOverrideModelAndKnowledgeDB(t *testing.T) {
	t.Setenv("SUNWELL_LLM_MODEL", "gemini-2.5-flash")
	t.Setenv("SUNWELL_KNOWLEDGE_DB", "/tmp/custom.db")
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, "/tmp/custom.db", cfg.Knowledge.DatabasePath)
}

func TestLLMConfigTimeoutDuration(t *testing.T) {
	c := LLMConfig{Timeout: "30s"}
	assert.Equal(t, "30s", c.TimeoutDuration().String())

	bad := LLMConfig{Timeout: "not-a-duration"}
	assert.Equal(t, "2m0s", bad.TimeoutDuration().String())

	empty := LLMConfig{}
	assert.Equal(t, "2m0s", empty.TimeoutDuration().String())
}
