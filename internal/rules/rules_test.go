package rules

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligibleGoalsNoRequires(t *testing.T) {
	got, err := EligibleGoals(
		[]string{"a", "b"},
		map[string][]string{},
		map[string]bool{},
		map[string]bool{},
	)
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEligibleGoalsWithUnmetRequires(t *testing.T) {
	got, err := EligibleGoals(
		[]string{"a", "b", "c"},
		map[string][]string{"b": {"a"}, "c": {"b"}},
		map[string]bool{},
		map[string]bool{},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestEligibleGoalsAfterCompletionAndBlock(t *testing.T) {
	got, err := EligibleGoals(
		[]string{"a", "b", "c"},
		map[string][]string{"b": {"a"}, "c": {"a"}},
		map[string]bool{"a": true},
		map[string]bool{"c": true},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)
}

func TestDetectCyclesNoCycle(t *testing.T) {
	got, err := DetectCycles(map[string][]string{"a": {"b"}, "b": {"c"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectCyclesSimpleCycle(t *testing.T) {
	got, err := DetectCycles(map[string][]string{"a": {"b"}, "b": {"a"}})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	got, err := DetectCycles(map[string][]string{"a": {"a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}
