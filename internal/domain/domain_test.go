package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklogAtMostOneView(t *testing.T) {
	b := NewBacklog()
	require.NoError(t, b.Add(Goal{ID: "g1"}))

	require.NoError(t, b.StartInProgress("g1"))
	assert.Equal(t, "g1", b.InProgress())

	b.Complete("g1")
	assert.True(t, b.Completed("g1"))
	assert.Equal(t, "", b.InProgress())

	// Completed goal cannot be restarted without being un-completed first.
	err := b.StartInProgress("g1")
	assert.Error(t, err)
}

func TestBacklogRejectsCycles(t *testing.T) {
	b := NewBacklog()
	require.NoError(t, b.Add(Goal{ID: "a", Requires: set("b")}))
	err := b.Add(Goal{ID: "b", Requires: set("a")})
	assert.ErrorAs(t, err, new(ErrCyclicRequires))
}

func TestBacklogEligibility(t *testing.T) {
	b := NewBacklog()
	require.NoError(t, b.Add(Goal{ID: "base"}))
	require.NoError(t, b.Add(Goal{ID: "dependent", Requires: set("base")}))

	assert.True(t, b.Eligible("base"))
	assert.False(t, b.Eligible("dependent"))

	b.Complete("base")
	assert.True(t, b.Eligible("dependent"))
	assert.ElementsMatch(t, []string{"dependent"}, b.EligibleGoals())
}

func set(ids ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func TestArtifactGraphInvariants(t *testing.T) {
	g := NewArtifactGraph()
	require.NoError(t, g.Add(ArtifactSpec{ID: "model", Produces: []string{"models/product.py"}}))
	require.NoError(t, g.Add(ArtifactSpec{ID: "routes", Produces: []string{"routes/product.py"}, Requires: []string{"model"}}))
	require.NoError(t, g.Validate())

	order := g.TopoOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "model", order[0])
	assert.Equal(t, "routes", order[1])
}

func TestArtifactGraphDuplicateProduces(t *testing.T) {
	g := NewArtifactGraph()
	require.NoError(t, g.Add(ArtifactSpec{ID: "a", Produces: []string{"same.py"}}))
	err := g.Add(ArtifactSpec{ID: "b", Produces: []string{"same.py"}})
	assert.ErrorAs(t, err, new(ErrDuplicateProduces))
}

func TestArtifactGraphDanglingRequires(t *testing.T) {
	g := NewArtifactGraph()
	require.NoError(t, g.Add(ArtifactSpec{ID: "a", Requires: []string{"missing"}}))
	err := g.Validate()
	assert.ErrorAs(t, err, new(ErrDanglingRequires))
}

func TestArtifactGraphCycle(t *testing.T) {
	g := NewArtifactGraph()
	require.NoError(t, g.Add(ArtifactSpec{ID: "a", Requires: []string{"b"}}))
	require.NoError(t, g.Add(ArtifactSpec{ID: "b", Requires: []string{"a"}}))
	err := g.Validate()
	assert.ErrorAs(t, err, new(ErrCyclicArtifacts))
}

func TestLearningIdentityIsIdempotent(t *testing.T) {
	l1 := NewLearning("prefer tabs", CategoryPreference, 0.5)
	l2 := NewLearning("prefer tabs", CategoryPreference, 0.9)
	assert.Equal(t, l1.ID, l2.ID, "identity is (category, fact); confidence differs but id must not")
}

func TestLearningUsageBounds(t *testing.T) {
	l := NewLearning("x", CategoryFact, 0.98)
	now := time.Now()
	success := l.WithUsage(true, now)
	assert.InDelta(t, 1.0, success.Confidence, 1e-9)
	assert.Equal(t, 1, success.UseCount)

	low := NewLearning("y", CategoryFact, 0.12)
	fail := low.WithUsage(false, now)
	assert.InDelta(t, 0.1, fail.Confidence, 1e-9)
}

func TestSnapshotIDDeterministic(t *testing.T) {
	m := []ManifestEntry{{Path: "b.go", ContentHash: "2"}, {Path: "a.go", ContentHash: "1"}}
	id1 := SnapshotID(m, "reasoning")
	id2 := SnapshotID([]ManifestEntry{{Path: "a.go", ContentHash: "1"}, {Path: "b.go", ContentHash: "2"}}, "reasoning")
	assert.Equal(t, id1, id2, "order of manifest entries must not affect id")
	assert.Len(t, id1, 16)
}

func TestTemplateMatching(t *testing.T) {
	pc := PlanningContext{
		Templates: []Learning{
			{
				ID:       "t1",
				Category: CategoryTemplate,
				Template: &TemplateData{MatchPatterns: []string{"CRUD", "endpoint"}},
			},
		},
	}
	assert.NotNil(t, pc.BestTemplate("Add CRUD endpoints for Product"))
	assert.Nil(t, pc.BestTemplate("Write unit tests"))
}
