package epic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/domain"
	"sunwell/internal/llmclient"
)

func twoMilestones() []domain.Goal {
	m1 := domain.Goal{ID: "ep-milestone-0", Type: domain.GoalTypeMilestone, ParentGoalID: "ep", Produces: []string{"schema"}}
	m2 := domain.Goal{
		ID: "ep-milestone-1", Type: domain.GoalTypeMilestone, ParentGoalID: "ep",
		Requires: map[string]struct{}{"ep-milestone-0": {}}, Produces: []string{"handlers"},
	}
	return []domain.Goal{m1, m2}
}

type recordingRecorder struct {
	learnings []domain.Learning
}

func (r *recordingRecorder) AddLearning(_ context.Context, l domain.Learning) error {
	r.learnings = append(r.learnings, l)
	return nil
}

func TestTrackerStartsWithFirstEligibleMilestoneActive(t *testing.T) {
	tr, err := NewTracker("ep", twoMilestones(), nil, nil)
	require.NoError(t, err)

	active, ok := tr.ActiveMilestone()
	require.True(t, ok)
	assert.Equal(t, "ep-milestone-0", active.ID)
	assert.False(t, tr.IsComplete())
}

func TestTrackerAdvancesAndExtractsLearnings(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{`{"learnings": [{"fact": "migrations run before handlers", "category": "pattern", "confidence": 0.8}]}`}}
	rec := &recordingRecorder{}
	tr, err := NewTracker("ep", twoMilestones(), fake, rec)
	require.NoError(t, err)

	learnings, err := tr.CompleteActive(context.Background(), map[string]string{"schema.sql": "CREATE TABLE ..."})
	require.NoError(t, err)
	require.Len(t, learnings, 1)
	assert.Equal(t, domain.CategoryPattern, learnings[0].Category)
	assert.Len(t, rec.learnings, 1)

	active, ok := tr.ActiveMilestone()
	require.True(t, ok)
	assert.Equal(t, "ep-milestone-1", active.ID)
	assert.False(t, tr.IsComplete())
}

func TestTrackerCompletesAllMilestones(t *testing.T) {
	tr, err := NewTracker("ep", twoMilestones(), nil, nil)
	require.NoError(t, err)

	_, err = tr.CompleteActive(context.Background(), nil)
	require.NoError(t, err)
	_, err = tr.CompleteActive(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, tr.IsComplete())
	done, total := tr.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, total)
}

func TestTrackerCompleteActiveWithNoActiveMilestoneErrors(t *testing.T) {
	tr, err := NewTracker("ep", twoMilestones(), nil, nil)
	require.NoError(t, err)
	_, err = tr.CompleteActive(context.Background(), nil)
	require.NoError(t, err)
	_, err = tr.CompleteActive(context.Background(), nil)
	require.NoError(t, err)

	_, err = tr.CompleteActive(context.Background(), nil)
	assert.Error(t, err)
}
