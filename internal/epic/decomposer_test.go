package epic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/domain"
	"sunwell/internal/llmclient"
)

const sampleMilestones = "```json\n" + `{"milestones": [
  {"id": "m1", "title": "Data layer", "description": "schema and migrations", "produces": ["schema"], "requires": []},
  {"id": "m2", "title": "API surface", "description": "handlers and routes", "produces": ["handlers"], "requires": ["m1"]}
]}
` + "```"

const cyclicMilestones = `{"milestones": [
  {"id": "m1", "title": "A", "description": "a", "produces": ["a"], "requires": ["m2"]},
  {"id": "m2", "title": "B", "description": "b", "produces": ["b"], "requires": ["m1"]}
]}`

const danglingMilestones = `{"milestones": [
  {"id": "m1", "title": "A", "description": "a", "produces": ["a"], "requires": ["ghost"]}
]}`

func TestDecomposeBuildsOrderedMilestoneGoals(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{sampleMilestones}}
	d := New(fake)

	goals, err := d.Decompose(context.Background(), "epic-1", "rebuild the billing system", DomainSoftware)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, "epic-1-milestone-0", goals[0].ID)
	assert.Equal(t, "epic-1-milestone-1", goals[1].ID)
	assert.Equal(t, domain.GoalTypeMilestone, goals[0].Type)
	assert.Equal(t, "epic-1", goals[1].ParentGoalID)
	_, requiresM1 := goals[1].Requires["epic-1-milestone-0"]
	assert.True(t, requiresM1)
}

func TestDecomposeRejectsCyclicMilestones(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{cyclicMilestones}}
	d := New(fake)

	_, err := d.Decompose(context.Background(), "epic-2", "write a saga", DomainNovel)
	require.Error(t, err)
}

func TestDecomposeRejectsDanglingRequires(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{danglingMilestones}}
	d := New(fake)

	_, err := d.Decompose(context.Background(), "epic-3", "do research", DomainResearch)
	require.Error(t, err)
}

func TestDetectDomainParsesResponse(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{`{"domain": "software"}`}}
	d := New(fake)

	dom := d.DetectDomain(context.Background(), "add CRUD endpoints")
	assert.Equal(t, DomainSoftware, dom)
}

func TestDetectDomainFallsBackToGeneralOnGarbage(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{"not json"}}
	d := New(fake)

	dom := d.DetectDomain(context.Background(), "anything")
	assert.Equal(t, DomainGeneral, dom)
}
