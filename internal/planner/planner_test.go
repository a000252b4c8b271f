package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/domain"
	"sunwell/internal/events"
	"sunwell/internal/llmclient"
)

const sampleGraph = `` + "```json" + `
{"artifacts": [{"id": "a1", "description": "create handler", "produces": ["handler.go"], "requires": [], "validation_commands": ["go vet ./..."]}]}
` + "```"

const sampleGraphTwoArtifacts = `{"artifacts": [
  {"id": "a1", "description": "create model", "produces": ["model.go"], "requires": [], "validation_commands": []},
  {"id": "a2", "description": "create handler", "produces": ["handler.go"], "requires": ["a1"], "validation_commands": ["go vet ./..."]}
]}`

type staticKnowledge struct {
	pc domain.PlanningContext
}

func (s staticKnowledge) RetrieveForPlanning(_ context.Context, _ string, _ int) (domain.PlanningContext, error) {
	return s.pc, nil
}

func TestPlanStandardModePicksWinner(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{sampleGraph}}
	bus := events.NewBus()
	p := New(fake, nil, bus, 3, 0, 5)

	graph, err := p.Plan(context.Background(), "run-1", "add a widget endpoint")
	require.NoError(t, err)
	assert.Equal(t, 1, graph.Len())
}

func TestPlanEmitsCandidateAndWinnerEvents(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{sampleGraph}}
	bus := events.NewBus()
	sub, err := bus.Subscribe(events.Filter{})
	require.NoError(t, err)

	p := New(fake, nil, bus, 2, 0, 5)
	_, err = p.Plan(context.Background(), "run-2", "add a widget endpoint")
	require.NoError(t, err)

	var sawWinner bool
	for i := 0; i < 20; i++ {
		select {
		case ev := <-sub.Events:
			if ev.Type == events.TypePlanWinner {
				sawWinner = true
			}
		default:
		}
	}
	assert.True(t, sawWinner, "expected a plan_winner event")
}

func TestPlanAllCandidatesFailReturnsPlanningError(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{"not json at all"}}
	bus := events.NewBus()
	p := New(fake, nil, bus, 2, 0, 5)

	_, err := p.Plan(context.Background(), "run-3", "do something impossible")
	require.Error(t, err)
}

func TestPlanTemplateModeShortCircuitsCandidateGeneration(t *testing.T) {
	tmpl := domain.Learning{
		Category: domain.CategoryTemplate,
		Template: &domain.TemplateData{
			Name:               "crud-endpoint",
			MatchPatterns:      []string{"CRUD", "Product"},
			Variables:          []domain.TemplateVariable{{Name: "entity", Type: "string", ExtractionHints: "the noun the CRUD endpoints are for"}},
			ExpectedArtifacts:  []string{"{{entity_lower}}_handler.go", "{{entity_lower}}_model.go"},
			Requires:           []string{"", "{{entity_lower}}_handler.go"},
			ValidationCommands: []string{"go vet ./...", "go vet ./..."},
		},
	}
	pc := domain.PlanningContext{Templates: []domain.Learning{tmpl}}

	fake := &llmclient.Fake{Responses: []string{`{"entity": "Product"}`}}
	bus := events.NewBus()
	sub, err := bus.Subscribe(events.Filter{})
	require.NoError(t, err)

	p := New(fake, staticKnowledge{pc: pc}, bus, 3, 2, 5)
	graph, err := p.Plan(context.Background(), "run-4", "Add CRUD endpoints for Product")
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len())

	spec, ok := graph.Get("artifact-0")
	require.True(t, ok)
	assert.Equal(t, []string{"product_handler.go"}, spec.Produces)

	var sawTemplateMatched bool
	for i := 0; i < 10; i++ {
		select {
		case ev := <-sub.Events:
			if ev.Type == events.TypeTemplateMatched {
				sawTemplateMatched = true
			}
		default:
		}
	}
	assert.True(t, sawTemplateMatched)

	// Exactly one LLM call: variable extraction only, no candidate generation.
	assert.Equal(t, 1, len(fake.Prompts))
}

func TestPlanRefinementRoundsImproveScore(t *testing.T) {
	fake := &llmclient.Fake{Responses: []string{sampleGraphTwoArtifacts, sampleGraph}}
	bus := events.NewBus()
	p := New(fake, nil, bus, 1, 1, 5)

	graph, err := p.Plan(context.Background(), "run-5", "add a widget")
	require.NoError(t, err)
	assert.Equal(t, 1, graph.Len())
}

func TestSubstituteHandlesAllThreeForms(t *testing.T) {
	values := map[string]string{"entity": "Product"}
	assert.Equal(t, "Product", substitute("{{entity}}", values))
	assert.Equal(t, "product", substitute("{{entity_lower}}", values))
	assert.Equal(t, "PRODUCT", substitute("{{entity_upper}}", values))
	assert.Equal(t, "{{other}}", substitute("{{other}}", values))
}
