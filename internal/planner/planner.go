package planner

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"sunwell/internal/domain"
	"sunwell/internal/events"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
	"sunwell/internal/sunerr"
)

// Planner implements the Harmonic Planner (spec.md §4.5).
type Planner struct {
	llm              llmclient.Client
	knowledge        KnowledgeReader
	bus              *events.Bus
	candidates       int
	refinementRounds int
	limitPerCategory int
	strategies       []VarianceStrategy
}

// New constructs a Planner. knowledge may be nil to skip knowledge
// retrieval and template matching entirely.
func New(llm llmclient.Client, knowledge KnowledgeReader, bus *events.Bus, candidates, refinementRounds, limitPerCategory int) *Planner {
	if candidates <= 0 {
		candidates = 5
	}
	strategies := DefaultStrategies()
	if candidates != len(strategies) {
		strategies = expandStrategies(strategies, candidates)
	}
	return &Planner{
		llm:              llm,
		knowledge:        knowledge,
		bus:              bus,
		candidates:       candidates,
		refinementRounds: refinementRounds,
		limitPerCategory: limitPerCategory,
		strategies:       strategies,
	}
}

func expandStrategies(base []VarianceStrategy, n int) []VarianceStrategy {
	out := make([]VarianceStrategy, n)
	for i := 0; i < n; i++ {
		out[i] = base[i%len(base)]
	}
	return out
}

// Plan runs the Harmonic Planner for one goal: template mode if a matching
// template learning exists, else standard multi-candidate mode followed by
// up to refinementRounds refinement passes.
func (p *Planner) Plan(ctx context.Context, runID, goalText string) (*domain.ArtifactGraph, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "Plan")
	defer timer.Stop()

	var pc domain.PlanningContext
	if p.knowledge != nil {
		var err error
		pc, err = p.knowledge.RetrieveForPlanning(ctx, goalText, p.limitPerCategory)
		if err != nil {
			logging.Get(logging.CategoryPlanner).Warn("planner: knowledge retrieval failed, continuing without it: %v", err)
		}
	}

	if tmpl := pc.BestTemplate(goalText); tmpl != nil {
		graph, variables, err := p.planFromTemplate(ctx, goalText, *tmpl)
		if err != nil {
			return nil, err
		}
		p.emit(runID, events.TypeTemplateMatched, map[string]any{
			"template":  tmpl.Template.Name,
			"variables": variables,
		})
		return graph, nil
	}

	preamble := renderPreamble(pc)
	graph, err := p.planStandard(ctx, runID, goalText, preamble)
	if err != nil {
		return nil, err
	}

	for round := 1; round <= p.refinementRounds; round++ {
		refined, delta, err := p.refine(ctx, runID, round, goalText, preamble, graph)
		if err != nil {
			logging.Get(logging.CategoryPlanner).Warn("planner: refinement round %d failed, keeping prior graph: %v", round, err)
			break
		}
		graph = refined
		if delta <= 0 {
			break
		}
	}

	return graph, nil
}

func (p *Planner) planStandard(ctx context.Context, runID, goalText, preamble string) (*domain.ArtifactGraph, error) {
	candidates := make([]Candidate, len(p.strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, strat := range p.strategies {
		i, strat := i, strat
		g.Go(func() error {
			raw, err := p.llm.Complete(gctx, systemPromptFor(strat), userPromptFor(strat, goalText, preamble))
			if err != nil {
				candidates[i] = Candidate{Strategy: strat, Err: err}
				return nil
			}
			graph, err := parseGraph(raw)
			if err != nil {
				candidates[i] = Candidate{Strategy: strat, RawResponse: raw, Err: err}
				return nil
			}
			s, rounds := score(graph)
			candidates[i] = Candidate{
				Strategy:        strat,
				Graph:           graph,
				Score:           s,
				ArtifactCount:   graph.Len(),
				EstimatedRounds: rounds,
				RawResponse:     raw,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		data := map[string]any{"persona": c.Strategy.Persona, "strategy": string(c.Strategy.Kind)}
		if c.Err != nil {
			data["error"] = c.Err.Error()
			p.emit(runID, events.TypePlanCandidateGenerated, data)
			continue
		}
		p.emit(runID, events.TypePlanCandidateGenerated, data)
		p.emit(runID, events.TypePlanCandidateScored, map[string]any{
			"persona":          c.Strategy.Persona,
			"score":            c.Score,
			"artifact_count":   c.ArtifactCount,
			"estimated_rounds": c.EstimatedRounds,
		})
	}

	winner, ok := pickWinner(candidates)
	if !ok {
		return nil, sunerr.Planning(fmt.Sprintf("all %d candidates failed to produce a valid graph", len(candidates)), nil)
	}

	p.emit(runID, events.TypePlanWinner, map[string]any{
		"persona":        winner.Strategy.Persona,
		"score":          winner.Score,
		"artifact_count": winner.ArtifactCount,
	})
	return winner.Graph, nil
}

func (p *Planner) refine(ctx context.Context, runID string, round int, goalText, preamble string, graph *domain.ArtifactGraph) (*domain.ArtifactGraph, float64, error) {
	before, _ := score(graph)
	p.emit(runID, events.TypePlanRefineStart, map[string]any{"round": round, "score": before})

	raw, err := p.llm.Complete(ctx, refineSystemPrompt, refineUserPrompt(goalText, preamble, graph))
	if err != nil {
		return nil, 0, err
	}
	refined, err := parseGraph(raw)
	if err != nil {
		return nil, 0, err
	}
	after, _ := score(refined)

	p.emit(runID, events.TypePlanRefineDone, map[string]any{"round": round, "score": after, "delta": after - before})
	return refined, after - before, nil
}

func (p *Planner) emit(runID string, t events.Type, data map[string]any) {
	if p.bus == nil {
		return
	}
	p.bus.Broadcast(events.New(t, runID, events.SourceCLI, data))
}

func renderPreamble(pc domain.PlanningContext) string {
	var b strings.Builder
	write := func(label string, ls []domain.Learning) {
		if len(ls) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", label)
		for _, l := range ls {
			fmt.Fprintf(&b, "- %s\n", l.Fact)
		}
	}
	write("Facts", pc.Facts)
	write("Preferences", pc.Preferences)
	write("Constraints", pc.Constraints)
	write("Dead ends (avoid repeating)", pc.DeadEnds)
	write("Heuristics", pc.Heuristics)
	return b.String()
}
