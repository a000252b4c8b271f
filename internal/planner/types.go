// Package planner implements the Harmonic Planner (spec.md §4.5): standard
// mode generates N persona-varied candidate ArtifactGraphs in parallel and
// scores them to pick a winner ("refraction" then "synthesis", GLOSSARY);
// template mode short-circuits straight to a graph when a matching
// knowledge template exists. Grounded on the teacher's dream_plan.go plan
// lifecycle shape and dream_router.go's classification style, generalized
// from Dream-State hypothetical exploration to committed execution
// planning.
package planner

import (
	"context"

	"sunwell/internal/domain"
)

// StrategyKind tags one candidate-generation variant (spec.md §9: "dynamic
// dispatch over persona variance... as a tagged variant, not inheritance").
type StrategyKind string

const (
	StrategyPrompting   StrategyKind = "prompting"
	StrategyTemperature StrategyKind = "temperature"
	StrategyMultiRound  StrategyKind = "multi_round"
)

// VarianceStrategy is one way of generating a candidate. The planner holds
// an ordered list; each candidate picks one deterministically by index.
type VarianceStrategy struct {
	Kind        StrategyKind
	Persona     string  // used when Kind == StrategyPrompting
	Temperature float64 // used when Kind == StrategyTemperature
	Rounds      int     // used when Kind == StrategyMultiRound
}

// DefaultStrategies is the five-persona standard-mode roster from spec.md
// §4.5.
func DefaultStrategies() []VarianceStrategy {
	return []VarianceStrategy{
		{Kind: StrategyPrompting, Persona: "architect"},
		{Kind: StrategyPrompting, Persona: "critic"},
		{Kind: StrategyPrompting, Persona: "simplifier"},
		{Kind: StrategyPrompting, Persona: "adversary"},
		{Kind: StrategyPrompting, Persona: "pragmatist"},
	}
}

// Candidate is one scored planning attempt.
type Candidate struct {
	Strategy        VarianceStrategy
	Graph           *domain.ArtifactGraph
	Score           float64
	ArtifactCount   int
	EstimatedRounds int
	RawResponse     string
	Err             error
}

// KnowledgeReader is the read-only slice of internal/knowledge.Store the
// planner depends on (spec.md §9: "passing the store as a dependency to
// the planner (read-only interface)... no back-pointer from store to
// planner").
type KnowledgeReader interface {
	RetrieveForPlanning(ctx context.Context, goalText string, limitPerCategory int) (domain.PlanningContext, error)
}
