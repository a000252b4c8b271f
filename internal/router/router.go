// Package router implements the Adaptive Router (spec.md §4.11): a single
// LLM call producing structured signals, short-circuited into one of five
// routes. Grounded on the teacher's DreamRouter dispatch-by-type shape
// (dream_router.go), generalized from learning-destination routing to
// goal-strategy routing.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
)

// Route is the Adaptive Router's output (GLOSSARY).
type Route string

const (
	RouteStop         Route = "STOP"
	RouteDialectic    Route = "DIALECTIC"
	RouteHierarchical Route = "HIERARCHICAL"
	RouteHarmonic     Route = "HARMONIC"
	RouteSingleShot   Route = "SINGLE_SHOT"
)

// Complexity is the router's coarse complexity signal.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Signals is the structured output of the single classification LLM call.
type Signals struct {
	IsDangerous bool       `json:"is_dangerous"`
	IsAmbiguous bool       `json:"is_ambiguous"`
	IsEpic      bool       `json:"is_epic"`
	Complexity  Complexity `json:"complexity"`
	Confidence  float64    `json:"confidence"`
	Reason      string     `json:"reason"`
}

// Classification is classify's full result: the chosen route plus the
// signals it was derived from, so callers and observers can inspect why.
type Classification struct {
	Route   Route
	Signals Signals
}

const systemPrompt = `You are the routing classifier for an autonomous coding agent. Given a goal, assess it and respond with a single JSON object and nothing else:
{"is_dangerous": bool, "is_ambiguous": bool, "is_epic": bool, "complexity": "low"|"medium"|"high", "confidence": 0.0-1.0, "reason": "one sentence"}
is_dangerous: true if executing this goal unsupervised could cause irreversible harm (data loss, destructive production changes, credential exposure).
is_ambiguous: true if the goal lacks enough detail to plan without guessing at the user's intent.
is_epic: true if the goal is ambitious enough to need a milestone breakdown rather than a single task graph.
complexity: overall estimated difficulty of satisfying the goal.
confidence: your confidence in this classification.`

// Router classifies goals into execution routes.
type Router struct {
	llm llmclient.Client
}

// New constructs a Router.
func New(llm llmclient.Client) *Router {
	return &Router{llm: llm}
}

// Classify implements spec.md §4.11's short-circuiting routing order.
// Ties and ambiguities default to HARMONIC, "the safe center of the
// spectrum" — so any classification failure also defaults to HARMONIC
// rather than propagating an error, since there is always a safe route to
// fall back to.
func (r *Router) Classify(ctx context.Context, goalText string) Classification {
	timer := logging.StartTimer(logging.CategoryRouter, "Classify")
	defer timer.Stop()

	signals, err := r.classifySignals(ctx, goalText)
	if err != nil {
		logging.Get(logging.CategoryRouter).Warn("router: classification failed, defaulting to HARMONIC: %v", err)
		return Classification{Route: RouteHarmonic, Signals: Signals{Reason: "classification failed: " + err.Error()}}
	}

	route := route(signals)
	logging.Get(logging.CategoryRouter).Info("routed %q -> %s (complexity=%s confidence=%.2f)", truncateGoal(goalText), route, signals.Complexity, signals.Confidence)
	return Classification{Route: route, Signals: signals}
}

func route(s Signals) Route {
	switch {
	case s.IsDangerous:
		return RouteStop
	case s.IsAmbiguous:
		return RouteDialectic
	case s.IsEpic:
		return RouteHierarchical
	case s.Complexity == ComplexityLow && s.Confidence >= 0.8:
		return RouteSingleShot
	default:
		return RouteHarmonic
	}
}

func (r *Router) classifySignals(ctx context.Context, goalText string) (Signals, error) {
	raw, err := r.llm.Complete(ctx, systemPrompt, fmt.Sprintf("Goal: %s", goalText))
	if err != nil {
		return Signals{}, fmt.Errorf("router: %w", err)
	}
	body := extractJSON(raw)
	if body == "" {
		return Signals{}, fmt.Errorf("router: no JSON object in classification response")
	}
	var s Signals
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return Signals{}, fmt.Errorf("router: parse classification: %w", err)
	}
	switch s.Complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		s.Complexity = ComplexityMedium
	}
	return s, nil
}

func extractJSON(raw string) string {
	s := raw
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func truncateGoal(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
