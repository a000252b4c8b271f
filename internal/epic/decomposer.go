package epic

import (
	"context"
	"encoding/json"
	"fmt"

	"sunwell/internal/domain"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
)

// Decomposer implements the Epic Decomposer (spec.md §4.6).
type Decomposer struct {
	llm llmclient.Client
}

// New constructs a Decomposer.
func New(llm llmclient.Client) *Decomposer {
	return &Decomposer{llm: llm}
}

// DetectDomain classifies a goal so Decompose can pick a domain-specialized
// prompt. Falls back to DomainGeneral on any LLM or parse failure — domain
// detection is an optimization, not a gate.
func (d *Decomposer) DetectDomain(ctx context.Context, goalText string) Domain {
	raw, err := d.llm.Complete(ctx, detectDomainSystemPrompt, detectDomainUserPrompt(goalText))
	if err != nil {
		logging.Get(logging.CategoryEpic).Warn("epic: detect_domain failed, defaulting to general: %v", err)
		return DomainGeneral
	}
	body := extractJSON(raw)
	if body == "" {
		return DomainGeneral
	}
	var resp struct {
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return DomainGeneral
	}
	switch Domain(resp.Domain) {
	case DomainSoftware, DomainNovel, DomainResearch:
		return Domain(resp.Domain)
	default:
		return DomainGeneral
	}
}

// Decompose produces the milestone Goal list for an epic (spec.md §4.6).
// It does not itself retry or fall back to flat planning on an invalid
// result — that retry-once-then-fallback policy belongs to the caller
// (the Agent Orchestrator), which is better placed to decide when to give
// up on hierarchical decomposition entirely.
func (d *Decomposer) Decompose(ctx context.Context, epicID, goalText string, dom Domain) ([]domain.Goal, error) {
	timer := logging.StartTimer(logging.CategoryEpic, "epic.Decompose")
	defer timer.Stop()

	raw, err := d.llm.Complete(ctx, decomposeSystemPrompt(dom), decomposeUserPrompt(goalText))
	if err != nil {
		return nil, fmt.Errorf("epic: decompose: %w", err)
	}
	milestones, err := parseMilestones(raw)
	if err != nil {
		return nil, err
	}
	goals, err := toGoals(epicID, milestones)
	if err != nil {
		return nil, err
	}
	if err := ValidateMilestones(goals); err != nil {
		return nil, err
	}
	return goals, nil
}
