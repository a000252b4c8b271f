package epic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sunwell/internal/domain"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
)

// Tracker is the Milestone Tracker (spec.md §4.6): a thin state machine
// over a Backlog of milestone Goals, advancing the active milestone,
// extracting learnings from its completed artifacts, and recording them
// before the caller re-invokes the planner for the next milestone.
// Grounded on the teacher's mutex-guarded DreamPlanManager
// (dream_plan_manager.go), generalized from dream-subtask tracking to
// milestone tracking.
type Tracker struct {
	mu       sync.RWMutex
	epicID   string
	backlog  *domain.Backlog
	active   string // goal id of the active milestone, "" if none started
	total    int
	done     int
	llm      llmclient.Client
	recorder LearningRecorder // may be nil to skip persistence
}

// NewTracker builds a Tracker over a decomposed milestone list. The first
// eligible milestone becomes active immediately.
func NewTracker(epicID string, milestones []domain.Goal, llm llmclient.Client, recorder LearningRecorder) (*Tracker, error) {
	backlog := domain.NewBacklog()
	for _, g := range milestones {
		if err := backlog.Add(g); err != nil {
			return nil, fmt.Errorf("epic: tracker: %w", err)
		}
	}
	t := &Tracker{epicID: epicID, backlog: backlog, total: len(milestones), llm: llm, recorder: recorder}
	t.advanceLocked()
	return t, nil
}

// ActiveMilestone returns the currently active milestone goal, or false if
// every milestone is complete.
func (t *Tracker) ActiveMilestone() (domain.Goal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == "" {
		return domain.Goal{}, false
	}
	return t.backlog.Get(t.active)
}

// Progress returns (completed, total) milestone counts.
func (t *Tracker) Progress() (int, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done, t.total
}

// IsComplete reports whether every milestone has been completed.
func (t *Tracker) IsComplete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active == "" && t.backlog.InProgress() == ""
}

// CompleteActive marks the active milestone complete, extracts and records
// learnings from its produced artifacts, and advances to the next eligible
// milestone (spec.md §4.6: "advances active_milestone, extracts learnings
// from completed artifacts, and re-invokes the planner... with enriched
// context"). artifacts maps produced path to content.
func (t *Tracker) CompleteActive(ctx context.Context, artifacts map[string]string) ([]domain.Learning, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == "" {
		return nil, fmt.Errorf("epic: tracker: no active milestone to complete")
	}
	goal, _ := t.backlog.Get(t.active)
	t.backlog.Complete(t.active)
	t.done++
	logging.Get(logging.CategoryEpic).Info("milestone complete: %s (%d/%d)", t.active, t.done, t.total)
	t.active = ""

	learnings, err := t.extractLearnings(ctx, goal.Description, artifacts)
	if err != nil {
		logging.Get(logging.CategoryEpic).Warn("epic: learning extraction failed for %s: %v", goal.ID, err)
		learnings = nil
	}
	if t.recorder != nil {
		for _, l := range learnings {
			if err := t.recorder.AddLearning(ctx, l); err != nil {
				logging.Get(logging.CategoryEpic).Warn("epic: record learning failed: %v", err)
			}
		}
	}

	t.advanceLocked()
	return learnings, nil
}

// advanceLocked picks the next eligible milestone as active. Caller must
// hold t.mu.
func (t *Tracker) advanceLocked() {
	eligible := t.backlog.EligibleGoals()
	if len(eligible) == 0 {
		t.active = ""
		return
	}
	next := eligible[0]
	if err := t.backlog.StartInProgress(next); err != nil {
		logging.Get(logging.CategoryEpic).Error("epic: tracker: advance failed: %v", err)
		t.active = ""
		return
	}
	t.active = next
}

func (t *Tracker) extractLearnings(ctx context.Context, goalText string, artifacts map[string]string) ([]domain.Learning, error) {
	if t.llm == nil || len(artifacts) == 0 {
		return nil, nil
	}
	raw, err := t.llm.Complete(ctx, extractLearningsSystemPrompt, extractLearningsUserPrompt(goalText, artifacts))
	if err != nil {
		return nil, fmt.Errorf("epic: extract learnings: %w", err)
	}
	body := extractJSON(raw)
	if body == "" {
		return nil, nil
	}
	var resp extractResponseJSON
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("epic: parse extracted learnings: %w", err)
	}

	out := make([]domain.Learning, 0, len(resp.Learnings))
	for _, lj := range resp.Learnings {
		cat := domain.LearningCategory(lj.Category)
		switch cat {
		case domain.CategoryFact, domain.CategoryPreference, domain.CategoryConstraint,
			domain.CategoryPattern, domain.CategoryDeadEnd, domain.CategoryHeuristic:
		default:
			cat = domain.CategoryFact
		}
		out = append(out, domain.NewLearning(lj.Fact, cat, lj.Confidence))
	}
	return out, nil
}
