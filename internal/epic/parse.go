package epic

import (
	"encoding/json"
	"fmt"
	"strings"

	"sunwell/internal/domain"
)

// extractJSON returns the first top-level {...} object found in raw,
// unwrapping a ```json fenced block if present.
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

// parseMilestones extracts and decodes the LLM's milestone-list response.
func parseMilestones(raw string) ([]milestoneJSON, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("epic: no JSON object found in decomposition response")
	}
	var resp decomposeResponseJSON
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("epic: parse decomposition JSON: %w", err)
	}
	if len(resp.Milestones) == 0 {
		return nil, fmt.Errorf("epic: decomposition produced no milestones")
	}
	return resp.Milestones, nil
}

// toGoals converts the LLM's milestone list into domain.Goal values, one
// per milestone, namespacing ids and resolving requires against the
// LLM-assigned ids (spec.md §4.6). Returns an error if any requires names
// an id absent from the same response, rather than silently dropping it,
// so the caller's dangling-requires check actually has something to catch.
func toGoals(epicID string, milestones []milestoneJSON) ([]domain.Goal, error) {
	idFor := make(map[string]string, len(milestones))
	for i, m := range milestones {
		idFor[m.ID] = fmt.Sprintf("%s-milestone-%d", epicID, i)
	}

	goals := make([]domain.Goal, len(milestones))
	for i, m := range milestones {
		requires := make(map[string]struct{}, len(m.Requires))
		for _, r := range m.Requires {
			id, ok := idFor[r]
			if !ok {
				return nil, fmt.Errorf("epic: milestone %q requires unknown milestone %q", m.ID, r)
			}
			requires[id] = struct{}{}
		}
		goals[i] = domain.Goal{
			ID:           idFor[m.ID],
			Description:  fmt.Sprintf("%s: %s", m.Title, m.Description),
			Type:         domain.GoalTypeMilestone,
			ParentGoalID: epicID,
			Requires:     requires,
			Produces:     m.Produces,
			MilestoneIdx: i,
		}
	}
	return goals, nil
}

// ValidateMilestones checks that the milestone DAG is acyclic (spec.md
// §4.6). It does not check that requires resolve: toGoals already returns
// an error for a requires entry naming an unknown milestone, so Decompose
// never reaches this check with a dangling requires.
func ValidateMilestones(goals []domain.Goal) error {
	b := domain.NewBacklog()
	for _, g := range goals {
		if err := b.Add(g); err != nil {
			return fmt.Errorf("epic: %w", err)
		}
	}
	return nil
}
