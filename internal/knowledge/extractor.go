package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sunwell/internal/domain"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
)

// extractResponseJSON mirrors the JSON contract every LLM-driven component
// in this module uses (planner, epic, router, convergence): a single
// top-level object, parsed with extractJSON + json.Unmarshal.
type extractResponseJSON struct {
	Learnings []struct {
		Fact       string  `json:"fact"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"learnings"`
}

const extractSystemPrompt = `You extract reusable knowledge from a completed coding task.
Respond with a single JSON object and nothing else:
{"learnings": [{"fact": "...", "category": "fact"|"pattern"|"heuristic", "confidence": 0.0-1.0}, ...]}
Only extract facts that would help with a similar future task. Omit anything specific to this one run only.`

func extractUserPrompt(goalText string, artifacts map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nArtifacts produced:\n", goalText)
	for path, content := range artifacts {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", path, truncateContent(content, 2000))
	}
	return b.String()
}

func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
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

func categoryFromString(s string) domain.LearningCategory {
	switch domain.LearningCategory(s) {
	case domain.CategoryFact, domain.CategoryPattern, domain.CategoryHeuristic:
		return domain.LearningCategory(s)
	default:
		return domain.CategoryFact
	}
}

// ExtractOnSuccess turns a completed run's goal and produced artifacts into
// fact/pattern/heuristic Learnings (spec.md §4.10 step 5; SPEC_FULL §C.1),
// via the same single-LLM-call JSON-contract pattern used by the epic
// tracker, planner, and router. Returns an empty slice (not an error) on an
// unparseable or empty LLM response — extraction is best-effort and never
// blocks the orchestrator's success path.
func ExtractOnSuccess(ctx context.Context, llm llmclient.Client, goalText string, artifacts map[string]string) ([]domain.Learning, error) {
	if llm == nil || len(artifacts) == 0 {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryKnowledge, "ExtractOnSuccess")
	defer timer.Stop()

	raw, err := llm.Complete(ctx, extractSystemPrompt, extractUserPrompt(goalText, artifacts))
	if err != nil {
		logging.Get(logging.CategoryKnowledge).Warn("learning extraction LLM call failed: %v", err)
		return nil, nil
	}
	body := extractJSON(raw)
	if body == "" {
		return nil, nil
	}
	var resp extractResponseJSON
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		logging.Get(logging.CategoryKnowledge).Warn("learning extraction response unparseable: %v", err)
		return nil, nil
	}

	out := make([]domain.Learning, 0, len(resp.Learnings))
	for _, l := range resp.Learnings {
		if strings.TrimSpace(l.Fact) == "" {
			continue
		}
		out = append(out, domain.NewLearning(l.Fact, categoryFromString(l.Category), l.Confidence))
	}
	return out, nil
}

// ExtractDeadEnd derives a dead_end Learning directly from a failed run's
// failure_reason (spec.md §4.10 step 5): unlike the success path, this is a
// deterministic string derivation with no LLM call — a failure reason is
// already a fact ("X did not work because Y"), nothing to extract further.
func ExtractDeadEnd(goalText, failureReason string) domain.Learning {
	fact := fmt.Sprintf("attempting %q failed: %s", goalText, failureReason)
	return domain.NewLearning(fact, domain.CategoryDeadEnd, 0.5)
}
