package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"sunwell/internal/domain"
)

// artifactSpecJSON is the wire shape the LLM is asked to emit for one
// artifact in a candidate graph.
type artifactSpecJSON struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	Produces           []string `json:"produces"`
	Requires           []string `json:"requires"`
	ValidationCommands []string `json:"validation_commands"`
}

type graphJSON struct {
	Artifacts []artifactSpecJSON `json:"artifacts"`
}

// parseGraph extracts a JSON object (possibly fenced in a ```json block)
// from raw and builds a validated domain.ArtifactGraph from it.
func parseGraph(raw string) (*domain.ArtifactGraph, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("planner: no JSON object found in response")
	}

	var gj graphJSON
	if err := json.Unmarshal([]byte(body), &gj); err != nil {
		return nil, fmt.Errorf("planner: parse graph JSON: %w", err)
	}
	if len(gj.Artifacts) == 0 {
		return nil, fmt.Errorf("planner: candidate graph has no artifacts")
	}

	graph := domain.NewArtifactGraph()
	for _, a := range gj.Artifacts {
		if a.ID == "" {
			return nil, fmt.Errorf("planner: artifact with empty id")
		}
		if err := graph.Add(domain.ArtifactSpec{
			ID:                 a.ID,
			Description:        a.Description,
			Produces:           a.Produces,
			Requires:           a.Requires,
			ValidationCommands: a.ValidationCommands,
		}); err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return graph, nil
}

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
