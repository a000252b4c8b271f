package convergence

import (
	"encoding/json"
	"fmt"
	"strings"
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

func parseToolCalls(raw string) ([]toolCallJSON, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("convergence: no JSON object in generate response")
	}
	var resp generateResponseJSON
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("convergence: parse generate response: %w", err)
	}
	return resp.ToolCalls, nil
}
