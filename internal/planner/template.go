package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sunwell/internal/domain"
)

// planFromTemplate builds an ArtifactGraph directly from a matched
// template learning, skipping candidate generation entirely (spec.md §4.5,
// §8 scenario S5). Variables are extracted by one LLM call, then
// substituted with {{var}}, {{var_lower}}, {{var_upper}} only — the other
// brace forms seen in the source look like typos and are not supported
// (spec.md §9 open question, resolved in SPEC_FULL §D).
func (p *Planner) planFromTemplate(ctx context.Context, goalText string, tmpl domain.Learning) (*domain.ArtifactGraph, map[string]string, error) {
	td := tmpl.Template
	variables, err := p.extractVariables(ctx, goalText, td.Variables)
	if err != nil {
		return nil, nil, err
	}

	graph := domain.NewArtifactGraph()
	produces := substituteAll(td.ExpectedArtifacts, variables)
	requires := substituteAll(td.Requires, variables)
	validations := substituteAll(td.ValidationCommands, variables)

	// Requires in template data names a produced path, not an artifact id
	// (the template predates ids); resolve path -> id once every artifact's
	// id is known.
	ids := make([]string, len(produces))
	idForPath := make(map[string]string, len(produces))
	for i, path := range produces {
		id := fmt.Sprintf("artifact-%d", i)
		ids[i] = id
		idForPath[path] = id
	}

	for i, path := range produces {
		var reqs []string
		if i < len(requires) && requires[i] != "" {
			if reqID, ok := idForPath[requires[i]]; ok {
				reqs = []string{reqID}
			}
		}
		var vcmds []string
		if i < len(validations) && validations[i] != "" {
			vcmds = []string{validations[i]}
		}
		if err := graph.Add(domain.ArtifactSpec{
			ID:                 ids[i],
			Description:        fmt.Sprintf("produce %s from template %s", path, td.Name),
			Produces:           []string{path},
			Requires:           reqs,
			ValidationCommands: vcmds,
		}); err != nil {
			return nil, nil, fmt.Errorf("planner: template %s: %w", td.Name, err)
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, nil, fmt.Errorf("planner: template %s: %w", td.Name, err)
	}
	return graph, variables, nil
}

func (p *Planner) extractVariables(ctx context.Context, goalText string, vars []domain.TemplateVariable) (map[string]string, error) {
	if len(vars) == 0 {
		return map[string]string{}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nExtract these variables from the goal and respond with a single JSON object mapping variable name to value:\n", goalText)
	for _, v := range vars {
		fmt.Fprintf(&b, "- %s (%s): %s\n", v.Name, v.Type, v.ExtractionHints)
	}

	raw, err := p.llm.Complete(ctx, "You extract template variables from a stated goal. Respond with JSON only.", b.String())
	if err != nil {
		return nil, fmt.Errorf("planner: extract template variables: %w", err)
	}

	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("planner: no JSON object in variable extraction response")
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(body), &values); err != nil {
		return nil, fmt.Errorf("planner: parse extracted variables: %w", err)
	}
	return values, nil
}

// substitute replaces {{var}}, {{var_lower}}, {{var_upper}} in s using
// values. Any other brace form is left untouched.
func substitute(s string, values map[string]string) string {
	for name, value := range values {
		s = strings.ReplaceAll(s, "{{"+name+"}}", value)
		s = strings.ReplaceAll(s, "{{"+name+"_lower}}", strings.ToLower(value))
		s = strings.ReplaceAll(s, "{{"+name+"_upper}}", strings.ToUpper(value))
	}
	return s
}

func substituteAll(items []string, values map[string]string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = substitute(s, values)
	}
	return out
}
