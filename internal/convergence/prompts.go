package convergence

import (
	"fmt"
	"strings"

	"sunwell/internal/domain"
)

const generateResponseContract = `Respond with a single JSON object and nothing else:
{"tool_calls": [{"name": "create_file", "arguments": {"path": "...", "content": "..."}}, ...]}
Use create_file for every artifact you produce this iteration. Use run_command to validate your own work if helpful.`

func generateSystemPrompt() string {
	return "You are generating the artifacts for one iteration of an autonomous coding task.\n" + generateResponseContract
}

func generateUserPrompt(goalText string, graph *domain.ArtifactGraph, preamble string, feedback *Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goalText)
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n")
	}
	b.WriteString("Artifacts to produce:\n")
	for _, id := range graph.IDs() {
		spec, _ := graph.Get(id)
		fmt.Fprintf(&b, "- %s: %s (produces: %s)\n", spec.ID, spec.Description, strings.Join(spec.Produces, ", "))
	}
	if feedback != nil && len(feedback.Messages) > 0 {
		fmt.Fprintf(&b, "\nIteration %d validation failures — fix these:\n", feedback.Iteration)
		for _, m := range feedback.Messages {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	b.WriteString("\nProduce the tool calls for this iteration.")
	return b.String()
}
