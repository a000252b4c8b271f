package planner

import "fmt"

var personaVoice = map[string]string{
	"architect":  "Favor a clean, extensible structure even if it costs an extra artifact.",
	"critic":     "Be skeptical of the obvious approach; look for what the straightforward plan misses.",
	"simplifier": "Produce the smallest graph that could possibly satisfy the goal.",
	"adversary":  "Assume the straightforward plan is wrong; design to survive the nastiest edge case.",
	"pragmatist": "Optimize for the fastest path to a working, validated result.",
}

const graphResponseContract = `Respond with a single JSON object and nothing else:
{"artifacts": [{"id": "...", "description": "...", "produces": ["path", ...], "requires": ["other artifact id", ...], "validation_commands": ["shell command", ...]}]}
Every "requires" entry must name another artifact's "id" in this same response. Every "produces" path must be unique across all artifacts.`

func systemPromptFor(strat VarianceStrategy) string {
	switch strat.Kind {
	case StrategyPrompting:
		voice := personaVoice[strat.Persona]
		return fmt.Sprintf("You are planning a software change as the %s. %s\n%s", strat.Persona, voice, graphResponseContract)
	case StrategyTemperature:
		return "You are planning a software change.\n" + graphResponseContract
	default:
		return "You are planning a software change.\n" + graphResponseContract
	}
}

func userPromptFor(strat VarianceStrategy, goalText, preamble string) string {
	if preamble == "" {
		return fmt.Sprintf("Goal: %s\n\nProduce the artifact graph.", goalText)
	}
	return fmt.Sprintf("Goal: %s\n\n%s\nProduce the artifact graph.", goalText, preamble)
}

const refineSystemPrompt = "You are revising an artifact graph for a software change given scoring commentary.\n" + graphResponseContract

func refineUserPrompt(goalText, preamble string, graph interface{ IDs() []string }) string {
	return fmt.Sprintf(
		"Goal: %s\n\n%s\nThe current graph has %d artifacts. Revise it to reduce complexity and artifact count where possible while still satisfying the goal. Produce the revised artifact graph.",
		goalText, preamble, len(graph.IDs()),
	)
}
