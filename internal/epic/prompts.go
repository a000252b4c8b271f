package epic

import "fmt"

var domainFraming = map[Domain]string{
	DomainSoftware: "Decompose into subsystems: the natural vertical or horizontal slices of a software system (e.g. data layer, API surface, auth, UI).",
	DomainNovel:    "Decompose into the natural structure of long-form fiction: world-building, character arcs, acts.",
	DomainResearch: "Decompose into the natural structure of an investigation: hypothesis formation, method design, data collection, analysis, write-up.",
	DomainGeneral:  "Decompose into the natural phases this kind of ambitious goal breaks into.",
}

const milestoneResponseContract = `Respond with a single JSON object and nothing else:
{"milestones": [{"id": "...", "title": "...", "description": "...", "produces": ["high-level artifact name", ...], "requires": ["other milestone id", ...]}]}
Produce between 5 and 15 milestones. "produces" names artifact categories, not file paths. Every "requires" entry must name another milestone's "id" in this same response.`

func decomposeSystemPrompt(d Domain) string {
	return fmt.Sprintf("You are decomposing an ambitious goal into milestones.\n%s\n%s", domainFraming[d], milestoneResponseContract)
}

func decomposeUserPrompt(goalText string) string {
	return fmt.Sprintf("Goal: %s\n\nProduce the milestone list.", goalText)
}

const detectDomainSystemPrompt = `Classify the domain of a stated goal. Respond with a single JSON object and nothing else:
{"domain": "software" | "novel" | "research" | "general"}
"software" is any goal about building, fixing, or changing a software system. "novel" is long-form creative fiction. "research" is a scientific or analytical investigation. "general" is everything else.`

func detectDomainUserPrompt(goalText string) string {
	return fmt.Sprintf("Goal: %s", goalText)
}

const extractLearningsSystemPrompt = `Extract durable learnings from a completed piece of work. Respond with a single JSON object and nothing else:
{"learnings": [{"fact": "...", "category": "fact" | "preference" | "constraint" | "pattern" | "dead_end" | "heuristic", "confidence": 0.0-1.0}]}
Only extract facts that would help plan future, related work. If nothing is worth keeping, return an empty list.`

func extractLearningsUserPrompt(goalText string, artifacts map[string]string) string {
	s := fmt.Sprintf("Completed goal: %s\n\nArtifacts produced:\n", goalText)
	for path, content := range artifacts {
		s += fmt.Sprintf("--- %s ---\n%s\n", path, truncate(content, 2000))
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
