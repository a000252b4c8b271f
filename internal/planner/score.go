package planner

import "sunwell/internal/domain"

// score rates a candidate graph on artifact-count, acyclicity (validated
// upstream by parseGraph so always true here), produce/require closure
// (also validated), and a complexity estimate (spec.md §4.5). Higher is
// better.
func score(graph *domain.ArtifactGraph) (total float64, estimatedRounds int) {
	n := graph.Len()
	if n == 0 {
		return 0, 0
	}

	complexity := 0
	for _, id := range graph.IDs() {
		spec, _ := graph.Get(id)
		complexity += len(spec.ValidationCommands) + len(spec.Requires)
	}

	// Fewer artifacts and lower complexity score higher. The artifact term
	// is the raw count; the complexity term is normalized against the
	// artifact count so a 10-artifact graph isn't unfairly penalized just
	// for having more validation commands.
	artifactPenalty := float64(n)
	complexityPenalty := float64(complexity) / float64(n)

	total = 100.0 - artifactPenalty - complexityPenalty
	estimatedRounds = 1 + complexity/max(n, 1)
	return total, estimatedRounds
}

// pickWinner selects the highest-scoring candidate, tie-breaking on lowest
// artifact count then lowest estimated iterations (spec.md §4.5).
func pickWinner(candidates []Candidate) (Candidate, bool) {
	var winner Candidate
	found := false
	for _, c := range candidates {
		if c.Err != nil {
			continue
		}
		if !found {
			winner, found = c, true
			continue
		}
		switch {
		case c.Score > winner.Score:
			winner = c
		case c.Score == winner.Score && c.ArtifactCount < winner.ArtifactCount:
			winner = c
		case c.Score == winner.Score && c.ArtifactCount == winner.ArtifactCount && c.EstimatedRounds < winner.EstimatedRounds:
			winner = c
		}
	}
	return winner, found
}
