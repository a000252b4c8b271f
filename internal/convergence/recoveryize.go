package convergence

import (
	"sunwell/internal/domain"
	"sunwell/internal/gates"
)

// buildRecoveryArtifacts partitions every path the graph expects to
// produce into passed/failed/waiting per spec.md §4.9: files that passed
// every gate are "passed", files named in a failing gate message are
// "failed", and files whose owning artifact requires a failed artifact are
// "waiting" (not yet attempted, blocked on a dependency that needs fixing
// first).
func buildRecoveryArtifacts(graph *domain.ArtifactGraph, contents map[string]string, result gates.PipelineResult) []domain.RecoveryArtifact {
	failingPaths := make(map[string]struct{})
	errorsByPath := make(map[string][]string)
	for _, r := range result.Results {
		if !r.Failed() {
			continue
		}
		for _, m := range r.Messages {
			if m.Severity != gates.SeverityError {
				continue
			}
			failingPaths[m.Path] = struct{}{}
			errorsByPath[m.Path] = append(errorsByPath[m.Path], m.Message)
		}
	}

	failingArtifact := make(map[string]bool, graph.Len())
	for _, id := range graph.IDs() {
		spec, _ := graph.Get(id)
		for _, p := range spec.Produces {
			if _, bad := failingPaths[p]; bad {
				failingArtifact[id] = true
				break
			}
		}
	}

	var out []domain.RecoveryArtifact
	for _, id := range graph.IDs() {
		spec, _ := graph.Get(id)
		dependsOnFailed := false
		for req := range stringSet(spec.Requires) {
			if failingArtifact[req] {
				dependsOnFailed = true
				break
			}
		}
		for _, path := range spec.Produces {
			status := domain.ArtifactPassed
			switch {
			case failingArtifact[id]:
				status = domain.ArtifactFailed
			case dependsOnFailed:
				status = domain.ArtifactWaiting
			}
			out = append(out, domain.RecoveryArtifact{
				Path:      path,
				Content:   contents[path],
				Status:    status,
				Errors:    errorsByPath[path],
				DependsOn: spec.Requires,
			})
		}
	}
	return out
}

// buildRecoveryArtifactsUngated marks every produced path "waiting": used
// when escalating before gates ever ran (a GENERATE-step failure), so
// nothing is mislabeled "passed" for having an empty, never-run gate
// result.
func buildRecoveryArtifactsUngated(graph *domain.ArtifactGraph, contents map[string]string) []domain.RecoveryArtifact {
	var out []domain.RecoveryArtifact
	for _, id := range graph.IDs() {
		spec, _ := graph.Get(id)
		for _, path := range spec.Produces {
			out = append(out, domain.RecoveryArtifact{
				Path:      path,
				Content:   contents[path],
				Status:    domain.ArtifactWaiting,
				DependsOn: spec.Requires,
			})
		}
	}
	return out
}

func stringSet(ss []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}
