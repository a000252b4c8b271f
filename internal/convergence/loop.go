package convergence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sunwell/internal/contenthash"
	"sunwell/internal/domain"
	"sunwell/internal/events"
	"sunwell/internal/gates"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
	"sunwell/internal/recovery"
	"sunwell/internal/sunerr"
	"sunwell/internal/tools"
)

// Loop runs one goal's Convergence Loop (spec.md §4.9).
type Loop struct {
	llm       llmclient.Client
	registry  *tools.Registry
	pipeline  *gates.Pipeline
	bus       *events.Bus
	workspace string
	config    Config
}

// New constructs a Loop. bus may be nil to run silently (tests).
func New(llm llmclient.Client, registry *tools.Registry, pipeline *gates.Pipeline, bus *events.Bus, workspace string, config Config) *Loop {
	if config.MaxIterations <= 0 {
		config = DefaultConfig()
	}
	return &Loop{llm: llm, registry: registry, pipeline: pipeline, bus: bus, workspace: workspace, config: config}
}

// Run drives one goal from INIT through COMPLETE or ESCALATE (spec.md
// §4.9). preamble is the rendered knowledge context (facts/preferences/
// constraints/dead-ends) injected into every GENERATE prompt.
func (l *Loop) Run(ctx context.Context, runID, goalText, goalHash string, graph *domain.ArtifactGraph, preamble string) Outcome {
	timer := logging.StartTimer(logging.CategoryConvergence, "Run")
	defer timer.Stop()

	l.emit(runID, events.TypeTaskStart, map[string]any{"goal": goalText})

	var feedback *Feedback
	var history []domain.IterationRecord
	var prior *iterationSnapshot
	iteration := 0

	for {
		select {
		case <-ctx.Done():
			return l.cancel(ctx, runID, goalText, goalHash, graph, history, iteration)
		default:
		}

		contents, genErr := l.generate(ctx, runID, goalText, graph, preamble, feedback, iteration)
		if genErr != nil {
			l.emit(runID, events.TypeTaskFailed, map[string]any{"error": genErr.Error()})
			return Outcome{State: StateEscalate, Recovery: ptr(recovery.FromExecution(runID, goalText, goalHash,
				buildRecoveryArtifactsUngated(graph, contents), "", genErr.Error(), history, iteration))}
		}

		// Suspension point: between tool dispatch and gate run.
		select {
		case <-ctx.Done():
			return l.cancel(ctx, runID, goalText, goalHash, graph, history, iteration)
		default:
		}

		result, err := l.validate(ctx, runID, contents)
		if err != nil {
			l.emit(runID, events.TypeTaskFailed, map[string]any{"error": err.Error()})
			return Outcome{State: StateEscalate, Recovery: ptr(recovery.FromExecution(runID, goalText, goalHash,
				buildRecoveryArtifactsUngated(graph, contents), "", err.Error(), history, iteration))}
		}

		if result.Passed() {
			l.emit(runID, events.TypeTaskComplete, map[string]any{"artifact_count": len(contents)})
			return Outcome{State: StateComplete, Artifacts: contents}
		}

		snapshot := &iterationSnapshot{hashes: hashContents(contents), gateFailures: result.FailureSet(), timestamp: time.Now()}
		history = append(history, domain.IterationRecord{
			Iteration:      iteration,
			ArtifactHashes: snapshot.hashes,
			GateFailures:   snapshot.gateFailures,
			Timestamp:      snapshot.timestamp,
		})

		if prior != nil && sameSnapshot(prior, snapshot) {
			l.emit(runID, events.TypeConvergenceEscalated, map[string]any{"reason": string(ReasonNonProgressing)})
			state := recovery.FromExecution(runID, goalText, goalHash, buildRecoveryArtifacts(graph, contents, result), result.FailedGate(), string(ReasonNonProgressing), history, iteration)
			return Outcome{State: StateEscalate, Recovery: &state}
		}
		prior = snapshot

		iteration++
		if iteration > l.config.MaxIterations {
			l.emit(runID, events.TypeConvergenceEscalated, map[string]any{"reason": string(ReasonMaxIterations)})
			state := recovery.FromExecution(runID, goalText, goalHash, buildRecoveryArtifacts(graph, contents, result), result.FailedGate(), string(ReasonMaxIterations), history, iteration)
			return Outcome{State: StateEscalate, Recovery: &state}
		}

		// Suspension point: between gate and refine.
		select {
		case <-ctx.Done():
			return l.cancel(ctx, runID, goalText, goalHash, graph, history, iteration)
		default:
		}

		feedback = &Feedback{Iteration: iteration, Messages: result.FailureSet()}
		l.emit(runID, events.TypeConvergenceIter, map[string]any{"iteration": iteration, "gate_failures": len(feedback.Messages)})
	}
}

func (l *Loop) generate(ctx context.Context, runID, goalText string, graph *domain.ArtifactGraph, preamble string, feedback *Feedback, iteration int) (map[string]string, error) {
	raw, err := l.llm.Complete(ctx, generateSystemPrompt(), generateUserPrompt(goalText, graph, preamble, feedback))
	if err != nil {
		return nil, sunerr.Tool("generate step LLM call failed", err)
	}
	calls, err := parseToolCalls(raw)
	if err != nil {
		return nil, err
	}

	for _, call := range calls {
		res, execErr := l.registry.Execute(ctx, uuid.NewString(), call.Name, call.Arguments)
		if execErr != nil {
			logging.Get(logging.CategoryConvergence).Warn("iteration %d: tool %s failed: %v", iteration, call.Name, execErr)
		}
		_ = res
	}

	return l.readProducedArtifacts(graph)
}

func (l *Loop) readProducedArtifacts(graph *domain.ArtifactGraph) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range graph.IDs() {
		spec, _ := graph.Get(id)
		for _, path := range spec.Produces {
			content, err := os.ReadFile(filepath.Join(l.workspace, path))
			if err != nil {
				out[path] = ""
				continue
			}
			out[path] = string(content)
		}
	}
	return out, nil
}

func (l *Loop) validate(ctx context.Context, runID string, contents map[string]string) (gates.PipelineResult, error) {
	l.emit(runID, events.TypeGateStart, map[string]any{})
	artifacts := make([]gates.Artifact, 0, len(contents))
	for path, content := range contents {
		artifacts = append(artifacts, gates.Artifact{Path: path, Content: []byte(content)})
	}
	result, err := l.pipeline.Run(ctx, l.workspace, artifacts)
	if err != nil {
		return result, fmt.Errorf("convergence: gate pipeline: %w", err)
	}
	if result.Passed() {
		l.emit(runID, events.TypeGatePass, map[string]any{})
	} else {
		l.emit(runID, events.TypeGateFail, map[string]any{"failed_gate": result.FailedGate()})
	}
	return result, nil
}

func (l *Loop) cancel(ctx context.Context, runID, goalText, goalHash string, graph *domain.ArtifactGraph, history []domain.IterationRecord, iteration int) Outcome {
	contents, _ := l.readProducedArtifacts(graph)
	state := recovery.FromExecution(runID, goalText, goalHash, buildRecoveryArtifactsUngated(graph, contents), "", string(ReasonCancelled), history, iteration)
	l.emit(runID, events.TypeConvergenceEscalated, map[string]any{"reason": string(ReasonCancelled)})
	return Outcome{State: StateCancelled, Recovery: &state}
}

func (l *Loop) emit(runID string, t events.Type, data map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Broadcast(events.New(t, runID, events.SourceCLI, data))
}

func hashContents(contents map[string]string) map[string]string {
	out := make(map[string]string, len(contents))
	for path, content := range contents {
		out[path] = contenthash.SumString(content)
	}
	return out
}

func sameSnapshot(a, b *iterationSnapshot) bool {
	if len(a.hashes) != len(b.hashes) || len(a.gateFailures) != len(b.gateFailures) {
		return false
	}
	for path, h := range a.hashes {
		if b.hashes[path] != h {
			return false
		}
	}
	for i, m := range a.gateFailures {
		if b.gateFailures[i] != m {
			return false
		}
	}
	return true
}

func ptr[T any](v T) *T { return &v }
