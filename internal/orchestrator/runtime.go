// Package orchestrator implements the Agent Orchestrator (spec.md §4.10):
// the single component that wires the Adaptive Router, Epic Decomposer,
// Harmonic Planner, Convergence Loop, and Knowledge Store together into one
// goal run, and the recovery-resume path that restarts a prior escalation.
//
// Runtime carries every dependency explicitly (no package-level
// singletons, per SPEC_FULL §9 — the teacher's kernel/event-bus/store
// globals are replaced with fields passed at construction), mirroring the
// teacher's DreamPlanManager/DreamRouter constructor-injection style.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sunwell/internal/checkpoint"
	"sunwell/internal/contenthash"
	"sunwell/internal/convergence"
	"sunwell/internal/domain"
	"sunwell/internal/epic"
	"sunwell/internal/events"
	"sunwell/internal/gates"
	"sunwell/internal/knowledge"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
	"sunwell/internal/planner"
	"sunwell/internal/recovery"
	"sunwell/internal/router"
	"sunwell/internal/tools"
	"sunwell/internal/usage"
)

// Runtime holds every collaborator one orchestrator run needs.
type Runtime struct {
	Bus         *events.Bus
	Knowledge   *knowledge.Store
	Recovery    *recovery.Store
	Checkpoints *checkpoint.Engine
	Usage       *usage.Tracker
	Tools       *tools.Registry
	Pipeline    *gates.Pipeline
	LLM         llmclient.Client
	Workspace   string

	MaxIterations     int
	PlannerCandidates int
	RefinementRounds  int
	LimitPerCategory  int
}

// NewRuntime constructs a Runtime. Checkpoints and Usage may be nil (both
// are ambient, not load-bearing for the convergence contract itself).
func NewRuntime(bus *events.Bus, kn *knowledge.Store, rec *recovery.Store, ck *checkpoint.Engine, ut *usage.Tracker, tl *tools.Registry, pipeline *gates.Pipeline, llm llmclient.Client, workspace string) *Runtime {
	return &Runtime{
		Bus: bus, Knowledge: kn, Recovery: rec, Checkpoints: ck, Usage: ut,
		Tools: tl, Pipeline: pipeline, LLM: llm, Workspace: workspace,
		MaxIterations:     5,
		PlannerCandidates: 5,
		RefinementRounds:  1,
		LimitPerCategory:  5,
	}
}

// Options carries the per-run knobs exposed to the external collaborator
// (CLI, UI, API — spec.md §6).
type Options struct {
	UserHint string // forwarded into the recovery-resume healing context, if any
}

// Run starts one goal run and returns a channel of every AgentEvent emitted
// for it. The channel is closed once the run reaches a terminal state.
func (rt *Runtime) Run(ctx context.Context, goalText string, opts Options) <-chan events.AgentEvent {
	runID := uuid.NewString()
	out := make(chan events.AgentEvent, 64)

	sub, err := rt.Bus.Subscribe(events.Filter{RunID: runID})
	if err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("run %s: event subscription failed: %v", runID, err)
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer rt.Bus.Unsubscribe(sub)
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			for ev := range sub.Events {
				out <- ev
			}
		}()
		rt.execute(ctx, runID, goalText, opts)
		<-relayDone
	}()

	return out
}

// execute implements the 6-step contract of spec.md §4.10.
func (rt *Runtime) execute(ctx context.Context, runID, goalText string, opts Options) {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "execute")
	defer timer.Stop()

	goalHash := contenthash.SumString(goalText)

	if resumed := rt.tryResume(ctx, runID, goalHash, opts); resumed {
		return
	}

	// Step 1: classify.
	rtr := router.New(rt.LLM)
	classification := rtr.Classify(ctx, goalText)

	switch classification.Route {
	case router.RouteStop:
		rt.emit(runID, events.TypeError, map[string]any{
			"reason": "goal flagged dangerous, awaiting confirmation",
			"signals_reason": classification.Signals.Reason,
		})
		return
	case router.RouteDialectic:
		rt.emit(runID, events.TypeError, map[string]any{
			"reason": "goal is ambiguous, clarification needed",
			"signals_reason": classification.Signals.Reason,
		})
		return
	case router.RouteHierarchical:
		rt.runHierarchical(ctx, runID, goalText, goalHash)
		return
	default:
		// HARMONIC and SINGLE_SHOT both run the flat planner/convergence
		// path; SINGLE_SHOT narrows candidate generation to one attempt.
		candidates := rt.PlannerCandidates
		if classification.Route == router.RouteSingleShot {
			candidates = 1
		}
		rt.runFlatGoal(ctx, runID, goalText, goalHash, candidates)
	}
}

// runFlatGoal plans and executes a single (non-hierarchical) goal.
func (rt *Runtime) runFlatGoal(ctx context.Context, runID, goalText, goalHash string, candidates int) {
	reader := rt.knowledgeReader()
	p := planner.New(rt.LLM, reader, rt.Bus, candidates, rt.RefinementRounds, rt.LimitPerCategory)
	graph, err := p.Plan(ctx, runID, goalText)
	if err != nil {
		rt.emit(runID, events.TypeTaskFailed, map[string]any{"error": err.Error()})
		rt.learnDeadEnd(ctx, goalText, err.Error())
		return
	}

	preamble := rt.knowledgePreamble(ctx, goalText)
	loop := convergence.New(rt.LLM, rt.Tools, rt.Pipeline, rt.Bus, rt.Workspace, convergence.Config{MaxIterations: rt.MaxIterations})
	outcome := loop.Run(ctx, runID, goalText, goalHash, graph, preamble)
	rt.finishOutcome(ctx, runID, goalText, outcome)
}

// runHierarchical implements step 2: decompose into milestones, then plan
// and execute each in order via the Milestone Tracker.
func (rt *Runtime) runHierarchical(ctx context.Context, runID, goalText, goalHash string) {
	decomposer := epic.New(rt.LLM)
	dom := decomposer.DetectDomain(ctx, goalText)
	epicID := runID

	milestones, err := decomposer.Decompose(ctx, epicID, goalText, dom)
	if err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("run %s: decomposition failed, retrying once: %v", runID, err)
		milestones, err = decomposer.Decompose(ctx, epicID, goalText, dom)
	}
	if err != nil {
		// Retry-once exhausted: fall back to flat HARMONIC planning of the
		// whole goal, per spec.md §4.6's caller-owned fallback policy.
		logging.Get(logging.CategoryOrchestrator).Warn("run %s: decomposition failed twice, falling back to flat planning: %v", runID, err)
		rt.runFlatGoal(ctx, runID, goalText, goalHash, rt.PlannerCandidates)
		return
	}

	recorder := rt.knowledgeRecorder()
	tracker, err := epic.NewTracker(epicID, milestones, rt.LLM, recorder)
	if err != nil {
		rt.emit(runID, events.TypeTaskFailed, map[string]any{"error": err.Error()})
		return
	}

	for {
		active, ok := tracker.ActiveMilestone()
		if !ok {
			break
		}
		done, total := tracker.Progress()
		rt.emit(runID, events.TypeTaskProgress, map[string]any{"milestone": active.ID, "done": done, "total": total})

		reader := rt.knowledgeReader()
		p := planner.New(rt.LLM, reader, rt.Bus, rt.PlannerCandidates, rt.RefinementRounds, rt.LimitPerCategory)
		graph, err := p.Plan(ctx, runID, active.Description)
		if err != nil {
			rt.emit(runID, events.TypeTaskFailed, map[string]any{"error": err.Error(), "milestone": active.ID})
			rt.learnDeadEnd(ctx, active.Description, err.Error())
			return
		}

		preamble := rt.knowledgePreamble(ctx, active.Description)
		loop := convergence.New(rt.LLM, rt.Tools, rt.Pipeline, rt.Bus, rt.Workspace, convergence.Config{MaxIterations: rt.MaxIterations})
		milestoneHash := contenthash.SumString(active.ID + ":" + active.Description)
		outcome := loop.Run(ctx, runID, active.Description, milestoneHash, graph, preamble)

		if outcome.State != convergence.StateComplete {
			rt.finishOutcome(ctx, runID, active.Description, outcome)
			return
		}

		if _, err := tracker.CompleteActive(ctx, outcome.Artifacts); err != nil {
			rt.emit(runID, events.TypeTaskFailed, map[string]any{"error": err.Error(), "milestone": active.ID})
			return
		}
	}

	rt.emit(runID, events.TypeTaskComplete, map[string]any{"epic": epicID})
}

// finishOutcome handles the Learn step (step 5) for a single convergence
// run's terminal outcome, persisting the result and emitting the
// corresponding terminal event.
func (rt *Runtime) finishOutcome(ctx context.Context, runID, goalText string, outcome convergence.Outcome) {
	switch outcome.State {
	case convergence.StateComplete:
		learnings, err := knowledge.ExtractOnSuccess(ctx, rt.LLM, goalText, outcome.Artifacts)
		if err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("run %s: learning extraction failed: %v", runID, err)
		}
		rt.recordLearnings(runID, learnings)
	case convergence.StateEscalate, convergence.StateCancelled:
		if outcome.Recovery == nil {
			return
		}
		if rt.Recovery != nil {
			if err := rt.Recovery.Save(*outcome.Recovery); err != nil {
				logging.Get(logging.CategoryOrchestrator).Warn("run %s: recovery save failed: %v", runID, err)
			}
		}
		rt.emit(runID, events.TypeRecoverySaved, map[string]any{
			"goal_hash":      outcome.Recovery.GoalHash,
			"failure_reason": outcome.Recovery.FailureReason,
		})
		rt.learnDeadEnd(ctx, goalText, outcome.Recovery.FailureReason)
	}
}

func (rt *Runtime) learnDeadEnd(ctx context.Context, goalText, failureReason string) {
	l := knowledge.ExtractDeadEnd(goalText, failureReason)
	rt.recordLearnings("", []domain.Learning{l})
}

func (rt *Runtime) recordLearnings(runID string, learnings []domain.Learning) {
	if rt.Knowledge == nil {
		return
	}
	for _, l := range learnings {
		if err := rt.Knowledge.AddLearning(context.Background(), l); err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("add_learning failed: %v", err)
			continue
		}
		typ := events.TypeMemoryLearning
		if l.Category == domain.CategoryDeadEnd {
			typ = events.TypeMemoryDeadEnd
		}
		if runID != "" {
			rt.emit(runID, typ, map[string]any{"category": string(l.Category), "fact": l.Fact})
		}
	}
}

// tryResume implements spec.md §4.10's recovery wiring: if a pending
// RecoveryState exists for this goal_hash, restart the Convergence Loop
// with only the failed/waiting artifacts, leaving passed artifacts intact.
// Returns true if a resume was attempted (whether it succeeded or not), in
// which case execute's normal classify/plan/execute path is skipped.
func (rt *Runtime) tryResume(ctx context.Context, runID, goalHash string, opts Options) bool {
	if rt.Recovery == nil {
		return false
	}
	pending, err := rt.Recovery.ListPending()
	if err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("run %s: list pending recovery failed: %v", runID, err)
		return false
	}
	var state *domain.RecoveryState
	for i := range pending {
		if pending[i].GoalHash == goalHash {
			state = &pending[i]
			break
		}
	}
	if state == nil {
		return false
	}

	graph := domain.NewArtifactGraph()
	toRegenerate := make(map[string]string)
	for _, a := range state.Artifacts {
		if a.Status == domain.ArtifactPassed {
			continue
		}
		toRegenerate[a.Path] = a.Content
	}
	id := "resume"
	_ = graph.Add(domain.ArtifactSpec{
		ID:          id,
		Description: "resume: " + state.Goal,
		Produces:    keysOf(toRegenerate),
	})

	preamble := healingPreamble(*state, opts.UserHint)
	loop := convergence.New(rt.LLM, rt.Tools, rt.Pipeline, rt.Bus, rt.Workspace, convergence.Config{MaxIterations: rt.MaxIterations})
	outcome := loop.Run(ctx, runID, state.Goal, state.GoalHash, graph, preamble)

	if outcome.State == convergence.StateComplete && rt.Recovery != nil {
		if err := rt.Recovery.MarkResolved(state.RunID); err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("run %s: mark resolved failed: %v", runID, err)
		}
		rt.emit(runID, events.TypeRecoveryResolved, map[string]any{"goal_hash": goalHash})
	}
	rt.finishOutcome(ctx, runID, state.Goal, outcome)
	return true
}

func healingPreamble(state domain.RecoveryState, userHint string) string {
	s := fmt.Sprintf("Resuming a prior attempt that %s.\nFailed gate: %s\n", state.FailureReason, state.FailedGate)
	if userHint != "" {
		s += "User guidance: " + userHint + "\n"
	}
	for _, a := range state.Artifacts {
		if a.Status == domain.ArtifactPassed {
			continue
		}
		s += fmt.Sprintf("- %s (%s): %v\n", a.Path, a.Status, a.Errors)
	}
	return s
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (rt *Runtime) knowledgeReader() planner.KnowledgeReader {
	if rt.Knowledge == nil {
		return nilKnowledgeReader{}
	}
	return rt.Knowledge
}

func (rt *Runtime) knowledgeRecorder() epic.LearningRecorder {
	if rt.Knowledge == nil {
		return nil
	}
	return rt.Knowledge
}

func (rt *Runtime) knowledgePreamble(ctx context.Context, goalText string) string {
	if rt.Knowledge == nil {
		return ""
	}
	pc, err := rt.Knowledge.RetrieveForPlanning(ctx, goalText, rt.LimitPerCategory)
	if err != nil {
		logging.Get(logging.CategoryOrchestrator).Warn("retrieve for planning failed: %v", err)
		return ""
	}
	var b strings.Builder
	write := func(label string, ls []domain.Learning) {
		if len(ls) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", label)
		for _, l := range ls {
			fmt.Fprintf(&b, "- %s\n", l.Fact)
		}
	}
	write("Facts", pc.Facts)
	write("Preferences", pc.Preferences)
	write("Constraints", pc.Constraints)
	write("Dead ends (avoid repeating)", pc.DeadEnds)
	write("Heuristics", pc.Heuristics)
	return b.String()
}

func (rt *Runtime) emit(runID string, t events.Type, data map[string]any) {
	rt.Bus.Broadcast(events.New(t, runID, events.SourceCLI, data))
}

// nilKnowledgeReader is used when Runtime.Knowledge is nil, so the planner
// always has a valid (trivially empty) KnowledgeReader to call.
type nilKnowledgeReader struct{}

func (nilKnowledgeReader) RetrieveForPlanning(_ context.Context, _ string, _ int) (domain.PlanningContext, error) {
	return domain.PlanningContext{}, nil
}
