// Package convergence implements the Convergence Loop (spec.md §4.9): the
// heart of the agent. A state machine that repeatedly invokes the LLM,
// dispatches tool calls through the Tool Executor, and validates the
// result through Validation Gates until it passes, exhausts its iteration
// budget, or stops making progress. Grounded on the teacher's mutex-guarded
// TDDLoop state machine (tdd_loop.go: state/retryCount/history, NextAction
// dispatch, RunToCompletion), generalized from a fixed
// test-fail-analyze-patch cycle to an arbitrary goal/artifact-graph/gate
// cycle.
package convergence

import (
	"time"

	"sunwell/internal/domain"
)

// State is the convergence loop's state (spec.md §4.9).
type State string

const (
	StateInit      State = "INIT"
	StateGenerate  State = "GENERATE"
	StateValidate  State = "VALIDATE"
	StateComplete  State = "COMPLETE"
	StateRefine    State = "REFINE"
	StateEscalate  State = "ESCALATE"
	StateCancelled State = "CANCELLED"
)

// EscalationReason names why the loop gave up (spec.md §4.9).
type EscalationReason string

const (
	ReasonMaxIterations  EscalationReason = "max_iterations"
	ReasonNonProgressing EscalationReason = "non_progressing"
	ReasonCancelled      EscalationReason = "cancelled"
)

// Config tunes one Run.
type Config struct {
	MaxIterations int // default 5 (spec.md §4.9)
}

// DefaultConfig returns spec.md §4.9's defaults.
func DefaultConfig() Config {
	return Config{MaxIterations: 5}
}

// Feedback is prior-iteration gate failure context fed back into the next
// GENERATE prompt.
type Feedback struct {
	Iteration int
	Messages  []string
}

// Outcome is Run's terminal result.
type Outcome struct {
	State     State
	Artifacts map[string]string // path -> content, only set on COMPLETE
	Recovery  *domain.RecoveryState
}

// toolCallJSON is the wire shape the LLM is asked to emit per tool call.
type toolCallJSON struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type generateResponseJSON struct {
	ToolCalls []toolCallJSON `json:"tool_calls"`
}

type iterationSnapshot struct {
	hashes       map[string]string
	gateFailures []string
	timestamp    time.Time
}
