// Package sunerr implements the error taxonomy of SPEC_FULL.md §7. Each kind
// wraps an underlying cause and an optional user-facing recovery hint, so
// terminal AgentEvents can surface "Run `sunwell review <goal_hash>` to
// resume" without every call site having to know the phrasing.
package sunerr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind string

const (
	KindValidation Kind = "validation" // gate failed, recoverable via REFINE
	KindPlanning   Kind = "planning"   // planner could not produce a valid graph
	KindTool       Kind = "tool"       // tool invocation failed or disallowed
	KindStorage    Kind = "storage"    // persistence failed, fatal
	KindPolicy     Kind = "policy"     // command/path rejected by allowlist
	KindCancelled  Kind = "cancelled"  // user or timeout cancellation
	KindEscalation Kind = "escalation" // convergence exhausted or non-progressing
)

// SunwellError is the common shape of every typed error in the taxonomy.
type SunwellError struct {
	Kind         Kind
	Message      string
	RecoveryHint string
	Cause        error
}

func (e *SunwellError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SunwellError) Unwrap() error { return e.Cause }

func newErr(kind Kind, message string, cause error) *SunwellError {
	return &SunwellError{Kind: kind, Message: message, Cause: cause}
}

// Validation wraps a gate failure that the Convergence Loop should refine against.
func Validation(message string, cause error) *SunwellError {
	return newErr(KindValidation, message, cause)
}

// Planning wraps a planner failure. Exit code 5 per SPEC_FULL §6.
func Planning(message string, cause error) *SunwellError {
	return newErr(KindPlanning, message, cause)
}

// Tool wraps a failed or disallowed tool invocation.
func Tool(message string, cause error) *SunwellError {
	return newErr(KindTool, message, cause)
}

// Storage wraps a persistence failure. Always fatal to the current run.
func Storage(message string, cause error) *SunwellError {
	return newErr(KindStorage, message, cause)
}

// Policy wraps a command or path rejected by an allowlist. Never falls
// through to execution — callers must surface it to the LLM as a ToolError,
// per SPEC_FULL §7 propagation rules.
func Policy(message string, cause error) *SunwellError {
	return newErr(KindPolicy, message, cause)
}

// Cancelled wraps a cooperative cancellation.
func Cancelled(message string) *SunwellError {
	return newErr(KindCancelled, message, nil)
}

// Escalation wraps a convergence exhaustion or non-progressing abort.
// Exit code 3 per SPEC_FULL §6. RecoveryHint should name the resume command.
func Escalation(message string, recoveryHint string) *SunwellError {
	e := newErr(KindEscalation, message, nil)
	e.RecoveryHint = recoveryHint
	return e
}

// Is reports whether err (or any error it wraps) is a SunwellError of kind k.
func Is(err error, k Kind) bool {
	var se *SunwellError
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

// ExitCode maps an error to the CLI exit code defined in SPEC_FULL §6.
// Returns 0 for a nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *SunwellError
	if errors.As(err, &se) {
		switch se.Kind {
		case KindValidation:
			return 2
		case KindEscalation:
			return 3
		case KindCancelled:
			return 4
		case KindPlanning, KindStorage:
			return 5
		}
	}
	return 5
}
