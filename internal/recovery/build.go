package recovery

import (
	"time"

	"sunwell/internal/domain"
)

// FromExecution assembles a domain.RecoveryState from an escalated
// convergence run, the shape the Convergence Loop hands to Save whenever it
// gives up and emits convergence_escalated.
func FromExecution(runID, goal, goalHash string, artifacts []domain.RecoveryArtifact, failedGate, reason string, history []domain.IterationRecord, fixAttempts int) domain.RecoveryState {
	now := time.Now()
	return domain.RecoveryState{
		Goal:             goal,
		GoalHash:         goalHash,
		RunID:            runID,
		Artifacts:        artifacts,
		FailedGate:       failedGate,
		FailureReason:    reason,
		IterationHistory: history,
		FixAttempts:      fixAttempts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
