package orchestrator

import (
	"errors"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var (
	// ErrVerificationTimeout is returned when checks do not finish in time.
	ErrVerificationTimeout = errors.New("verification timed out")
	// ErrVerificationMaxRetries is the cause of a terminal outcome after
	// repeated verification failures.
	ErrVerificationMaxRetries = errors.New("verification retry budget exhausted")
	// ErrNotExecutable is returned for tasks whose status does not allow execution.
	ErrNotExecutable = errors.New("task is not executable")
	// ErrNoPullRequest is returned when a task has no change request to verify.
	ErrNoPullRequest = errors.New("task has no change request")
	// ErrNoRepository is returned when no repository path can be resolved.
	ErrNoRepository = errors.New("no repository configured")
)

// OutcomeKind tells the caller what to do next with a task.
type OutcomeKind string

const (
	// OutcomeSuccess means the task is READY_FOR_REVIEW (or COMPLETED).
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeRetry means the caller should execute the task again.
	OutcomeRetry OutcomeKind = "retry"
	// OutcomeTerminal means the task FAILED and must not be retried.
	OutcomeTerminal OutcomeKind = "terminal"
	// OutcomeDecomposed means the worker split the task into subtasks.
	OutcomeDecomposed OutcomeKind = "decomposed"
	// OutcomeDelegated means an aggregate task was distributed over its team.
	OutcomeDelegated OutcomeKind = "delegated"
)

// Outcome is the result of an orchestrator operation.
type Outcome struct {
	Kind OutcomeKind
	// Task is the task after the operation was persisted.
	Task *models.Task
	// Feedback is what the next attempt should address (retry).
	Feedback string
	// Reason explains a terminal outcome or a decomposition.
	Reason string
	// Cause is the sentinel behind a terminal outcome, if any. On a retry it
	// is a *brain.ParseError when the worker's decomposition could not be read.
	Cause error
	// Subtasks are the tasks created by decomposition or delegation.
	Subtasks []*models.Task
	// PullRequest is the change request under verification or review.
	PullRequest *models.PullRequest
	// Cost is the inference spend of this operation.
	Cost brain.Cost
}

// Retryable reports whether the caller should execute the task again.
func (o *Outcome) Retryable() bool {
	return o != nil && o.Kind == OutcomeRetry
}
