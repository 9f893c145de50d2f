package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskStarted indicates a worker began executing a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskDelegated indicates an aggregate task was split over its team.
	EventTaskDelegated EventType = "task_delegated"
	// EventTaskDecomposed indicates a worker split its task mid-execution.
	EventTaskDecomposed EventType = "task_decomposed"
	// EventTaskRetry indicates the task should be executed again with feedback.
	EventTaskRetry EventType = "task_retry"
	// EventTaskFailed indicates a terminal failure.
	EventTaskFailed EventType = "task_failed"
	// EventPullRequestOpened indicates a change request was opened or reused.
	EventPullRequestOpened EventType = "pull_request_opened"
	// EventVerificationFailed indicates the change request's checks failed.
	EventVerificationFailed EventType = "verification_failed"
	// EventReadyForReview indicates checks passed and review was requested.
	EventReadyForReview EventType = "ready_for_review"
	// EventTaskCompleted indicates the task was accepted.
	EventTaskCompleted EventType = "task_completed"
	// EventWorkspaceRemoved indicates a task workspace was cleaned up.
	EventWorkspaceRemoved EventType = "workspace_removed"
)

// Event is emitted as tasks move through execution.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// TaskTitle is the title of the related task, if known.
	TaskTitle string
	// WorkerID is the executing worker, if applicable.
	WorkerID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// CostCents is the inference spend of the step that emitted the event.
	CostCents float64
	// Duration is the elapsed time of that step.
	Duration time.Duration
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
