package models

import (
	"errors"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but is not yet schedulable.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates all dependencies are satisfied and the task can start.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusBlocked indicates the task is waiting on dependencies or children.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusInProgress indicates a worker is executing the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReadyForReview indicates verification passed and review was requested.
	TaskStatusReadyForReview TaskStatus = "ready_for_review"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed terminally.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusBlocked, TaskStatusInProgress,
		TaskStatusReadyForReview, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Active returns true if the task counts toward a worker's workload.
func (s TaskStatus) Active() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusBlocked, TaskStatusInProgress, TaskStatusReadyForReview:
		return true
	default:
		return false
	}
}

// TaskType distinguishes aggregate tasks from directly executable ones.
type TaskType string

const (
	// TaskTypeAggregate is decomposed into children and never executed directly.
	TaskTypeAggregate TaskType = "aggregate"
	// TaskTypeImplementation is a leaf task executed by a single worker.
	TaskTypeImplementation TaskType = "implementation"
)

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	return t == TaskTypeAggregate || t == TaskTypeImplementation
}

// Priority is an ordered urgency tier. P1 is the most urgent.
type Priority string

const (
	PriorityCritical Priority = "p1"
	PriorityHigh     Priority = "p2"
	PriorityMedium   Priority = "p3"
	PriorityLow      Priority = "p4"
)

// Rank returns the sort key for the priority; lower is more urgent.
// Unknown priorities sort after PriorityLow.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

// ParsePriority maps loose textual priorities ("high", "P2", "critical") to a Priority.
func ParsePriority(s string) Priority {
	switch s {
	case "p1", "P1", "critical", "CRITICAL", "urgent":
		return PriorityCritical
	case "p2", "P2", "high", "HIGH":
		return PriorityHigh
	case "p4", "P4", "low", "LOW":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// ErrAssignmentConflict is returned when both a worker and a team are assigned.
var ErrAssignmentConflict = errors.New("task cannot be assigned to both a worker and a team")

// TaskMetadata holds execution bookkeeping that travels with a task.
type TaskMetadata struct {
	// CIRetryCount is the number of verification failures handled so far.
	CIRetryCount int `json:"ci_retry_count,omitempty"`
	// LastCIFeedback is the structured feedback from the latest verification failure.
	LastCIFeedback string `json:"last_ci_feedback,omitempty"`
	// PRNumber is the change request number once opened.
	PRNumber int `json:"pr_number,omitempty"`
	// PRURL is the change request URL once opened.
	PRURL string `json:"pr_url,omitempty"`
	// BranchName is the feature branch the workspace is on.
	BranchName string `json:"branch_name,omitempty"`
	// EstimatedCommits is the decomposition estimate for the task size.
	EstimatedCommits int `json:"estimated_commits,omitempty"`
	// EstimatedHours is the time box for spike tasks.
	EstimatedHours int `json:"estimated_hours,omitempty"`
	// SpikeFor is the ID of the task a spike investigates.
	SpikeFor string `json:"spike_for,omitempty"`
	// RecreatedFrom is the ID of the task this one replaces after a pivot.
	RecreatedFrom string `json:"recreated_from,omitempty"`
	// DecompositionReason records why the task was broken down.
	DecompositionReason string `json:"decomposition_reason,omitempty"`
	// LastError is the most recent terminal error message.
	LastError string `json:"last_error,omitempty"`
	// DurationMs is the wall-clock time of the last inference call.
	DurationMs int64 `json:"duration_ms,omitempty"`
	// CostCents is the accumulated inference cost.
	CostCents float64 `json:"cost_cents,omitempty"`
}

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ParentID is the ID of the parent aggregate task, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// AcceptanceCriteria defines the criteria for task completion.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// Type is aggregate or implementation.
	Type TaskType `json:"type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority is the urgency tier.
	Priority Priority `json:"priority"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// AssignedWorkerID is the worker executing this task.
	AssignedWorkerID string `json:"assigned_worker_id,omitempty"`
	// AssignedTeamID is the team owning this task while it awaits decomposition.
	AssignedTeamID string `json:"assigned_team_id,omitempty"`
	// Depth is the distance from the aggregate root.
	Depth int `json:"depth"`
	// RequiredSkills lists the capabilities the task needs.
	RequiredSkills []string `json:"required_skills,omitempty"`
	// AffectedFiles lists the files the task is expected to modify.
	AffectedFiles []string `json:"affected_files,omitempty"`
	// Tags are free-form labels used for knowledge lookup and area filters.
	Tags []string `json:"tags,omitempty"`
	// WorkingDirectory is the provisioned workspace path.
	WorkingDirectory string `json:"working_directory,omitempty"`
	// Metadata holds retry and change-request bookkeeping.
	Metadata TaskMetadata `json:"metadata"`
	// RetryCount is the number of execution retries.
	RetryCount int `json:"retry_count,omitempty"`
	// Version is incremented on every persisted update.
	Version int `json:"version"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ValidateAssignment enforces that at most one of worker and team is assigned.
func (t *Task) ValidateAssignment() error {
	if t.AssignedWorkerID != "" && t.AssignedTeamID != "" {
		return ErrAssignmentConflict
	}
	return nil
}

// IsAssigned returns true if the task has a worker or a team.
func (t *Task) IsAssigned() bool {
	return t.AssignedWorkerID != "" || t.AssignedTeamID != ""
}

// AssignWorker assigns the task to a worker, clearing any team assignment.
func (t *Task) AssignWorker(workerID string) {
	t.AssignedWorkerID = workerID
	t.AssignedTeamID = ""
}

// AssignTeam assigns the task to a team, clearing any worker assignment.
func (t *Task) AssignTeam(teamID string) {
	t.AssignedTeamID = teamID
	t.AssignedWorkerID = ""
}

// Unassign clears both worker and team.
func (t *Task) Unassign() {
	t.AssignedWorkerID = ""
	t.AssignedTeamID = ""
}

// HasAffectedFile reports whether path is in AffectedFiles.
func (t *Task) HasAffectedFile(path string) bool {
	for _, f := range t.AffectedFiles {
		if f == path {
			return true
		}
	}
	return false
}

// ShortID returns the first eight characters of an identifier.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.AcceptanceCriteria = cloneStrings(t.AcceptanceCriteria)
	c.DependsOn = cloneStrings(t.DependsOn)
	c.RequiredSkills = cloneStrings(t.RequiredSkills)
	c.AffectedFiles = cloneStrings(t.AffectedFiles)
	c.Tags = cloneStrings(t.Tags)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
