package models

import (
	"strings"
	"time"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	// WorkerStatusIdle indicates the worker is available.
	WorkerStatusIdle WorkerStatus = "idle"
	// WorkerStatusWorking indicates the worker is executing a task.
	WorkerStatusWorking WorkerStatus = "working"
	// WorkerStatusPaused indicates the worker is temporarily stopped.
	WorkerStatusPaused WorkerStatus = "paused"
	// WorkerStatusError indicates the worker encountered an error.
	WorkerStatusError WorkerStatus = "error"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusIdle, WorkerStatusWorking, WorkerStatusPaused, WorkerStatusError:
		return true
	default:
		return false
	}
}

// Lifecycle distinguishes long-lived workers from ones spawned for a single subtask.
type Lifecycle string

const (
	// LifecyclePermanent workers persist across tasks.
	LifecyclePermanent Lifecycle = "permanent"
	// LifecycleEphemeral workers are created for one subtask and retired afterwards.
	LifecycleEphemeral Lifecycle = "ephemeral"
)

// Worker (a "hollon") is an autonomous agent that executes leaf tasks.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Name is the display name, also used in branch names.
	Name string `json:"name"`
	// Lifecycle is permanent or ephemeral.
	Lifecycle Lifecycle `json:"lifecycle"`
	// Status is the current state of the worker.
	Status WorkerStatus `json:"status"`
	// RoleID references the worker's role.
	RoleID string `json:"role_id"`
	// TeamID is the team the worker belongs to.
	TeamID string `json:"team_id,omitempty"`
	// Depth is 0 for permanent workers and >0 for ephemeral sub-workers.
	Depth int `json:"depth"`
	// ParentWorkerID is the worker that spawned this one, for ephemeral workers.
	ParentWorkerID string `json:"parent_worker_id,omitempty"`
	// CreatedAt is when the worker was created.
	CreatedAt time.Time `json:"created_at"`
}

// IsAvailable returns true if the worker can take on more work.
func (w *Worker) IsAvailable() bool {
	return w.Status == WorkerStatusIdle || w.Status == WorkerStatusWorking
}

// IsEphemeral returns true for sub-workers spawned during decomposition.
func (w *Worker) IsEphemeral() bool {
	return w.Lifecycle == LifecycleEphemeral
}

// Specialization is the kind of work a role is tuned for.
type Specialization string

const (
	SpecializationPlanning       Specialization = "planning"
	SpecializationImplementation Specialization = "implementation"
	SpecializationTesting        Specialization = "testing"
	SpecializationIntegration    Specialization = "integration"
)

// Role describes a worker's capabilities and experience.
type Role struct {
	// ID is the unique identifier for this role.
	ID string `json:"id"`
	// Name is the display name of the role.
	Name string `json:"name"`
	// Capabilities lists the skills the role provides.
	Capabilities []string `json:"capabilities,omitempty"`
	// Tier is the experience level.
	Tier Tier `json:"tier"`
	// Specialization is the kind of subtask this role is preferred for.
	Specialization Specialization `json:"specialization,omitempty"`
}

// HasCapability reports whether the role lists skill (case-insensitive).
func (r *Role) HasCapability(skill string) bool {
	for _, c := range r.Capabilities {
		if strings.EqualFold(c, skill) {
			return true
		}
	}
	return false
}
