// Package state provides persistence for tasks, workers, teams and the
// records the orchestrator produces while executing them.
package state

import (
	"context"
	"errors"
	"io"

	"github.com/ShayCichocki/hollon/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an update was computed from a stale copy.
	ErrVersionConflict = errors.New("version conflict")
)

// TaskFilter selects tasks. Zero-valued fields are ignored.
type TaskFilter struct {
	Statuses         []models.TaskStatus
	AssignedWorkerID string
	AssignedTeamID   string
	ParentID         string
	Type             models.TaskType
	// Unassigned restricts results to tasks with neither a worker nor a team.
	Unassigned bool
}

// WorkerFilter selects workers. Zero-valued fields are ignored.
type WorkerFilter struct {
	TeamID    string
	Statuses  []models.WorkerStatus
	Lifecycle models.Lifecycle
}

// DocumentFilter selects documents. AnyTags matches documents carrying at
// least one of the given tags (case-insensitive).
type DocumentFilter struct {
	TaskID  string
	Type    models.DocumentType
	AnyTags []string
}

// TaskStore handles task persistence.
// UpdateTask fails with ErrVersionConflict when t.Version does not match the
// stored version; on success t.Version is advanced.
type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, f TaskFilter) ([]*models.Task, error)
}

// WorkerStore handles worker persistence.
type WorkerStore interface {
	CreateWorker(ctx context.Context, w *models.Worker) error
	GetWorker(ctx context.Context, id string) (*models.Worker, error)
	UpdateWorker(ctx context.Context, w *models.Worker) error
	DeleteWorker(ctx context.Context, id string) error
	ListWorkers(ctx context.Context, f WorkerFilter) ([]*models.Worker, error)
}

// RoleStore handles role persistence.
type RoleStore interface {
	CreateRole(ctx context.Context, r *models.Role) error
	GetRole(ctx context.Context, id string) (*models.Role, error)
	UpdateRole(ctx context.Context, r *models.Role) error
	ListRoles(ctx context.Context) ([]*models.Role, error)
}

// TeamStore handles team persistence.
type TeamStore interface {
	CreateTeam(ctx context.Context, t *models.Team) error
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	UpdateTeam(ctx context.Context, t *models.Team) error
	ListTeams(ctx context.Context) ([]*models.Team, error)
	ListChildTeams(ctx context.Context, parentID string) ([]*models.Team, error)
}

// OrganizationStore handles organization persistence.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, o *models.Organization) error
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, o *models.Organization) error
	ListOrganizations(ctx context.Context) ([]*models.Organization, error)
}

// DocumentStore handles knowledge and result records.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, f DocumentFilter) ([]*models.Document, error)
}

// PullRequestStore handles change-request records.
type PullRequestStore interface {
	CreatePullRequest(ctx context.Context, pr *models.PullRequest) error
	GetPullRequest(ctx context.Context, id string) (*models.PullRequest, error)
	UpdatePullRequest(ctx context.Context, pr *models.PullRequest) error
	ListPullRequests(ctx context.Context, taskID string) ([]*models.PullRequest, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Store composes every persistence port used by the orchestrator.
type Store interface {
	io.Closer
	TaskStore
	WorkerStore
	RoleStore
	TeamStore
	OrganizationStore
	DocumentStore
	PullRequestStore
}

// Compile-time verification that both backends implement all interfaces.
var (
	_ Store    = (*DB)(nil)
	_ Migrator = (*DB)(nil)
	_ Store    = (*Memory)(nil)
)
