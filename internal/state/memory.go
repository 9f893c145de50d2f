package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// Memory is an in-process Store with the same semantics as DB.
// Records are copied on the way in and out so callers never share state.
type Memory struct {
	mu        sync.RWMutex
	tasks     map[string]*models.Task
	workers   map[string]models.Worker
	roles     map[string]*models.Role
	teams     map[string]models.Team
	orgs      map[string]models.Organization
	documents map[string]*models.Document
	prs       map[string]models.PullRequest
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[string]*models.Task),
		workers:   make(map[string]models.Worker),
		roles:     make(map[string]*models.Role),
		teams:     make(map[string]models.Team),
		orgs:      make(map[string]models.Organization),
		documents: make(map[string]*models.Document),
		prs:       make(map[string]models.PullRequest),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) CreateTask(_ context.Context, t *models.Task) error {
	if err := t.ValidateAssignment(); err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("insert task %s: already exists", t.ID)
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *Memory) GetTask(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (m *Memory) UpdateTask(_ context.Context, t *models.Task) error {
	if err := t.ValidateAssignment(); err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	if cur.Version != t.Version {
		return fmt.Errorf("task %s at version %d: %w", t.ID, t.Version, ErrVersionConflict)
	}
	t.Version++
	t.UpdatedAt = time.Now()
	t.CreatedAt = cur.CreatedAt
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *Memory) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) ListTasks(_ context.Context, f TaskFilter) ([]*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Task
	for _, t := range m.tasks {
		if f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateWorker(_ context.Context, w *models.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[w.ID]; ok {
		return fmt.Errorf("insert worker %s: already exists", w.ID)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	m.workers[w.ID] = *w
	return nil
}

func (m *Memory) GetWorker(_ context.Context, id string) (*models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	return &w, nil
}

func (m *Memory) UpdateWorker(_ context.Context, w *models.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[w.ID]; !ok {
		return fmt.Errorf("worker %s: %w", w.ID, ErrNotFound)
	}
	m.workers[w.ID] = *w
	return nil
}

func (m *Memory) DeleteWorker(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[id]; !ok {
		return fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	delete(m.workers, id)
	return nil
}

func (m *Memory) ListWorkers(_ context.Context, f WorkerFilter) ([]*models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Worker
	for _, w := range m.workers {
		if f.Match(&w) {
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateRole(_ context.Context, r *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[r.ID]; ok {
		return fmt.Errorf("insert role %s: already exists", r.ID)
	}
	m.roles[r.ID] = cloneRole(r)
	return nil
}

func (m *Memory) GetRole(_ context.Context, id string) (*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", id, ErrNotFound)
	}
	return cloneRole(r), nil
}

func (m *Memory) UpdateRole(_ context.Context, r *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[r.ID]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, ErrNotFound)
	}
	m.roles[r.ID] = cloneRole(r)
	return nil
}

func (m *Memory) ListRoles(_ context.Context) ([]*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneRole(r *models.Role) *models.Role {
	c := *r
	if r.Capabilities != nil {
		c.Capabilities = append([]string(nil), r.Capabilities...)
	}
	return &c
}

func (m *Memory) CreateTeam(_ context.Context, t *models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[t.ID]; ok {
		return fmt.Errorf("insert team %s: already exists", t.ID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.teams[t.ID] = *t
	return nil
}

func (m *Memory) GetTeam(_ context.Context, id string) (*models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) UpdateTeam(_ context.Context, t *models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[t.ID]; !ok {
		return fmt.Errorf("team %s: %w", t.ID, ErrNotFound)
	}
	m.teams[t.ID] = *t
	return nil
}

func (m *Memory) ListTeams(_ context.Context) ([]*models.Team, error) {
	return m.filterTeams(func(*models.Team) bool { return true }), nil
}

func (m *Memory) ListChildTeams(_ context.Context, parentID string) ([]*models.Team, error) {
	return m.filterTeams(func(t *models.Team) bool { return t.ParentTeamID == parentID }), nil
}

func (m *Memory) filterTeams(keep func(*models.Team) bool) []*models.Team {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Team
	for _, t := range m.teams {
		if keep(&t) {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) CreateOrganization(_ context.Context, o *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[o.ID]; ok {
		return fmt.Errorf("insert organization %s: already exists", o.ID)
	}
	if o.BaseBranch == "" {
		o.BaseBranch = "main"
	}
	m.orgs[o.ID] = *o
	return nil
}

func (m *Memory) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return &o, nil
}

func (m *Memory) UpdateOrganization(_ context.Context, o *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[o.ID]; !ok {
		return fmt.Errorf("organization %s: %w", o.ID, ErrNotFound)
	}
	m.orgs[o.ID] = *o
	return nil
}

func (m *Memory) ListOrganizations(_ context.Context) ([]*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateDocument(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[d.ID]; ok {
		return fmt.Errorf("insert document %s: already exists", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	m.documents[d.ID] = cloneDocument(d)
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return cloneDocument(d), nil
}

func (m *Memory) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	delete(m.documents, id)
	return nil
}

func (m *Memory) ListDocuments(_ context.Context, f DocumentFilter) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Document
	for _, d := range m.documents {
		if f.Match(d) {
			out = append(out, cloneDocument(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneDocument(d *models.Document) *models.Document {
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	return &c
}

func (m *Memory) CreatePullRequest(_ context.Context, pr *models.PullRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prs[pr.ID]; ok {
		return fmt.Errorf("insert pull request %s: already exists", pr.ID)
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now()
	}
	if pr.Status == "" {
		pr.Status = models.PullRequestOpen
	}
	m.prs[pr.ID] = *pr
	return nil
}

func (m *Memory) GetPullRequest(_ context.Context, id string) (*models.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr, ok := m.prs[id]
	if !ok {
		return nil, fmt.Errorf("pull request %s: %w", id, ErrNotFound)
	}
	return &pr, nil
}

func (m *Memory) UpdatePullRequest(_ context.Context, pr *models.PullRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prs[pr.ID]; !ok {
		return fmt.Errorf("pull request %s: %w", pr.ID, ErrNotFound)
	}
	m.prs[pr.ID] = *pr
	return nil
}

func (m *Memory) ListPullRequests(_ context.Context, taskID string) ([]*models.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.PullRequest
	for _, pr := range m.prs {
		if pr.TaskID == taskID {
			out = append(out, &pr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
