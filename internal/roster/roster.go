// Package roster imports and exports the standing organization of a Hollon
// installation (organizations, roles, teams, permanent workers and seed
// tasks) as a YAML document.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// Roster is the YAML document.
type Roster struct {
	Organizations []Organization `yaml:"organizations,omitempty"`
	Roles         []Role         `yaml:"roles,omitempty"`
	Teams         []Team         `yaml:"teams,omitempty"`
	Workers       []Worker       `yaml:"workers,omitempty"`
	Tasks         []Task         `yaml:"tasks,omitempty"`
}

type Organization struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	BaseBranch     string `yaml:"base_branch,omitempty"`
	RepositoryPath string `yaml:"repository_path,omitempty"`
}

type Role struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Tier           string   `yaml:"tier"`
	Specialization string   `yaml:"specialization,omitempty"`
	Capabilities   []string `yaml:"capabilities,omitempty"`
}

type Team struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Organization  string `yaml:"organization,omitempty"`
	Parent        string `yaml:"parent,omitempty"`
	ManagerWorker string `yaml:"manager,omitempty"`
}

type Worker struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
	Team string `yaml:"team,omitempty"`
}

// Task seeds a top-level task. Tasks that already exist are left alone.
type Task struct {
	ID                 string   `yaml:"id,omitempty"`
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description,omitempty"`
	Type               string   `yaml:"type,omitempty"`
	Priority           string   `yaml:"priority,omitempty"`
	Team               string   `yaml:"team,omitempty"`
	Worker             string   `yaml:"worker,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty"`
	RequiredSkills     []string `yaml:"required_skills,omitempty"`
	AffectedFiles      []string `yaml:"affected_files,omitempty"`
	Tags               []string `yaml:"tags,omitempty"`
	DependsOn          []string `yaml:"depends_on,omitempty"`
}

// Decode reads a roster. Unknown keys are rejected so typos surface early.
func Decode(r io.Reader) (*Roster, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out Roster
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return &out, nil
		}
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return &out, nil
}

// Encode writes the roster as YAML.
func (r *Roster) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	return enc.Close()
}

// Validate checks that IDs are unique and every reference resolves within
// the document.
func (r *Roster) Validate() error {
	var errs []string
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	orgs := idSet(len(r.Organizations))
	for _, o := range r.Organizations {
		if !orgs.add(o.ID) {
			fail("organization %q: duplicate or empty id", o.ID)
		}
	}
	roles := idSet(len(r.Roles))
	for _, ro := range r.Roles {
		if !roles.add(ro.ID) {
			fail("role %q: duplicate or empty id", ro.ID)
		}
		if !models.Tier(ro.Tier).Valid() {
			fail("role %q: unknown tier %q", ro.ID, ro.Tier)
		}
	}
	teams := idSet(len(r.Teams))
	for _, t := range r.Teams {
		if !teams.add(t.ID) {
			fail("team %q: duplicate or empty id", t.ID)
		}
	}
	workers := idSet(len(r.Workers))
	for _, w := range r.Workers {
		if !workers.add(w.ID) {
			fail("worker %q: duplicate or empty id", w.ID)
		}
		if !roles[w.Role] {
			fail("worker %q: unknown role %q", w.ID, w.Role)
		}
		if w.Team != "" && !teams[w.Team] {
			fail("worker %q: unknown team %q", w.ID, w.Team)
		}
	}
	for _, t := range r.Teams {
		if t.Organization != "" && !orgs[t.Organization] {
			fail("team %q: unknown organization %q", t.ID, t.Organization)
		}
		if t.Parent != "" && !teams[t.Parent] {
			fail("team %q: unknown parent %q", t.ID, t.Parent)
		}
		if t.ManagerWorker != "" && !workers[t.ManagerWorker] {
			fail("team %q: unknown manager %q", t.ID, t.ManagerWorker)
		}
	}
	if _, err := teamOrder(r.Teams); err != nil {
		fail("%v", err)
	}

	tasks := idSet(len(r.Tasks))
	for i, t := range r.Tasks {
		name := t.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if strings.TrimSpace(t.Title) == "" {
			fail("task %s: missing title", name)
		}
		if t.ID != "" && !tasks.add(t.ID) {
			fail("task %s: duplicate id", name)
		}
		if t.Team != "" && t.Worker != "" {
			fail("task %s: assigned to both team %q and worker %q", name, t.Team, t.Worker)
		}
		if t.Team != "" && !teams[t.Team] {
			fail("task %s: unknown team %q", name, t.Team)
		}
		if t.Worker != "" && !workers[t.Worker] {
			fail("task %s: unknown worker %q", name, t.Worker)
		}
		if t.Type != "" && !models.TaskType(t.Type).Valid() {
			fail("task %s: unknown type %q", name, t.Type)
		}
	}
	for _, t := range r.Tasks {
		for _, dep := range t.DependsOn {
			if !tasks[dep] {
				fail("task %s: depends on unknown task %q", t.ID, dep)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid roster:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

type ids map[string]bool

func idSet(n int) ids { return make(ids, n) }

func (s ids) add(id string) bool {
	if id == "" || s[id] {
		return false
	}
	s[id] = true
	return true
}

// teamOrder returns teams with every parent ahead of its children.
func teamOrder(teams []Team) ([]Team, error) {
	byID := make(map[string]Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}
	const (
		visiting = 1
		done     = 2
	)
	mark := make(map[string]int, len(teams))
	out := make([]Team, 0, len(teams))

	var visit func(id string) error
	visit = func(id string) error {
		switch mark[id] {
		case visiting:
			return fmt.Errorf("team hierarchy has a cycle through %q", id)
		case done:
			return nil
		}
		mark[id] = visiting
		t := byID[id]
		if _, ok := byID[t.Parent]; ok {
			if err := visit(t.Parent); err != nil {
				return err
			}
		}
		mark[id] = done
		out = append(out, t)
		return nil
	}
	for _, t := range teams {
		if err := visit(t.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Result counts what an import changed.
type Result struct {
	Created      int
	Updated      int
	TasksSkipped int
}

// Import writes the roster into store. Organizations, roles, teams and
// workers are upserted by ID; tasks are created unless one with the same ID
// exists. Imported workers are permanent.
func Import(ctx context.Context, store state.Store, r *Roster, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	res := &Result{}
	now := time.Now()

	for _, o := range r.Organizations {
		org := &models.Organization{ID: o.ID, Name: o.Name, BaseBranch: o.BaseBranch, RepositoryPath: o.RepositoryPath}
		created, err := upsert(func() error { _, err := store.GetOrganization(ctx, o.ID); return err },
			func() error { return store.CreateOrganization(ctx, org) },
			func() error { return store.UpdateOrganization(ctx, org) })
		if err != nil {
			return res, fmt.Errorf("organization %s: %w", o.ID, err)
		}
		res.count(created)
	}

	for _, ro := range r.Roles {
		role := &models.Role{
			ID:             ro.ID,
			Name:           ro.Name,
			Tier:           models.Tier(ro.Tier),
			Specialization: models.Specialization(ro.Specialization),
			Capabilities:   ro.Capabilities,
		}
		created, err := upsert(func() error { _, err := store.GetRole(ctx, ro.ID); return err },
			func() error { return store.CreateRole(ctx, role) },
			func() error { return store.UpdateRole(ctx, role) })
		if err != nil {
			return res, fmt.Errorf("role %s: %w", ro.ID, err)
		}
		res.count(created)
	}

	// Teams are written without managers first; managers are workers that
	// may belong to the team itself.
	ordered, err := teamOrder(r.Teams)
	if err != nil {
		return res, err
	}
	for _, t := range ordered {
		team := &models.Team{ID: t.ID, Name: t.Name, OrganizationID: t.Organization, ParentTeamID: t.Parent, CreatedAt: now}
		var manager string
		created, err := upsert(
			func() error {
				existing, err := store.GetTeam(ctx, t.ID)
				if err == nil {
					manager = existing.ManagerWorkerID
					team.CreatedAt = existing.CreatedAt
				}
				return err
			},
			func() error { return store.CreateTeam(ctx, team) },
			func() error { team.ManagerWorkerID = manager; return store.UpdateTeam(ctx, team) })
		if err != nil {
			return res, fmt.Errorf("team %s: %w", t.ID, err)
		}
		res.count(created)
	}

	for _, w := range r.Workers {
		worker := &models.Worker{
			ID:        w.ID,
			Name:      w.Name,
			Lifecycle: models.LifecyclePermanent,
			Status:    models.WorkerStatusIdle,
			RoleID:    w.Role,
			TeamID:    w.Team,
			CreatedAt: now,
		}
		created, err := upsert(
			func() error {
				existing, err := store.GetWorker(ctx, w.ID)
				if err == nil {
					worker.Status = existing.Status
					worker.CreatedAt = existing.CreatedAt
				}
				return err
			},
			func() error { return store.CreateWorker(ctx, worker) },
			func() error { return store.UpdateWorker(ctx, worker) })
		if err != nil {
			return res, fmt.Errorf("worker %s: %w", w.ID, err)
		}
		res.count(created)
	}

	for _, t := range r.Teams {
		if t.ManagerWorker == "" {
			continue
		}
		team, err := store.GetTeam(ctx, t.ID)
		if err != nil {
			return res, fmt.Errorf("team %s: %w", t.ID, err)
		}
		if team.ManagerWorkerID == t.ManagerWorker {
			continue
		}
		team.ManagerWorkerID = t.ManagerWorker
		if err := store.UpdateTeam(ctx, team); err != nil {
			return res, fmt.Errorf("team %s manager: %w", t.ID, err)
		}
	}

	for _, t := range r.Tasks {
		if t.ID != "" {
			_, err := store.GetTask(ctx, t.ID)
			if err == nil {
				res.TasksSkipped++
				continue
			}
			if !errors.Is(err, state.ErrNotFound) {
				return res, fmt.Errorf("task %s: %w", t.ID, err)
			}
		}
		task := t.toModel(now)
		if err := store.CreateTask(ctx, task); err != nil {
			return res, fmt.Errorf("task %s: %w", task.ID, err)
		}
		res.Created++
	}

	logger.Info("roster imported",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("tasks_skipped", res.TasksSkipped))
	return res, nil
}

func (r *Result) count(created bool) {
	if created {
		r.Created++
	} else {
		r.Updated++
	}
}

func upsert(get, create, update func() error) (bool, error) {
	err := get()
	switch {
	case errors.Is(err, state.ErrNotFound):
		return true, create()
	case err != nil:
		return false, err
	default:
		return false, update()
	}
}

func (t Task) toModel(now time.Time) *models.Task {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	typ := models.TaskType(t.Type)
	if typ == "" {
		typ = models.TaskTypeImplementation
		if t.Team != "" {
			typ = models.TaskTypeAggregate
		}
	}
	status := models.TaskStatusReady
	if len(t.DependsOn) > 0 {
		status = models.TaskStatusBlocked
	}
	return &models.Task{
		ID:                 id,
		Title:              t.Title,
		Description:        t.Description,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Type:               typ,
		Status:             status,
		Priority:           models.ParsePriority(t.Priority),
		DependsOn:          t.DependsOn,
		AssignedWorkerID:   t.Worker,
		AssignedTeamID:     t.Team,
		RequiredSkills:     t.RequiredSkills,
		AffectedFiles:      t.AffectedFiles,
		Tags:               t.Tags,
		CreatedAt:          now,
	}
}

// Export reads the standing organization from store. Ephemeral workers and
// tasks are not exported.
func Export(ctx context.Context, store state.Store) (*Roster, error) {
	out := &Roster{}

	orgs, err := store.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	for _, o := range orgs {
		out.Organizations = append(out.Organizations, Organization{
			ID: o.ID, Name: o.Name, BaseBranch: o.BaseBranch, RepositoryPath: o.RepositoryPath,
		})
	}

	roles, err := store.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	for _, r := range roles {
		out.Roles = append(out.Roles, Role{
			ID: r.ID, Name: r.Name, Tier: string(r.Tier), Specialization: string(r.Specialization), Capabilities: r.Capabilities,
		})
	}

	teams, err := store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	for _, t := range teams {
		out.Teams = append(out.Teams, Team{
			ID: t.ID, Name: t.Name, Organization: t.OrganizationID, Parent: t.ParentTeamID, ManagerWorker: t.ManagerWorkerID,
		})
	}

	workers, err := store.ListWorkers(ctx, state.WorkerFilter{Lifecycle: models.LifecyclePermanent})
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	for _, w := range workers {
		out.Workers = append(out.Workers, Worker{ID: w.ID, Name: w.Name, Role: w.RoleID, Team: w.TeamID})
	}

	sort.Slice(out.Organizations, func(i, j int) bool { return out.Organizations[i].ID < out.Organizations[j].ID })
	sort.Slice(out.Roles, func(i, j int) bool { return out.Roles[i].ID < out.Roles[j].ID })
	sort.Slice(out.Teams, func(i, j int) bool { return out.Teams[i].ID < out.Teams[j].ID })
	sort.Slice(out.Workers, func(i, j int) bool { return out.Workers[i].ID < out.Workers[j].ID })
	return out, nil
}
