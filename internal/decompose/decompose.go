// Package decompose breaks aggregate tasks down across the team tree and
// splits running leaf tasks into subtasks handled by ephemeral workers.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/graph"
	"github.com/ShayCichocki/hollon/internal/matcher"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var (
	// ErrDepthExceeded is returned when a breakdown would create a task deeper than allowed.
	ErrDepthExceeded = errors.New("decomposition depth exceeded")
	// ErrFanOutExceeded is returned when a breakdown would give a task too many children.
	ErrFanOutExceeded = errors.New("decomposition fan-out exceeded")
	// ErrNoWorkItems is returned when there is nothing to create.
	ErrNoWorkItems = errors.New("no work items")
	// ErrNoWorkers is returned when a leaf team has no permanent workers.
	ErrNoWorkers = errors.New("team has no workers")
	// ErrNotAggregate is returned when DecomposeAggregate gets a leaf task.
	ErrNotAggregate = errors.New("task is not an aggregate")
	// ErrNoTeam is returned when an aggregate is not owned by a team.
	ErrNoTeam = errors.New("aggregate task has no team")
	// ErrNotEphemeral is returned when retiring a permanent worker.
	ErrNotEphemeral = errors.New("worker is not ephemeral")
)

// Store is the persistence the engine needs.
type Store interface {
	state.TaskStore
	state.WorkerStore
	state.RoleStore
	state.TeamStore
}

// Config bounds the shape of decompositions.
type Config struct {
	// MaxDepth is the deepest Depth any created task may have.
	MaxDepth int
	// MaxSubtasks is the most children a single task may receive.
	MaxSubtasks int
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{MaxDepth: 3, MaxSubtasks: 10}
}

// Engine creates child tasks from work items.
type Engine struct {
	store    Store
	workload matcher.WorkloadCounter
	graphs   *graph.Service
	cfg      Config
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the decomposition bounds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithWorkloadCounter overrides how worker load is measured.
func WithWorkloadCounter(w matcher.WorkloadCounter) Option {
	return func(e *Engine) { e.workload = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		workload: matcher.StoreWorkload{Tasks: store},
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.graphs = graph.NewService(store, e.logger)
	return e
}

// Result lists what a decomposition created.
type Result struct {
	// Parent is the decomposed task after its update.
	Parent *models.Task
	// Aggregates are intermediate tasks handed to child teams.
	Aggregates []*models.Task
	// Leaves are the executable tasks.
	Leaves []*models.Task
	// Workers are ephemeral workers spawned for in-flight subtasks.
	Workers []*models.Worker
}

// Created returns every created task, parents before children.
func (r *Result) Created() []*models.Task {
	out := make([]*models.Task, 0, len(r.Aggregates)+len(r.Leaves))
	out = append(out, r.Aggregates...)
	return append(out, r.Leaves...)
}

type frame struct {
	parent *models.Task
	teamID string
	items  []models.WorkItem
}

// DecomposeAggregate distributes items over the team tree below the task's
// team. Teams with sub-teams get one sub-aggregate per child team holding a
// round-robin share of the items; leaf teams get one implementation task per
// item. The whole tree is planned and bounds-checked before anything is
// persisted.
func (e *Engine) DecomposeAggregate(ctx context.Context, task *models.Task, items []models.WorkItem) (*Result, error) {
	if task.Type != models.TaskTypeAggregate {
		return nil, fmt.Errorf("task %s: %w", task.ID, ErrNotAggregate)
	}
	if task.AssignedTeamID == "" {
		return nil, fmt.Errorf("task %s: %w", task.ID, ErrNoTeam)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("task %s: %w", task.ID, ErrNoWorkItems)
	}

	res := &Result{Parent: task}
	load := make(map[string]int)
	now := time.Now()

	stack := []frame{{parent: task, teamID: task.AssignedTeamID, items: items}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := e.store.ListChildTeams(ctx, f.teamID)
		if err != nil {
			return nil, fmt.Errorf("list child teams of %s: %w", f.teamID, err)
		}

		if len(children) > 0 {
			shares := distribute(f.items, len(children))
			if err := e.checkBounds(f.parent, nonEmpty(shares)); err != nil {
				return nil, err
			}
			var frames []frame
			for i, team := range children {
				if len(shares[i]) == 0 {
					continue
				}
				sub := e.subAggregate(f.parent, team, shares[i], now)
				res.Aggregates = append(res.Aggregates, sub)
				frames = append(frames, frame{parent: sub, teamID: team.ID, items: shares[i]})
			}
			// Reverse so child teams are expanded in list order.
			for i := len(frames) - 1; i >= 0; i-- {
				stack = append(stack, frames[i])
			}
			continue
		}

		if err := e.checkBounds(f.parent, len(f.items)); err != nil {
			return nil, err
		}
		leaves, err := e.leafTasks(ctx, f, load, now)
		if err != nil {
			return nil, err
		}
		res.Leaves = append(res.Leaves, leaves...)
	}

	prev := task.Status
	task.Status = models.TaskStatusBlocked
	if err := e.persist(ctx, res); err != nil {
		task.Status = prev
		return nil, err
	}
	e.logger.Info("aggregate decomposed",
		zap.String("task_id", task.ID),
		zap.Int("aggregates", len(res.Aggregates)),
		zap.Int("leaves", len(res.Leaves)))
	return res, nil
}

func (e *Engine) checkBounds(parent *models.Task, children int) error {
	if e.cfg.MaxDepth > 0 && parent.Depth+1 > e.cfg.MaxDepth {
		return fmt.Errorf("task %s at depth %d (max %d): %w", parent.ID, parent.Depth, e.cfg.MaxDepth, ErrDepthExceeded)
	}
	if e.cfg.MaxSubtasks > 0 && children > e.cfg.MaxSubtasks {
		return fmt.Errorf("task %s would get %d children (max %d): %w", parent.ID, children, e.cfg.MaxSubtasks, ErrFanOutExceeded)
	}
	return nil
}

// distribute deals items round-robin into n buckets.
func distribute(items []models.WorkItem, n int) [][]models.WorkItem {
	out := make([][]models.WorkItem, n)
	for i, it := range items {
		out[i%n] = append(out[i%n], it)
	}
	return out
}

func nonEmpty(shares [][]models.WorkItem) int {
	n := 0
	for _, s := range shares {
		if len(s) > 0 {
			n++
		}
	}
	return n
}

func (e *Engine) subAggregate(parent *models.Task, team *models.Team, items []models.WorkItem, now time.Time) *models.Task {
	var b strings.Builder
	fmt.Fprintf(&b, "Work for team %s from %q:\n", team.Name, parent.Title)
	var files, skills []string
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it.Title)
		files = append(files, it.AffectedFiles...)
		skills = append(skills, it.RequiredSkills...)
	}
	return &models.Task{
		ID:             uuid.NewString(),
		ParentID:       parent.ID,
		Title:          fmt.Sprintf("%s (%s)", parent.Title, team.Name),
		Description:    b.String(),
		Type:           models.TaskTypeAggregate,
		Status:         models.TaskStatusBlocked,
		Priority:       parent.Priority,
		AssignedTeamID: team.ID,
		Depth:          parent.Depth + 1,
		RequiredSkills: dedupe(skills),
		AffectedFiles:  dedupe(files),
		Tags:           append([]string(nil), parent.Tags...),
		CreatedAt:      now,
	}
}

// leafTasks builds one implementation task per item for a leaf team and
// links title dependencies among them.
func (e *Engine) leafTasks(ctx context.Context, f frame, load map[string]int, now time.Time) ([]*models.Task, error) {
	workers, err := e.store.ListWorkers(ctx, state.WorkerFilter{TeamID: f.teamID, Lifecycle: models.LifecyclePermanent})
	if err != nil {
		return nil, fmt.Errorf("list workers of team %s: %w", f.teamID, err)
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("team %s: %w", f.teamID, ErrNoWorkers)
	}

	tasks := make([]*models.Task, 0, len(f.items))
	for _, it := range f.items {
		w, err := e.leastLoaded(ctx, workers, load)
		if err != nil {
			return nil, err
		}
		load[w.ID]++
		t := fromItem(f.parent, it, now)
		t.AssignWorker(w.ID)
		tasks = append(tasks, t)
	}

	if err := e.linkSiblings(tasks, f.items); err != nil {
		return nil, err
	}
	return tasks, nil
}

// leastLoaded picks the idle worker with the fewest active tasks, counting
// tasks planned in this run. With no idle worker the first worker is used.
func (e *Engine) leastLoaded(ctx context.Context, workers []*models.Worker, planned map[string]int) (*models.Worker, error) {
	var best *models.Worker
	bestLoad := 0
	for _, w := range workers {
		if w.Status != models.WorkerStatusIdle {
			continue
		}
		n, err := e.workload.ActiveTasks(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("workload of %s: %w", w.ID, err)
		}
		n += planned[w.ID]
		if best == nil || n < bestLoad {
			best, bestLoad = w, n
		}
	}
	if best == nil {
		return workers[0], nil
	}
	return best, nil
}

func fromItem(parent *models.Task, it models.WorkItem, now time.Time) *models.Task {
	prio := it.Priority
	if prio == "" {
		prio = parent.Priority
	}
	return &models.Task{
		ID:                 uuid.NewString(),
		ParentID:           parent.ID,
		Title:              it.Title,
		Description:        it.Description,
		AcceptanceCriteria: append([]string(nil), it.AcceptanceCriteria...),
		Type:               models.TaskTypeImplementation,
		Status:             models.TaskStatusReady,
		Priority:           prio,
		Depth:              parent.Depth + 1,
		RequiredSkills:     append([]string(nil), it.RequiredSkills...),
		AffectedFiles:      append([]string(nil), it.AffectedFiles...),
		Tags:               append([]string(nil), parent.Tags...),
		Metadata:           models.TaskMetadata{EstimatedCommits: it.EstimatedCommits},
		CreatedAt:          now,
	}
}

// linkSiblings resolves item dependency titles against the sibling set.
// Tasks with at least one resolved dependency become BLOCKED; unresolvable
// titles are ignored. A cycle among siblings fails the whole plan.
func (e *Engine) linkSiblings(tasks []*models.Task, items []models.WorkItem) error {
	byTitle := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byTitle[normalizeTitle(t.Title)] = t
	}

	g := graph.New(graph.WithLogger(e.logger))
	if err := g.Build(tasks); err != nil {
		return err
	}
	for i, it := range items {
		t := tasks[i]
		for _, title := range it.DependsOn {
			dep, ok := byTitle[normalizeTitle(title)]
			if !ok {
				e.logger.Debug("unresolved dependency title", zap.String("task", t.Title), zap.String("depends_on", title))
				continue
			}
			if err := g.AddDependency(t.ID, dep.ID); err != nil {
				return fmt.Errorf("link %q -> %q: %w", t.Title, dep.Title, err)
			}
		}
		if len(t.DependsOn) > 0 {
			t.Status = models.TaskStatusBlocked
		}
	}
	return nil
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// persist writes the planned workers and tasks and saves the parent. On
// failure the records created so far are removed.
func (e *Engine) persist(ctx context.Context, res *Result) error {
	var created, spawned []string
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			if err := e.store.DeleteTask(ctx, created[i]); err != nil {
				e.logger.Warn("rollback delete failed", zap.String("task_id", created[i]), zap.Error(err))
			}
		}
		for _, id := range spawned {
			if err := e.store.DeleteWorker(ctx, id); err != nil {
				e.logger.Warn("rollback delete failed", zap.String("worker_id", id), zap.Error(err))
			}
		}
	}

	for _, w := range res.Workers {
		if err := e.store.CreateWorker(ctx, w); err != nil {
			rollback()
			return fmt.Errorf("create worker %s: %w", w.Name, err)
		}
		spawned = append(spawned, w.ID)
	}
	for _, t := range res.Created() {
		if err := e.store.CreateTask(ctx, t); err != nil {
			rollback()
			return fmt.Errorf("create task %q: %w", t.Title, err)
		}
		created = append(created, t.ID)
	}

	if err := e.store.UpdateTask(ctx, res.Parent); err != nil {
		rollback()
		return fmt.Errorf("block parent %s: %w", res.Parent.ID, err)
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
