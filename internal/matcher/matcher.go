// Package matcher scores workers against tasks and assigns work across a
// worker pool.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// ErrNoCandidates is returned when no worker in the pool can take the task.
var ErrNoCandidates = errors.New("no available workers")

// Config holds matching thresholds.
type Config struct {
	// QualityThreshold is the score below which an assignment is reported as weak.
	QualityThreshold float64
	// OverloadThreshold is the active task count at which a worker is reported overloaded.
	OverloadThreshold int
	// MaxAlternatives bounds the alternatives returned by RecommendWorker.
	MaxAlternatives int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		QualityThreshold:  60,
		OverloadThreshold: 10,
		MaxAlternatives:   3,
	}
}

// WorkloadCounter reports how many active tasks a worker holds.
type WorkloadCounter interface {
	ActiveTasks(ctx context.Context, workerID string) (int, error)
}

// KnowledgeIndex reports whether prior knowledge exists for any of the tags.
type KnowledgeIndex interface {
	HasKnowledge(ctx context.Context, tags []string) (bool, error)
}

// Candidate is a scored worker.
type Candidate struct {
	Worker      *models.Worker `json:"worker" yaml:"worker"`
	Score       Breakdown      `json:"score" yaml:"score"`
	ActiveTasks int            `json:"active_tasks" yaml:"active_tasks"`
}

// Recommendation is the best worker for a task plus ranked alternatives.
type Recommendation struct {
	TaskID       string      `json:"task_id" yaml:"task_id"`
	Best         Candidate   `json:"best" yaml:"best"`
	Alternatives []Candidate `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// Assignment records one task handed to one worker.
type Assignment struct {
	TaskID   string  `json:"task_id" yaml:"task_id"`
	WorkerID string  `json:"worker_id" yaml:"worker_id"`
	Score    float64 `json:"score" yaml:"score"`
}

// AssignmentReport summarises an AssignProject run.
type AssignmentReport struct {
	Assignments    []Assignment `json:"assignments" yaml:"assignments"`
	Unassigned     []string     `json:"unassigned,omitempty" yaml:"unassigned,omitempty"`
	AverageQuality float64      `json:"average_quality" yaml:"average_quality"`
	Warnings       []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Matcher scores and assigns tasks to workers.
type Matcher struct {
	tasks     state.TaskStore
	roles     state.RoleStore
	workload  WorkloadCounter
	knowledge KnowledgeIndex
	cfg       Config
	logger    *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) Option {
	return func(m *Matcher) { m.cfg = cfg }
}

// WithKnowledgeIndex sets the knowledge source. Without one the knowledge component is always 0.
func WithKnowledgeIndex(k KnowledgeIndex) Option {
	return func(m *Matcher) { m.knowledge = k }
}

// WithWorkloadCounter replaces the store-backed workload counter.
func WithWorkloadCounter(w WorkloadCounter) Option {
	return func(m *Matcher) { m.workload = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Matcher. Assignments are persisted through tasks.
func New(tasks state.TaskStore, roles state.RoleStore, opts ...Option) *Matcher {
	m := &Matcher{
		tasks:    tasks,
		roles:    roles,
		workload: StoreWorkload{Tasks: tasks},
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Score computes the match breakdown of task against worker.
func (m *Matcher) Score(ctx context.Context, task *models.Task, worker *models.Worker) (Breakdown, error) {
	sig, err := m.signals(ctx, task, worker, nil)
	if err != nil {
		return Breakdown{}, err
	}
	return ComputeScore(task, sig), nil
}

// RecommendWorker returns the best permanent idle-or-working worker in pool.
// Ties are broken by lower workload, then by worker ID.
func (m *Matcher) RecommendWorker(ctx context.Context, task *models.Task, pool []*models.Worker) (*Recommendation, error) {
	candidates, err := m.rank(ctx, task, eligible(pool), nil)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("recommend worker for task %s: %w", task.ID, ErrNoCandidates)
	}

	rec := &Recommendation{TaskID: task.ID, Best: candidates[0]}
	alts := candidates[1:]
	if len(alts) > m.cfg.MaxAlternatives {
		alts = alts[:m.cfg.MaxAlternatives]
	}
	rec.Alternatives = alts
	return rec, nil
}

// AssignProject greedily assigns every unassigned task to the best available
// worker. Workload is tracked across the run so later tasks see earlier
// assignments.
func (m *Matcher) AssignProject(ctx context.Context, tasks []*models.Task, workers []*models.Worker) (*AssignmentReport, error) {
	pool := eligible(workers)
	report := &AssignmentReport{}

	load := make(map[string]int, len(pool))
	for _, w := range pool {
		n, err := m.workload.ActiveTasks(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("count workload for %s: %w", w.ID, err)
		}
		load[w.ID] = n
	}

	pending := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsAssigned() || t.Status.Terminal() || t.Type == models.TaskTypeAggregate {
			continue
		}
		pending = append(pending, t)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority.Rank() < pending[j].Priority.Rank()
	})

	var total float64
	for _, t := range pending {
		candidates, err := m.rank(ctx, t, pool, load)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			report.Unassigned = append(report.Unassigned, t.ID)
			continue
		}
		best := candidates[0]

		t.AssignWorker(best.Worker.ID)
		if err := m.tasks.UpdateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("assign task %s: %w", t.ID, err)
		}
		load[best.Worker.ID]++
		total += best.Score.Total

		report.Assignments = append(report.Assignments, Assignment{
			TaskID:   t.ID,
			WorkerID: best.Worker.ID,
			Score:    best.Score.Total,
		})
		if best.Score.Total < m.cfg.QualityThreshold {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"task %s assigned to %s with low match score %.1f", t.ID, best.Worker.Name, best.Score.Total))
		}
		m.logger.Debug("task assigned",
			zap.String("task_id", t.ID),
			zap.String("worker_id", best.Worker.ID),
			zap.Float64("score", best.Score.Total))
	}

	for _, w := range pool {
		if load[w.ID] >= m.cfg.OverloadThreshold {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"worker %s is overloaded with %d active tasks", w.Name, load[w.ID]))
		}
	}
	if n := len(report.Assignments); n > 0 {
		report.AverageQuality = total / float64(n)
	}
	return report, nil
}

// RebalanceWorkload unassigns every pending or ready task held by the given
// workers and reruns AssignProject over them.
func (m *Matcher) RebalanceWorkload(ctx context.Context, workers []*models.Worker) (*AssignmentReport, error) {
	var scoped []*models.Task
	for _, w := range workers {
		tasks, err := m.tasks.ListTasks(ctx, state.TaskFilter{
			AssignedWorkerID: w.ID,
			Statuses:         []models.TaskStatus{models.TaskStatusPending, models.TaskStatusReady},
		})
		if err != nil {
			return nil, fmt.Errorf("list tasks for %s: %w", w.ID, err)
		}
		for _, t := range tasks {
			if t.Type == models.TaskTypeAggregate {
				continue
			}
			t.Unassign()
			if err := m.tasks.UpdateTask(ctx, t); err != nil {
				return nil, fmt.Errorf("unassign task %s: %w", t.ID, err)
			}
			scoped = append(scoped, t)
		}
	}

	m.logger.Info("rebalancing workload",
		zap.Int("tasks", len(scoped)),
		zap.Int("workers", len(workers)))
	return m.AssignProject(ctx, scoped, workers)
}

// rank scores task against pool and sorts best first. When load is non-nil it
// is used instead of querying the workload counter.
func (m *Matcher) rank(ctx context.Context, task *models.Task, pool []*models.Worker, load map[string]int) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(pool))
	for _, w := range pool {
		sig, err := m.signals(ctx, task, w, load)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			Worker:      w,
			Score:       ComputeScore(task, sig),
			ActiveTasks: sig.ActiveTasks,
		})
	}
	sortCandidates(candidates)
	return candidates, nil
}

func (m *Matcher) signals(ctx context.Context, task *models.Task, w *models.Worker, load map[string]int) (Signals, error) {
	sig := Signals{Status: w.Status}

	if w.RoleID != "" {
		role, err := m.roles.GetRole(ctx, w.RoleID)
		switch {
		case err == nil:
			sig.Role = role
		case errors.Is(err, state.ErrNotFound):
			m.logger.Warn("worker role missing", zap.String("worker_id", w.ID), zap.String("role_id", w.RoleID))
		default:
			return sig, fmt.Errorf("get role %s: %w", w.RoleID, err)
		}
	}

	if n, ok := load[w.ID]; ok {
		sig.ActiveTasks = n
	} else {
		n, err := m.workload.ActiveTasks(ctx, w.ID)
		if err != nil {
			return sig, fmt.Errorf("count workload for %s: %w", w.ID, err)
		}
		sig.ActiveTasks = n
	}

	if m.knowledge != nil {
		has, err := m.knowledge.HasKnowledge(ctx, knowledgeTags(task))
		if err != nil {
			return sig, fmt.Errorf("lookup knowledge for %s: %w", task.ID, err)
		}
		sig.HasKnowledge = has
	}
	return sig, nil
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score.Total != c[j].Score.Total {
			return c[i].Score.Total > c[j].Score.Total
		}
		if c[i].ActiveTasks != c[j].ActiveTasks {
			return c[i].ActiveTasks < c[j].ActiveTasks
		}
		return c[i].Worker.ID < c[j].Worker.ID
	})
}

// eligible keeps permanent workers that are idle or working.
func eligible(pool []*models.Worker) []*models.Worker {
	out := make([]*models.Worker, 0, len(pool))
	for _, w := range pool {
		if w == nil || w.IsEphemeral() || !w.IsAvailable() {
			continue
		}
		out = append(out, w)
	}
	return out
}

func knowledgeTags(task *models.Task) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, group := range [][]string{task.RequiredSkills, task.Tags} {
		for _, s := range group {
			k := strings.ToLower(strings.TrimSpace(s))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			tags = append(tags, k)
		}
	}
	return tags
}
