// Package uncertainty flags ambiguous tasks and generates time-boxed spike
// tasks to resolve them before implementation starts.
package uncertainty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// Factor is an independent binary risk signal.
type Factor string

const (
	FactorRequirementsSparsity  Factor = "requirements_sparsity"
	FactorTechnicalUnknown      Factor = "technical_unknown"
	FactorDependencyUncertainty Factor = "dependency_uncertainty"
	FactorScopeAmbiguity        Factor = "scope_ambiguity"
)

// Level is the overall uncertainty of a task.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// LevelFor maps a factor count to a level.
func LevelFor(factors int) Level {
	switch {
	case factors <= 0:
		return LevelLow
	case factors == 1:
		return LevelMedium
	case factors == 2:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ErrSpikeNotWarranted is returned when a spike is requested for a low or medium task.
var ErrSpikeNotWarranted = errors.New("spike only generated for high or critical uncertainty")

// ErrDepthExceeded is returned when the spike would sit below the maximum task depth.
var ErrDepthExceeded = errors.New("spike would exceed maximum task depth")

// Assessment is the result of analysing one task.
type Assessment struct {
	TaskID  string   `json:"task_id" yaml:"task_id"`
	Title   string   `json:"title" yaml:"title"`
	Level   Level    `json:"level" yaml:"level"`
	Factors []Factor `json:"factors,omitempty" yaml:"factors,omitempty"`
	Reasons []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// Has reports whether the assessment includes f.
func (a Assessment) Has(f Factor) bool {
	for _, x := range a.Factors {
		if x == f {
			return true
		}
	}
	return false
}

// NeedsSpike reports whether the level warrants an investigation task.
func (a Assessment) NeedsSpike() bool {
	return a.Level == LevelHigh || a.Level == LevelCritical
}

// Report aggregates a batch analysis.
type Report struct {
	Assessments []Assessment   `json:"assessments" yaml:"assessments"`
	Counts      map[Level]int  `json:"counts" yaml:"counts"`
	Spikes      []*models.Task `json:"spikes,omitempty" yaml:"spikes,omitempty"`
}

// Config controls detection thresholds.
type Config struct {
	// MinDescriptionLength is the rune count below which a description is sparse.
	MinDescriptionLength int
	// GenerateSpikes makes AnalyzeAll create spike tasks for high and critical tasks.
	GenerateSpikes bool
	// MaxDepth bounds the depth of generated spikes.
	MaxDepth int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MinDescriptionLength: 50, GenerateSpikes: false, MaxDepth: 3}
}

// Analyzer evaluates tasks for ambiguity.
type Analyzer struct {
	tasks  state.TaskStore
	cfg    Config
	logger *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) { a.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer. tasks is used by AnalyzeAll and GenerateSpike.
func New(tasks state.TaskStore, opts ...Option) *Analyzer {
	a := &Analyzer{tasks: tasks, cfg: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze evaluates a single task from its own text.
func (a *Analyzer) Analyze(task *models.Task) Assessment {
	return a.analyze(task, nil)
}

// analyze evaluates task. deps are its resolved dependencies; a nil entry is
// a dependency that could not be found.
func (a *Analyzer) analyze(task *models.Task, deps map[string]*models.Task) Assessment {
	as := Assessment{TaskID: task.ID, Title: task.Title}
	add := func(f Factor, reason string) {
		if !as.Has(f) {
			as.Factors = append(as.Factors, f)
		}
		as.Reasons = append(as.Reasons, reason)
	}
	text := task.Title + "\n" + task.Description

	desc := strings.TrimSpace(task.Description)
	if n := utf8.RuneCountInString(desc); n < a.cfg.MinDescriptionLength {
		add(FactorRequirementsSparsity, fmt.Sprintf("description is %d characters, under %d", n, a.cfg.MinDescriptionLength))
	}
	if len(task.AcceptanceCriteria) == 0 {
		add(FactorRequirementsSparsity, "no acceptance criteria")
	}
	if hits := hedges.find(text); len(hits) > 0 {
		add(FactorRequirementsSparsity, "hedging language: "+strings.Join(hits, ", "))
	}
	if strings.Contains(text, "?") {
		add(FactorRequirementsSparsity, "open questions in title or description")
	}

	if hits := technical.find(text); len(hits) > 0 {
		add(FactorTechnicalUnknown, "technical unknowns: "+strings.Join(hits, ", "))
	}

	if hits := dependency.find(text); len(hits) > 0 {
		add(FactorDependencyUncertainty, "external dependency markers: "+strings.Join(hits, ", "))
	}
	for _, id := range task.DependsOn {
		dep, ok := deps[id]
		if !ok {
			continue
		}
		switch {
		case dep == nil:
			add(FactorDependencyUncertainty, fmt.Sprintf("dependency %s not found", models.ShortID(id)))
		case crossTeam(task, dep):
			add(FactorDependencyUncertainty, fmt.Sprintf("dependency %q is owned by another team", dep.Title))
		}
	}

	if isVagueTitle(task.Title) {
		add(FactorScopeAmbiguity, fmt.Sprintf("vague title %q", task.Title))
	}
	if hits := breadth.find(text); len(hits) > 0 {
		add(FactorScopeAmbiguity, "broad scope: "+strings.Join(hits, ", "))
	}

	as.Level = LevelFor(len(as.Factors))
	return as
}

func crossTeam(task, dep *models.Task) bool {
	return dep.AssignedTeamID != "" && task.AssignedTeamID != "" && dep.AssignedTeamID != task.AssignedTeamID
}

// AnalyzeAll assesses every task that has not started yet. When spikes are
// enabled, one is created for each high or critical task that lacks one.
func (a *Analyzer) AnalyzeAll(ctx context.Context, filter state.TaskFilter) (*Report, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []models.TaskStatus{models.TaskStatusPending, models.TaskStatusReady, models.TaskStatusBlocked}
	}
	tasks, err := a.tasks.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	report := &Report{Counts: make(map[Level]int)}
	spiked := make(map[string]bool)
	for _, t := range tasks {
		if t.Metadata.SpikeFor != "" {
			spiked[t.Metadata.SpikeFor] = true
		}
	}

	for _, t := range tasks {
		if t.Metadata.SpikeFor != "" {
			continue
		}
		deps, err := a.resolveDeps(ctx, t)
		if err != nil {
			return nil, err
		}
		as := a.analyze(t, deps)
		report.Assessments = append(report.Assessments, as)
		report.Counts[as.Level]++

		if !a.cfg.GenerateSpikes || !as.NeedsSpike() || spiked[t.ID] {
			continue
		}
		spike, err := a.GenerateSpike(ctx, t, as)
		if errors.Is(err, ErrDepthExceeded) {
			a.logger.Warn("skipping spike", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		report.Spikes = append(report.Spikes, spike)
	}

	a.logger.Info("uncertainty analysis complete",
		zap.Int("tasks", len(report.Assessments)),
		zap.Int("high", report.Counts[LevelHigh]),
		zap.Int("critical", report.Counts[LevelCritical]),
		zap.Int("spikes", len(report.Spikes)))
	return report, nil
}

func (a *Analyzer) resolveDeps(ctx context.Context, t *models.Task) (map[string]*models.Task, error) {
	if len(t.DependsOn) == 0 {
		return nil, nil
	}
	deps := make(map[string]*models.Task, len(t.DependsOn))
	for _, id := range t.DependsOn {
		dep, err := a.tasks.GetTask(ctx, id)
		switch {
		case err == nil:
			deps[id] = dep
		case errors.Is(err, state.ErrNotFound):
			deps[id] = nil
		default:
			return nil, fmt.Errorf("get dependency %s: %w", id, err)
		}
	}
	return deps, nil
}

// SpikeHours returns the time box for a spike: 4 hours plus 4 for every
// factor beyond the first, capped at 16.
func SpikeHours(factors int) int {
	h := 4 + 4*(factors-1)
	if h < 4 {
		h = 4
	}
	if h > 16 {
		h = 16
	}
	return h
}

// BuildSpike constructs, without persisting, the investigation task for an assessment.
func BuildSpike(task *models.Task, as Assessment) *models.Task {
	hours := SpikeHours(len(as.Factors))

	var criteria, deliverables []string
	for _, f := range as.Factors {
		switch f {
		case FactorRequirementsSparsity:
			criteria = append(criteria, "Requirements are written down with measurable acceptance criteria")
			deliverables = append(deliverables, "Refined task description and acceptance criteria")
		case FactorTechnicalUnknown:
			criteria = append(criteria, "Technical approach is validated with a minimal prototype or documented evidence")
			deliverables = append(deliverables, "Prototype or findings document with a recommended approach")
		case FactorDependencyUncertainty:
			criteria = append(criteria, "Every external dependency has a confirmed owner, interface and timeline")
			deliverables = append(deliverables, "Dependency map with owners and integration contracts")
		case FactorScopeAmbiguity:
			criteria = append(criteria, "Scope is bounded and split into concrete, independently deliverable pieces")
			deliverables = append(deliverables, "Scoped task breakdown with explicit out-of-scope list")
		}
	}
	criteria = append(criteria, fmt.Sprintf("Investigation finished within %d hours", hours))

	var b strings.Builder
	fmt.Fprintf(&b, "Time-boxed investigation (%d hours) to reduce %s uncertainty in %q before implementation.\n\n", hours, as.Level, task.Title)
	b.WriteString("Signals:\n")
	for _, r := range as.Reasons {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\nDeliverables:\n")
	for _, d := range deliverables {
		fmt.Fprintf(&b, "- %s\n", d)
	}

	now := time.Now()
	spike := &models.Task{
		ID:                 uuid.NewString(),
		ParentID:           task.ID,
		Title:              "Spike: " + task.Title,
		Description:        b.String(),
		AcceptanceCriteria: criteria,
		Type:               models.TaskTypeImplementation,
		Status:             models.TaskStatusReady,
		Priority:           task.Priority,
		AssignedWorkerID:   task.AssignedWorkerID,
		AssignedTeamID:     task.AssignedTeamID,
		Depth:              task.Depth + 1,
		RequiredSkills:     append([]string(nil), task.RequiredSkills...),
		Tags:               []string{"spike"},
		Metadata: models.TaskMetadata{
			SpikeFor:       task.ID,
			EstimatedHours: hours,
		},
		CreatedAt: now,
	}
	return spike
}

// GenerateSpike persists a spike task for a high or critical assessment.
func (a *Analyzer) GenerateSpike(ctx context.Context, task *models.Task, as Assessment) (*models.Task, error) {
	if !as.NeedsSpike() {
		return nil, fmt.Errorf("task %s is %s: %w", task.ID, as.Level, ErrSpikeNotWarranted)
	}
	if a.cfg.MaxDepth > 0 && task.Depth+1 > a.cfg.MaxDepth {
		return nil, fmt.Errorf("task %s at depth %d: %w", task.ID, task.Depth, ErrDepthExceeded)
	}

	spike := BuildSpike(task, as)
	if err := a.tasks.CreateTask(ctx, spike); err != nil {
		return nil, fmt.Errorf("create spike for %s: %w", task.ID, err)
	}
	a.logger.Info("spike created",
		zap.String("task_id", task.ID),
		zap.String("spike_id", spike.ID),
		zap.String("level", string(as.Level)),
		zap.Int("hours", spike.Metadata.EstimatedHours))
	return spike, nil
}
