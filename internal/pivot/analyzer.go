// Package pivot estimates how a change of strategic direction affects the
// open task pool and plans which work to keep, shelve or recreate.
package pivot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// ErrEmptyDirection is returned when either direction has no content words.
var ErrEmptyDirection = errors.New("direction has no keywords")

// Request describes a pivot.
type Request struct {
	OldDirection string `json:"old_direction" yaml:"old_direction"`
	NewDirection string `json:"new_direction" yaml:"new_direction"`
	// Areas restricts analysis to tasks matching any area by tag, required
	// skill, affected file prefix or title keyword.
	Areas []string `json:"areas,omitempty" yaml:"areas,omitempty"`
}

// AssetKind is the type of work product a task holds.
type AssetKind string

const (
	AssetBranch      AssetKind = "branch"
	AssetPullRequest AssetKind = "pull_request"
	AssetWorkspace   AssetKind = "workspace"
	AssetDocument    AssetKind = "document"
)

// Asset is a work product attached to a task.
type Asset struct {
	Kind AssetKind `json:"kind" yaml:"kind"`
	Ref  string    `json:"ref" yaml:"ref"`
}

// TaskImpact is the pivot assessment for one task.
type TaskImpact struct {
	TaskID         string            `json:"task_id" yaml:"task_id"`
	Title          string            `json:"title" yaml:"title"`
	Status         models.TaskStatus `json:"status" yaml:"status"`
	Priority       models.Priority   `json:"priority" yaml:"priority"`
	Alignment      float64           `json:"alignment" yaml:"alignment"`
	AdaptationCost float64           `json:"adaptation_cost" yaml:"adaptation_cost"`
	ImpactScore    float64           `json:"impact_score" yaml:"impact_score"`
	Level          Level             `json:"level" yaml:"level"`
	Recommendation Recommendation    `json:"recommendation" yaml:"recommendation"`
	Disposition    Disposition       `json:"disposition" yaml:"disposition"`
	Assets         []Asset           `json:"assets,omitempty" yaml:"assets,omitempty"`
	MatchedNew     []string          `json:"matched_new,omitempty" yaml:"matched_new,omitempty"`
	MatchedOld     []string          `json:"matched_old,omitempty" yaml:"matched_old,omitempty"`
}

// RecreationPlan replaces a discarded task with one aimed at the new direction.
type RecreationPlan struct {
	OriginalTaskID string          `json:"original_task_id" yaml:"original_task_id"`
	Title          string          `json:"title" yaml:"title"`
	Description    string          `json:"description" yaml:"description"`
	Priority       models.Priority `json:"priority" yaml:"priority"`
	RequiredSkills []string        `json:"required_skills,omitempty" yaml:"required_skills,omitempty"`
	CarriedAssets  []Asset         `json:"carried_assets,omitempty" yaml:"carried_assets,omitempty"`
}

// Report is the result of a pivot analysis.
type Report struct {
	Request          Request                `json:"request" yaml:"request"`
	Impacts          []TaskImpact           `json:"impacts" yaml:"impacts"`
	Recreations      []RecreationPlan       `json:"recreations,omitempty" yaml:"recreations,omitempty"`
	Counts           map[Recommendation]int `json:"counts" yaml:"counts"`
	AverageAlignment float64                `json:"average_alignment" yaml:"average_alignment"`
	OverallImpact    Level                  `json:"overall_impact" yaml:"overall_impact"`
}

// Analyzer scores the open task pool against a pivot.
type Analyzer struct {
	tasks  state.TaskStore
	docs   state.DocumentStore
	logger *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer. docs may be nil, in which case documents are not
// counted as assets.
func New(tasks state.TaskStore, docs state.DocumentStore, opts ...Option) *Analyzer {
	a := &Analyzer{tasks: tasks, docs: docs, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var openStatuses = []models.TaskStatus{
	models.TaskStatusPending,
	models.TaskStatusReady,
	models.TaskStatusBlocked,
	models.TaskStatusInProgress,
	models.TaskStatusReadyForReview,
}

// Analyze scores every non-terminal task against req.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	oldWords, newWords := Keywords(req.OldDirection), Keywords(req.NewDirection)
	if len(newWords) == 0 {
		return nil, fmt.Errorf("new direction %q: %w", req.NewDirection, ErrEmptyDirection)
	}
	if len(oldWords) == 0 {
		return nil, fmt.Errorf("old direction %q: %w", req.OldDirection, ErrEmptyDirection)
	}
	oldSet, newSet := toSet(oldWords), toSet(newWords)

	tasks, err := a.tasks.ListTasks(ctx, state.TaskFilter{Statuses: openStatuses})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	report := &Report{Request: req, Counts: make(map[Recommendation]int)}
	var alignSum, impactSum float64
	for _, t := range tasks {
		if !inAreas(t, req.Areas) {
			continue
		}
		impact, err := a.assess(ctx, t, oldSet, newSet)
		if err != nil {
			return nil, err
		}
		report.Impacts = append(report.Impacts, impact)
		report.Counts[impact.Recommendation]++
		alignSum += impact.Alignment
		impactSum += impact.ImpactScore

		if needsRecreation(t, impact) {
			report.Recreations = append(report.Recreations, planRecreation(t, impact, req))
		}
	}

	report.OverallImpact = LevelLow
	if n := float64(len(report.Impacts)); n > 0 {
		report.AverageAlignment = alignSum / n
		report.OverallImpact = LevelFor(impactSum / n)
	}

	a.logger.Info("pivot analysis complete",
		zap.Int("tasks", len(report.Impacts)),
		zap.Int("cancel", report.Counts[RecommendCancel]),
		zap.Int("recreate", len(report.Recreations)),
		zap.String("overall_impact", string(report.OverallImpact)))
	return report, nil
}

func (a *Analyzer) assess(ctx context.Context, t *models.Task, oldSet, newSet map[string]bool) (TaskImpact, error) {
	words := Keywords(t.Title + " " + t.Description + " " + strings.Join(t.Tags, " ") + " " + strings.Join(t.RequiredSkills, " "))
	matchedNew, matchedOld := overlap(words, newSet), overlap(words, oldSet)

	alignment := Alignment(t.Status, len(matchedNew), len(matchedOld))
	cost := AdaptationCost(t, alignment)
	score := ImpactScore(alignment, cost)
	rec := Recommend(t.Status, alignment, cost)

	assets, err := a.assets(ctx, t)
	if err != nil {
		return TaskImpact{}, err
	}

	return TaskImpact{
		TaskID:         t.ID,
		Title:          t.Title,
		Status:         t.Status,
		Priority:       t.Priority,
		Alignment:      alignment,
		AdaptationCost: cost,
		ImpactScore:    score,
		Level:          LevelFor(score),
		Recommendation: rec,
		Disposition:    DispositionFor(rec),
		Assets:         assets,
		MatchedNew:     matchedNew,
		MatchedOld:     matchedOld,
	}, nil
}

func (a *Analyzer) assets(ctx context.Context, t *models.Task) ([]Asset, error) {
	var out []Asset
	if t.Metadata.BranchName != "" {
		out = append(out, Asset{Kind: AssetBranch, Ref: t.Metadata.BranchName})
	}
	if t.Metadata.PRNumber > 0 {
		ref := t.Metadata.PRURL
		if ref == "" {
			ref = "#" + strconv.Itoa(t.Metadata.PRNumber)
		}
		out = append(out, Asset{Kind: AssetPullRequest, Ref: ref})
	}
	if t.WorkingDirectory != "" {
		out = append(out, Asset{Kind: AssetWorkspace, Ref: t.WorkingDirectory})
	}
	if a.docs != nil {
		docs, err := a.docs.ListDocuments(ctx, state.DocumentFilter{TaskID: t.ID})
		if err != nil {
			return nil, fmt.Errorf("list documents for %s: %w", t.ID, err)
		}
		for _, d := range docs {
			out = append(out, Asset{Kind: AssetDocument, Ref: d.ID})
		}
	}
	return out, nil
}

// inAreas reports whether t matches any area. No areas matches everything.
func inAreas(t *models.Task, areas []string) bool {
	if len(areas) == 0 {
		return true
	}
	titleWords := toSet(Keywords(t.Title))
	for _, area := range areas {
		area = strings.TrimSpace(area)
		if area == "" {
			continue
		}
		for _, tag := range t.Tags {
			if strings.EqualFold(tag, area) {
				return true
			}
		}
		for _, skill := range t.RequiredSkills {
			if strings.EqualFold(skill, area) {
				return true
			}
		}
		for _, f := range t.AffectedFiles {
			if strings.HasPrefix(f, area) {
				return true
			}
		}
		for _, w := range Keywords(area) {
			if titleWords[w] {
				return true
			}
		}
	}
	return false
}

func needsRecreation(t *models.Task, impact TaskImpact) bool {
	if impact.Disposition != DispositionDiscard {
		return false
	}
	progressed := t.Status == models.TaskStatusInProgress || t.Status == models.TaskStatusReadyForReview
	return t.Priority == models.PriorityCritical || progressed
}

// carried keeps the assets that survive a cancelled task: knowledge and the
// branch as reference. Workspaces are cleaned up and pull requests closed.
func carried(assets []Asset) []Asset {
	var out []Asset
	for _, a := range assets {
		if a.Kind == AssetDocument || a.Kind == AssetBranch {
			out = append(out, a)
		}
	}
	return out
}

func planRecreation(t *models.Task, impact TaskImpact, req Request) RecreationPlan {
	var b strings.Builder
	fmt.Fprintf(&b, "Recreated from task %s (%q) after the direction changed from %q to %q.\n",
		models.ShortID(t.ID), t.Title, req.OldDirection, req.NewDirection)
	fmt.Fprintf(&b, "Deliver the same outcome aligned with %s.\n", req.NewDirection)
	if t.Description != "" {
		b.WriteString("\nOriginal description:\n")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	if assets := carried(impact.Assets); len(assets) > 0 {
		b.WriteString("\nReusable assets:\n")
		for _, a := range assets {
			fmt.Fprintf(&b, "- %s: %s\n", a.Kind, a.Ref)
		}
	}

	return RecreationPlan{
		OriginalTaskID: t.ID,
		Title:          fmt.Sprintf("%s (%s)", t.Title, req.NewDirection),
		Description:    b.String(),
		Priority:       t.Priority,
		RequiredSkills: append([]string(nil), t.RequiredSkills...),
		CarriedAssets:  carried(impact.Assets),
	}
}

// ApplyResult lists the task changes made by ApplyPlan.
type ApplyResult struct {
	Cancelled []string       `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Deferred  []string       `json:"deferred,omitempty" yaml:"deferred,omitempty"`
	Created   []*models.Task `json:"created,omitempty" yaml:"created,omitempty"`
}

// DeferredTag marks tasks shelved by a pivot.
const DeferredTag = "deferred"

// ApplyPlan cancels discarded tasks, tags deferred ones, and creates the
// recreation tasks. Recreated tasks start pending and unassigned.
func (a *Analyzer) ApplyPlan(ctx context.Context, report *Report) (*ApplyResult, error) {
	res := &ApplyResult{}
	for _, impact := range report.Impacts {
		switch impact.Disposition {
		case DispositionDiscard:
			t, err := a.tasks.GetTask(ctx, impact.TaskID)
			if err != nil {
				return res, fmt.Errorf("get task %s: %w", impact.TaskID, err)
			}
			now := time.Now()
			t.Status = models.TaskStatusCancelled
			t.CompletedAt = &now
			t.Metadata.LastError = fmt.Sprintf("cancelled by pivot to %q", report.Request.NewDirection)
			if err := a.tasks.UpdateTask(ctx, t); err != nil {
				return res, fmt.Errorf("cancel task %s: %w", t.ID, err)
			}
			res.Cancelled = append(res.Cancelled, t.ID)
		case DispositionArchive:
			t, err := a.tasks.GetTask(ctx, impact.TaskID)
			if err != nil {
				return res, fmt.Errorf("get task %s: %w", impact.TaskID, err)
			}
			if !hasTag(t.Tags, DeferredTag) {
				t.Tags = append(t.Tags, DeferredTag)
				if err := a.tasks.UpdateTask(ctx, t); err != nil {
					return res, fmt.Errorf("defer task %s: %w", t.ID, err)
				}
			}
			res.Deferred = append(res.Deferred, t.ID)
		}
	}

	for _, plan := range report.Recreations {
		orig, err := a.tasks.GetTask(ctx, plan.OriginalTaskID)
		if err != nil {
			return res, fmt.Errorf("get task %s: %w", plan.OriginalTaskID, err)
		}
		t := &models.Task{
			ID:             uuid.NewString(),
			ParentID:       orig.ParentID,
			Title:          plan.Title,
			Description:    plan.Description,
			Type:           models.TaskTypeImplementation,
			Status:         models.TaskStatusPending,
			Priority:       plan.Priority,
			Depth:          orig.Depth,
			RequiredSkills: plan.RequiredSkills,
			Tags:           []string{"pivot"},
			Metadata:       models.TaskMetadata{RecreatedFrom: orig.ID},
		}
		if err := a.tasks.CreateTask(ctx, t); err != nil {
			return res, fmt.Errorf("create recreation of %s: %w", orig.ID, err)
		}
		res.Created = append(res.Created, t)
	}

	a.logger.Info("pivot plan applied",
		zap.Int("cancelled", len(res.Cancelled)),
		zap.Int("deferred", len(res.Deferred)),
		zap.Int("created", len(res.Created)))
	return res, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
