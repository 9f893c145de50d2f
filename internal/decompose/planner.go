package decompose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// ErrInvalidPlan is returned when proposed work items fail validation.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is a validated breakdown proposed by the Brain.
type Plan struct {
	Items      []models.WorkItem
	Validation ValidationResult
	Cost       brain.Cost
}

// Planner asks a Brain how to break a task down.
type Planner struct {
	brain  brain.Brain
	cfg    Config
	logger *zap.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(b brain.Brain, cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{brain: b, cfg: cfg, logger: logger}
}

// Plan requests work items for task and validates them.
func (p *Planner) Plan(ctx context.Context, task *models.Task) (*Plan, error) {
	criteria := "- (none given)"
	if len(task.AcceptanceCriteria) > 0 {
		criteria = "- " + strings.Join(task.AcceptanceCriteria, "\n- ")
	}
	limit := p.cfg.MaxSubtasks
	if limit <= 0 {
		limit = DefaultConfig().MaxSubtasks
	}

	resp, err := p.brain.Execute(ctx, brain.Request{
		Prompt:  fmt.Sprintf(planPrompt, task.Title, task.Description, criteria, limit),
		Context: map[string]string{"task_id": task.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", task.ID, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("plan %s: inference reported failure", task.ID)
	}

	items, err := brain.ParseWorkItems(resp.Output)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", task.ID, err)
	}

	v := ValidateItems(items, limit)
	plan := &Plan{Items: items, Validation: v, Cost: resp.Cost}
	for _, w := range v.Warnings {
		p.logger.Warn("plan warning", zap.String("task_id", task.ID), zap.String("warning", w))
	}
	if !v.Valid {
		return plan, fmt.Errorf("plan %s: %s: %w", task.ID, strings.Join(v.Errors, "; "), ErrInvalidPlan)
	}
	return plan, nil
}
