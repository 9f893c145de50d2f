package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// Service applies dependency changes to persisted tasks.
type Service struct {
	tasks  state.TaskStore
	logger *zap.Logger
}

// NewService creates a Service over a task store.
func NewService(tasks state.TaskStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tasks: tasks, logger: logger}
}

// AddDependency persists the edge taskID -> dependsOnID after checking that
// it does not close a cycle. A READY task gaining an unfinished dependency
// becomes BLOCKED. On any error nothing is written.
func (s *Service) AddDependency(ctx context.Context, taskID, dependsOnID string) error {
	if taskID == dependsOnID {
		return fmt.Errorf("task %s: %w", taskID, ErrSelfDependency)
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	dep, err := s.tasks.GetTask(ctx, dependsOnID)
	if err != nil {
		return err
	}
	if contains(task.DependsOn, dependsOnID) {
		return nil
	}

	cyclic, err := Reachable(dependsOnID, taskID, s.persistedDeps(ctx))
	if err != nil {
		return fmt.Errorf("check cycle: %w", err)
	}
	if cyclic {
		return fmt.Errorf("%s -> %s: %w", taskID, dependsOnID, ErrCycleDetected)
	}

	task.DependsOn = append(task.DependsOn, dependsOnID)
	if task.Status == models.TaskStatusReady && dep.Status != models.TaskStatusCompleted {
		task.Status = models.TaskStatusBlocked
	}
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("persist dependency: %w", err)
	}
	s.logger.Info("dependency added", zap.String("task_id", taskID), zap.String("depends_on", dependsOnID))
	return nil
}

// RemoveDependency deletes a persisted edge. A BLOCKED task whose remaining
// dependencies are all completed becomes READY.
func (s *Service) RemoveDependency(ctx context.Context, taskID, dependsOnID string) error {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !contains(task.DependsOn, dependsOnID) {
		return nil
	}
	task.DependsOn = without(task.DependsOn, dependsOnID)

	if task.Status == models.TaskStatusBlocked && task.Type != models.TaskTypeAggregate {
		done, err := s.dependenciesCompleted(ctx, task)
		if err != nil {
			return err
		}
		if done {
			task.Status = models.TaskStatusReady
		}
	}
	return s.tasks.UpdateTask(ctx, task)
}

// Load builds an in-memory graph of every persisted task.
// Dependencies on tasks that no longer exist are dropped from the graph.
func (s *Service) Load(ctx context.Context) (*DependencyGraph, error) {
	tasks, err := s.tasks.ListTasks(ctx, state.TaskFilter{})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	for _, t := range tasks {
		var deps []string
		for _, d := range t.DependsOn {
			if known[d] {
				deps = append(deps, d)
			} else {
				s.logger.Warn("dropping dangling dependency", zap.String("task_id", t.ID), zap.String("depends_on", d))
			}
		}
		t.DependsOn = deps
	}

	g := New(WithLogger(s.logger))
	if err := g.Build(tasks); err != nil {
		return nil, err
	}
	return g, nil
}

// ReadyTasks returns the non-terminal leaf tasks whose dependencies are all completed.
func (s *Service) ReadyTasks(ctx context.Context) ([]*models.Task, error) {
	all, err := s.tasks.ListTasks(ctx, state.TaskFilter{})
	if err != nil {
		return nil, err
	}
	var candidates []*models.Task
	for _, t := range all {
		if t.Type == models.TaskTypeAggregate {
			continue
		}
		switch t.Status {
		case models.TaskStatusPending, models.TaskStatusReady, models.TaskStatusBlocked:
			candidates = append(candidates, t)
		}
	}
	return ComputeReadySet(candidates, LookupFromTasks(all)), nil
}

// UnblockDependents moves BLOCKED leaf tasks that depend on completedID to
// READY once all their dependencies are completed. It returns the promoted tasks.
func (s *Service) UnblockDependents(ctx context.Context, completedID string) ([]*models.Task, error) {
	blocked, err := s.tasks.ListTasks(ctx, state.TaskFilter{Statuses: []models.TaskStatus{models.TaskStatusBlocked}})
	if err != nil {
		return nil, err
	}

	var promoted []*models.Task
	for _, t := range blocked {
		if t.Type == models.TaskTypeAggregate || !contains(t.DependsOn, completedID) {
			continue
		}
		done, err := s.dependenciesCompleted(ctx, t)
		if err != nil {
			return promoted, err
		}
		if !done {
			continue
		}
		t.Status = models.TaskStatusReady
		if err := s.tasks.UpdateTask(ctx, t); err != nil {
			return promoted, fmt.Errorf("unblock %s: %w", t.ID, err)
		}
		promoted = append(promoted, t)
	}
	return promoted, nil
}

func (s *Service) dependenciesCompleted(ctx context.Context, t *models.Task) (bool, error) {
	for _, id := range t.DependsOn {
		dep, err := s.tasks.GetTask(ctx, id)
		if err != nil {
			return false, err
		}
		if dep.Status != models.TaskStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) persistedDeps(ctx context.Context) func(string) ([]string, error) {
	return func(id string) ([]string, error) {
		t, err := s.tasks.GetTask(ctx, id)
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return t.DependsOn, nil
	}
}
