package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/decompose"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// CleanupWorkspace removes the workspace at path and clears the task's
// working directory when it points there. An empty path means the task's
// own workspace. Cleaning up twice is not an error.
func (o *Orchestrator) CleanupWorkspace(ctx context.Context, path, taskID string) error {
	unlock := o.tasks.Lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if path == "" {
		path = task.WorkingDirectory
	}
	if path == "" {
		return nil
	}
	repo, err := o.repoFor(ctx, task)
	if err != nil {
		return err
	}
	return o.removeWorkspace(ctx, task, repo, path)
}

func (o *Orchestrator) removeWorkspace(ctx context.Context, task *models.Task, repo, path string) error {
	if err := o.workspaces.Remove(ctx, repo, path); err != nil {
		return fmt.Errorf("remove workspace of %s: %w", task.ID, err)
	}
	if task.WorkingDirectory == path {
		task.WorkingDirectory = ""
		if err := o.store.UpdateTask(ctx, task); err != nil {
			return fmt.Errorf("clear workspace of %s: %w", task.ID, err)
		}
	}
	o.emit(Event{Type: EventWorkspaceRemoved, TaskID: task.ID, TaskTitle: task.Title, Message: path})
	return nil
}

// releaseWorkspace removes the workspace a finished task owns. Workspaces
// inherited from a parent stay for the remaining siblings. Failures are
// logged.
func (o *Orchestrator) releaseWorkspace(ctx context.Context, task *models.Task, repo string) {
	if !o.ownsWorkspace(ctx, task) {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := o.removeWorkspace(ctx, task, repo, task.WorkingDirectory); err != nil {
		o.logger.Warn("workspace cleanup failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// ownsWorkspace reports whether the task's working directory was provisioned
// for it rather than inherited from its parent.
func (o *Orchestrator) ownsWorkspace(ctx context.Context, task *models.Task) bool {
	if task.WorkingDirectory == "" {
		return false
	}
	if task.ParentID == "" {
		return true
	}
	parent, err := o.store.GetTask(ctx, task.ParentID)
	if err != nil {
		return true
	}
	return parent.WorkingDirectory != task.WorkingDirectory
}

// CompleteTask accepts a reviewed task: it becomes COMPLETED, its change
// request is marked merged and its workspace released. Dependents are
// unblocked and ancestors whose children are all done complete too.
func (o *Orchestrator) CompleteTask(ctx context.Context, taskID string) (*decompose.Completion, error) {
	unlock := o.tasks.Lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.Status != models.TaskStatusReadyForReview {
		return nil, fmt.Errorf("task %s is %s, want %s: %w", taskID, task.Status, models.TaskStatusReadyForReview, ErrNotExecutable)
	}
	repo, err := o.repoFor(ctx, task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("complete %s: %w", task.ID, err)
	}
	o.markMerged(ctx, task.ID, repo)
	o.releaseWorkspace(ctx, task, repo)

	done, err := o.engine.OnSubtaskCompleted(ctx, task)
	if err != nil {
		return done, err
	}
	for _, parent := range done.Completed {
		o.releaseWorkspace(ctx, parent, repo)
	}

	o.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, TaskTitle: task.Title})
	return done, nil
}

func (o *Orchestrator) markMerged(ctx context.Context, taskID, repo string) {
	pr, err := o.reviews(repo).Latest(ctx, taskID)
	if errors.Is(err, state.ErrNotFound) {
		return
	}
	if err != nil {
		o.logger.Warn("load change request failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	pr.Status = models.PullRequestMerged
	if err := o.store.UpdatePullRequest(ctx, pr); err != nil {
		o.logger.Warn("mark change request merged failed", zap.String("task_id", taskID), zap.Error(err))
	}
}
