package decompose

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// DecomposeInFlight splits a leaf task that a worker found too large after
// starting. Each subtask gets its own ephemeral worker whose role is picked
// by the item's specialization, falling back to the parent worker's role.
// Subtasks share the parent's workspace and branch. The parent becomes
// BLOCKED until its subtasks complete.
func (e *Engine) DecomposeInFlight(ctx context.Context, task *models.Task, worker *models.Worker, reason string, items []models.WorkItem) (*Result, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("task %s: %w", task.ID, ErrNoWorkItems)
	}
	if err := e.checkBounds(task, len(items)); err != nil {
		return nil, err
	}

	roles, err := e.specializedRoles(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := &Result{Parent: task}
	for i, it := range items {
		roleID := worker.RoleID
		if r, ok := roles[it.Kind]; ok {
			roleID = r
		}
		sub := &models.Worker{
			ID:             uuid.NewString(),
			Name:           fmt.Sprintf("%s-sub%d", worker.Name, i+1),
			Lifecycle:      models.LifecycleEphemeral,
			Status:         models.WorkerStatusIdle,
			RoleID:         roleID,
			TeamID:         worker.TeamID,
			Depth:          worker.Depth + 1,
			ParentWorkerID: worker.ID,
			CreatedAt:      now,
		}
		res.Workers = append(res.Workers, sub)

		t := fromItem(task, it, now)
		t.AssignWorker(sub.ID)
		t.WorkingDirectory = task.WorkingDirectory
		t.Metadata.BranchName = task.Metadata.BranchName
		res.Leaves = append(res.Leaves, t)
	}

	if err := e.linkSiblings(res.Leaves, items); err != nil {
		return nil, err
	}

	prev := task.Status
	prevReason := task.Metadata.DecompositionReason
	task.Status = models.TaskStatusBlocked
	task.Metadata.DecompositionReason = reason
	if err := e.persist(ctx, res); err != nil {
		task.Status = prev
		task.Metadata.DecompositionReason = prevReason
		return nil, err
	}

	e.logger.Info("task decomposed in flight",
		zap.String("task_id", task.ID),
		zap.String("worker_id", worker.ID),
		zap.String("reason", reason),
		zap.Int("subtasks", len(res.Leaves)))
	return res, nil
}

// specializedRoles maps each specialization to the first role that declares it.
func (e *Engine) specializedRoles(ctx context.Context) (map[models.Specialization]string, error) {
	roles, err := e.store.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	out := make(map[models.Specialization]string)
	for _, r := range roles {
		if r.Specialization == "" {
			continue
		}
		if _, ok := out[r.Specialization]; !ok {
			out[r.Specialization] = r.ID
		}
	}
	return out, nil
}

// RetireEphemeralWorker deletes an ephemeral worker.
func (e *Engine) RetireEphemeralWorker(ctx context.Context, workerID string) error {
	w, err := e.store.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}
	if !w.IsEphemeral() {
		return fmt.Errorf("worker %s: %w", workerID, ErrNotEphemeral)
	}
	if err := e.store.DeleteWorker(ctx, workerID); err != nil {
		return fmt.Errorf("retire worker %s: %w", workerID, err)
	}
	e.logger.Info("ephemeral worker retired", zap.String("worker_id", workerID), zap.String("parent_worker_id", w.ParentWorkerID))
	return nil
}

// Completion reports what changed after a subtask finished.
type Completion struct {
	// Retired is the ephemeral worker that was deleted, if any.
	Retired string
	// Unblocked are siblings or dependents that became READY.
	Unblocked []*models.Task
	// Completed are ancestors that finished because all their children did.
	Completed []*models.Task
}

// OnSubtaskCompleted handles a task that reached COMPLETED: it retires an
// ephemeral assignee, unblocks dependents whose dependencies are all done,
// and completes each ancestor whose children have all completed.
func (e *Engine) OnSubtaskCompleted(ctx context.Context, subtask *models.Task) (*Completion, error) {
	out := &Completion{}

	if subtask.AssignedWorkerID != "" {
		w, err := e.store.GetWorker(ctx, subtask.AssignedWorkerID)
		switch {
		case err == nil && w.IsEphemeral():
			if err := e.RetireEphemeralWorker(ctx, w.ID); err != nil {
				return out, err
			}
			out.Retired = w.ID
		case err != nil:
			e.logger.Debug("assignee lookup failed", zap.String("worker_id", subtask.AssignedWorkerID), zap.Error(err))
		}
	}

	current := subtask
	for {
		promoted, err := e.graphs.UnblockDependents(ctx, current.ID)
		out.Unblocked = append(out.Unblocked, promoted...)
		if err != nil {
			return out, err
		}
		if current.ParentID == "" {
			return out, nil
		}

		parent, err := e.store.GetTask(ctx, current.ParentID)
		if err != nil {
			return out, fmt.Errorf("load parent %s: %w", current.ParentID, err)
		}
		if parent.Status.Terminal() {
			return out, nil
		}
		done, err := e.childrenCompleted(ctx, parent.ID)
		if err != nil || !done {
			return out, err
		}

		now := time.Now()
		parent.Status = models.TaskStatusCompleted
		parent.CompletedAt = &now
		if err := e.store.UpdateTask(ctx, parent); err != nil {
			return out, fmt.Errorf("complete parent %s: %w", parent.ID, err)
		}
		e.logger.Info("parent completed", zap.String("task_id", parent.ID))
		out.Completed = append(out.Completed, parent)
		current = parent
	}
}

func (e *Engine) childrenCompleted(ctx context.Context, parentID string) (bool, error) {
	children, err := e.store.ListTasks(ctx, state.TaskFilter{ParentID: parentID})
	if err != nil {
		return false, err
	}
	if len(children) == 0 {
		return false, nil
	}
	for _, c := range children {
		if c.Status != models.TaskStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}
