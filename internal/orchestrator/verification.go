package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/internal/vcs"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// CheckVerificationStatus waits for the checks of the task's change request
// and acts on the result: review handoff on success, the retry budget on
// failure. It fails with ErrVerificationTimeout if the checks do not finish
// in time; the task stays IN_PROGRESS with the timeout in its LastError.
func (o *Orchestrator) CheckVerificationStatus(ctx context.Context, taskID string) (*Outcome, error) {
	unlock := o.tasks.Lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.Status != models.TaskStatusInProgress {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrNotExecutable)
	}
	repo, err := o.repoFor(ctx, task)
	if err != nil {
		return nil, err
	}

	pr, err := o.reviews(repo).Latest(ctx, task.ID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNoPullRequest)
	}
	if err != nil {
		return nil, err
	}
	return o.awaitVerification(ctx, task, pr, repo)
}

// HandleVerificationFailure spends one verification retry. While retries
// remain the feedback is stored on the task and a retry is signalled; once
// all MaxCIRetries are spent the task fails with cause ErrVerificationMaxRetries.
func (o *Orchestrator) HandleVerificationFailure(ctx context.Context, taskID, feedback string) (*Outcome, error) {
	unlock := o.tasks.Lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrNotExecutable)
	}
	repo, err := o.repoFor(ctx, task)
	if err != nil {
		return nil, err
	}
	return o.handleFailure(ctx, task, repo, feedback)
}

func (o *Orchestrator) awaitVerification(ctx context.Context, task *models.Task, pr *models.PullRequest, repo string) (*Outcome, error) {
	summary, err := o.pollChecks(ctx, repo, pr.Number)
	if errors.Is(err, ErrVerificationTimeout) {
		o.logger.Warn("verification timed out",
			zap.String("task_id", task.ID),
			zap.Int("number", pr.Number),
			zap.Duration("timeout", o.cfg.VerificationTimeout))
		// The task stays IN_PROGRESS so a later check can resume polling.
		task.Metadata.LastError = fmt.Sprintf("verification timed out after %s (#%d)", o.cfg.VerificationTimeout, pr.Number)
		if uerr := o.store.UpdateTask(context.WithoutCancel(ctx), task); uerr != nil {
			o.logger.Warn("record verification timeout", zap.String("task_id", task.ID), zap.Error(uerr))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("verify %s (#%d): %w", task.ID, pr.Number, err)
	}

	if summary.Succeeded() {
		return o.handoff(ctx, task, pr, repo)
	}

	feedback := o.failureFeedback(ctx, repo, summary)
	o.emit(Event{Type: EventVerificationFailed, TaskID: task.ID, TaskTitle: task.Title, Message: summary.String()})
	out, err := o.handleFailure(ctx, task, repo, feedback)
	if out != nil {
		out.PullRequest = pr
	}
	return out, err
}

// pollChecks polls the change request until every check has finished or the
// verification timeout elapses.
func (o *Orchestrator) pollChecks(ctx context.Context, repo string, number int) (vcs.CheckSummary, error) {
	deadline := time.NewTimer(o.cfg.VerificationTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.cfg.VerificationPollInterval)
	defer ticker.Stop()

	for {
		checks, err := o.host.Checks(ctx, repo, number)
		switch {
		case errors.Is(err, vcs.ErrNoChecks):
		case err != nil:
			return vcs.CheckSummary{}, err
		default:
			if s := vcs.Summarize(checks); s.Complete() {
				return s, nil
			}
		}

		select {
		case <-ctx.Done():
			return vcs.CheckSummary{}, ctx.Err()
		case <-deadline.C:
			return vcs.CheckSummary{}, ErrVerificationTimeout
		case <-ticker.C:
		}
	}
}

// failureFeedback renders failed checks and their logs for the next attempt.
// Missing logs degrade the feedback rather than failing the handling.
func (o *Orchestrator) failureFeedback(ctx context.Context, repo string, s vcs.CheckSummary) string {
	logs, err := o.host.FailedCheckLogs(ctx, repo, s.Failing)
	if err != nil {
		o.logger.Warn("fetch failed check logs", zap.Error(err))
		logs = make([]vcs.CheckLog, len(s.Failing))
		for i, c := range s.Failing {
			logs[i].Check = c
		}
	}
	return s.String() + "\n\n" + vcs.FormatFeedback(logs)
}

func (o *Orchestrator) handoff(ctx context.Context, task *models.Task, pr *models.PullRequest, repo string) (*Outcome, error) {
	if err := o.reviews(repo).RequestReview(ctx, pr.ID); err != nil {
		return nil, err
	}
	pr.Status = models.PullRequestReviewRequested

	task.Status = models.TaskStatusReadyForReview
	task.Metadata.LastError = ""
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("mark %s ready for review: %w", task.ID, err)
	}

	o.logger.Info("task ready for review", zap.String("task_id", task.ID), zap.Int("number", pr.Number))
	o.emit(Event{Type: EventReadyForReview, TaskID: task.ID, TaskTitle: task.Title, Message: pr.URL})
	return &Outcome{Kind: OutcomeSuccess, Task: task, PullRequest: pr}, nil
}

func (o *Orchestrator) handleFailure(ctx context.Context, task *models.Task, repo, feedback string) (*Outcome, error) {
	task.Metadata.LastCIFeedback = feedback

	// The count caps at MaxCIRetries; the failure after the last retry is terminal.
	if task.Metadata.CIRetryCount >= o.cfg.MaxCIRetries {
		reason := fmt.Sprintf("verification failed after %d retries", task.Metadata.CIRetryCount)
		return o.terminal(ctx, task, repo, reason, ErrVerificationMaxRetries, brain.Cost{})
	}
	task.Metadata.CIRetryCount++

	task.Status = models.TaskStatusReady
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("record verification failure of %s: %w", task.ID, err)
	}
	o.logger.Info("verification failed, retry scheduled",
		zap.String("task_id", task.ID),
		zap.Int("ci_retry_count", task.Metadata.CIRetryCount),
		zap.Int("max", o.cfg.MaxCIRetries))
	o.emit(Event{Type: EventTaskRetry, TaskID: task.ID, TaskTitle: task.Title, Message: "verification failed"})
	return &Outcome{Kind: OutcomeRetry, Task: task, Feedback: feedback}, nil
}
