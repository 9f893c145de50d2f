package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/git"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/internal/vcs"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// maxSummaryBytes bounds the worker summary quoted in a change request body.
const maxSummaryBytes = 4000

// pushWork commits any pending changes in the task workspace and pushes the
// checked-out branch, holding the repository gate. It returns the branch.
func (o *Orchestrator) pushWork(ctx context.Context, task *models.Task, repo string) (string, error) {
	wt := git.NewRunner(task.WorkingDirectory, o.cmd)

	var head string
	err := o.locks.WithLock(ctx, repo, func(ctx context.Context) error {
		dirty, err := wt.HasChanges(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if dirty {
			if err := wt.AddAll(ctx); err != nil {
				return fmt.Errorf("stage: %w", err)
			}
			if err := wt.Commit(ctx, commitMessage(task)); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
		}

		head, err = wt.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("detect branch: %w", err)
		}
		if head == "" || head == "HEAD" {
			head = task.Metadata.BranchName
		}
		if head == "" {
			return errors.New("workspace has no branch checked out")
		}
		return wt.Push(ctx, o.cfg.Remote, head)
	})
	if err != nil {
		return "", fmt.Errorf("push work for %s: %w", task.ID, err)
	}
	return head, nil
}

// openPullRequest returns the change request for the task's branch. A task
// that already has one keeps it; a branch shared with sibling subtasks reuses
// the open one; otherwise a new change request is opened against base.
func (o *Orchestrator) openPullRequest(ctx context.Context, task *models.Task, worker *models.Worker, repo, base, head, output string) (*models.PullRequest, error) {
	reviews := o.reviews(repo)
	if task.Metadata.PRNumber > 0 {
		pr, err := reviews.Latest(ctx, task.ID)
		if err == nil {
			o.logger.Info("change request updated", zap.String("task_id", task.ID), zap.Int("number", pr.Number))
			return pr, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			return nil, err
		}
	}

	info, err := o.host.FindPullRequest(ctx, repo, head)
	if errors.Is(err, vcs.ErrNoPullRequest) {
		info, err = o.host.CreatePullRequest(ctx, task.WorkingDirectory, vcs.PullRequestRequest{
			Title: task.Title,
			Body:  pullRequestBody(task, output),
			Head:  head,
			Base:  base,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open change request for %s: %w", task.ID, err)
	}

	// Record the number on the task before anything else can fail, so an
	// open change request is never orphaned.
	task.Metadata.PRNumber = info.Number
	task.Metadata.PRURL = info.URL
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("record change request of %s: %w", task.ID, err)
	}
	pr, err := reviews.CreatePullRequest(ctx, task.ID, info.Number, info.URL, repo, head, worker.ID)
	if err != nil {
		return nil, err
	}

	o.emit(Event{
		Type:      EventPullRequestOpened,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		WorkerID:  worker.ID,
		Message:   info.URL,
	})
	return pr, nil
}

func (o *Orchestrator) reviews(repo string) *vcs.ReviewService {
	return vcs.NewReviewService(o.store, o.host, repo,
		vcs.WithReviewers(o.cfg.Reviewers...),
		vcs.WithReviewLogger(o.logger))
}

func commitMessage(task *models.Task) string {
	return fmt.Sprintf("%s\n\nTask: %s", task.Title, task.ID)
}

func pullRequestBody(task *models.Task, output string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task `%s`\n\n", models.ShortID(task.ID))
	if d := strings.TrimSpace(task.Description); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance criteria\n\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- [ ] %s\n", c)
		}
		b.WriteString("\n")
	}
	summary := strings.TrimSpace(output)
	if len(summary) > maxSummaryBytes {
		cut := maxSummaryBytes
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut] + "\n..."
	}
	if summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	return b.String()
}
