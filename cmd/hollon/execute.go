package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/decompose"
	"github.com/ShayCichocki/hollon/internal/orchestrator"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var executeAttempts int

var executeCmd = &cobra.Command{
	Use:   "execute <task-id> [worker-id]",
	Short: "Run a task",
	Long: `Run one attempt of a task.

Leaf tasks run in the worker's workspace: the worker implements the task, the
result passes the quality gates, the branch is pushed and a change request is
opened, then its checks are awaited. Aggregate tasks are decomposed and
delegated to their team instead.

The worker defaults to the task's assignee, or for an aggregate task to the
manager of its team. With --attempts N, retryable
outcomes (quality gate feedback, failed checks) are re-run up to N times.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExecute,
}

var checkCmd = &cobra.Command{
	Use:   "check <task-id>",
	Short: "Wait for a task's change request checks",
	Long: `Poll the checks of an in-progress task's change request. Passing checks
hand the task to review; failing checks spend one verification retry.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var (
	failFeedback string
)

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Accept a reviewed task",
	Long: `Mark a task that is ready for review as completed. Its workspace is
released, dependents are unblocked and parents whose subtasks are all done
complete as well.

With --reject, the review is treated as a verification failure instead and
the feedback is sent back to the worker.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	executeCmd.Flags().IntVar(&executeAttempts, "attempts", 1, "Maximum attempts while the outcome is retryable")
	completeCmd.Flags().StringVar(&failFeedback, "reject", "", "Reject the task with this feedback")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	taskID := args[0]
	workerID := ""
	if len(args) > 1 {
		workerID = args[1]
	} else {
		task, err := a.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		workerID = task.AssignedWorkerID
		if workerID == "" && task.Type == models.TaskTypeAggregate && task.AssignedTeamID != "" {
			team, err := a.store.GetTeam(ctx, task.AssignedTeamID)
			if err != nil {
				return err
			}
			workerID = team.ManagerWorkerID
		}
		if workerID == "" {
			return fmt.Errorf("task %s has no assigned worker or team manager; run 'hollon assign' or pass one", taskID)
		}
	}

	events := orchestrator.NewEventEmitter(64, a.logger)
	orch, err := a.orchestrator(ctx, orchestrator.WithEvents(events))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range events.Events() {
			printEvent(e)
		}
	}()

	var out *orchestrator.Outcome
	for attempt := 1; attempt <= max(executeAttempts, 1); attempt++ {
		out, err = orch.ExecuteTask(ctx, taskID, workerID)
		if err != nil || !out.Retryable() {
			break
		}
		if attempt < executeAttempts {
			printStatus("↻", fmt.Sprintf("attempt %d needs another pass", attempt), color.FgYellow)
		}
	}
	events.Close()
	wg.Wait()

	if err != nil {
		return err
	}
	return render(out, func() { printOutcome(out) })
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}
	out, err := orch.CheckVerificationStatus(ctx, args[0])
	if errors.Is(err, orchestrator.ErrVerificationTimeout) {
		printStatus("…", "checks still running; run 'hollon check' again later", color.FgYellow)
		return nil
	}
	if err != nil {
		return err
	}
	return render(out, func() { printOutcome(out) })
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}

	if failFeedback != "" {
		out, err := orch.HandleVerificationFailure(ctx, args[0], failFeedback)
		if err != nil {
			return err
		}
		return render(out, func() { printOutcome(out) })
	}

	done, err := orch.CompleteTask(ctx, args[0])
	if err != nil {
		return err
	}
	return render(done, func() { printCompletion(args[0], done) })
}

func printEvent(e orchestrator.Event) {
	c := color.New(color.FgCyan)
	switch e.Type {
	case orchestrator.EventTaskFailed, orchestrator.EventVerificationFailed:
		c = color.New(color.FgRed)
	case orchestrator.EventReadyForReview, orchestrator.EventTaskCompleted:
		c = color.New(color.FgGreen)
	case orchestrator.EventTaskRetry:
		c = color.New(color.FgYellow)
	}
	msg := e.Message
	if e.Error != nil && msg == "" {
		msg = e.Error.Error()
	}
	fmt.Printf("[%s] %s %s %s\n",
		e.Timestamp.Format("15:04:05"),
		color.New(color.FgGreen).Sprint(models.ShortID(e.TaskID)),
		c.Sprint(e.Type),
		truncate(msg, 80))
}

func printOutcome(out *orchestrator.Outcome) {
	switch out.Kind {
	case orchestrator.OutcomeSuccess:
		printStatus("✓", "ready for review", color.FgGreen)
		if out.PullRequest != nil {
			fmt.Printf("  %s %s\n", labelStyle.Render("change request:"), out.PullRequest.URL)
		}
	case orchestrator.OutcomeRetry:
		printStatus("↻", "needs another attempt", color.FgYellow)
		fmt.Printf("  %s\n", truncate(out.Feedback, 400))
	case orchestrator.OutcomeTerminal:
		printStatus("✗", "failed: "+out.Reason, color.FgRed)
	case orchestrator.OutcomeDecomposed, orchestrator.OutcomeDelegated:
		printStatus("⇉", fmt.Sprintf("%s into %d subtasks", out.Kind, len(out.Subtasks)), color.FgCyan)
		for _, s := range out.Subtasks {
			fmt.Printf("  %s %s %s\n", models.ShortID(s.ID), statusText(s.Status), s.Title)
		}
	}
	if out.Cost.TotalCostCents > 0 {
		fmt.Printf("  %s %.2f¢\n", labelStyle.Render("cost:"), out.Cost.TotalCostCents)
	}
}

func printCompletion(taskID string, done *decompose.Completion) {
	printStatus("✓", "completed "+taskID, color.FgGreen)
	if done.Retired != "" {
		fmt.Printf("  retired worker %s\n", models.ShortID(done.Retired))
	}
	for _, t := range done.Unblocked {
		fmt.Printf("  unblocked %s %s\n", models.ShortID(t.ID), t.Title)
	}
	for _, t := range done.Completed {
		fmt.Printf("  completed parent %s %s\n", models.ShortID(t.ID), t.Title)
	}
}
