package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	iexec "github.com/ShayCichocki/hollon/internal/exec"
	"github.com/ShayCichocki/hollon/internal/repolock"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/internal/workspace"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var cleanupOrphans bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [task-id]",
	Short: "Remove task workspaces",
	Long: `Remove the workspace of a task, or with --orphans every managed worktree
that no in-progress or in-review task is using.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupOrphans, "orphans", false, "Remove worktrees no active task uses")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupOrphans && len(args) == 0 {
		return fmt.Errorf("name a task or pass --orphans")
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		orch, err := a.orchestrator(ctx)
		if err != nil {
			return err
		}
		if err := orch.CleanupWorkspace(ctx, "", args[0]); err != nil {
			return err
		}
		printStatus("✓", "workspace removed for "+args[0], color.FgGreen)
		return nil
	}

	active, err := a.store.ListTasks(ctx, state.TaskFilter{
		Statuses: []models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusReadyForReview, models.TaskStatusBlocked},
	})
	if err != nil {
		return err
	}
	var keep []string
	for _, t := range active {
		if t.WorkingDirectory != "" {
			keep = append(keep, t.WorkingDirectory)
		}
	}

	o := a.cfg.Orchestrator
	mgr := workspace.New(iexec.NewRunner(iexec.WithLogger(a.logger)), repolock.New(repolock.WithLogger(a.logger)),
		workspace.WithConfig(workspace.Config{DirName: o.WorkspaceDirName, Remote: o.Remote, BaseBranch: o.BaseBranch}),
		workspace.WithLogger(a.logger))
	removed, err := mgr.CleanupOrphans(ctx, a.repo, keep)
	if err != nil {
		return err
	}
	return render(removed, func() {
		if len(removed) == 0 {
			printStatus("✓", "no orphaned workspaces", color.FgGreen)
			return
		}
		for _, p := range removed {
			printStatus("✗", "removed "+p, color.FgYellow)
		}
	})
}
