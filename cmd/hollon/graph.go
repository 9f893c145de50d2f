package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/graph"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect and edit task dependencies",
}

var graphReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List tasks whose dependencies are complete",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ready, err := graph.NewService(a.store, a.logger).ReadyTasks(ctx)
		if err != nil {
			return err
		}
		return render(ready, func() { fmt.Print(taskTable(ready)) })
	},
}

var graphGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Show ready tasks grouped into batches that touch disjoint files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ready, err := graph.NewService(a.store, a.logger).ReadyTasks(ctx)
		if err != nil {
			return err
		}
		groups := graph.GroupForParallelExecution(ready)
		conflicts := graph.DetectFileConflicts(ready)
		report := struct {
			Groups    [][]*models.Task     `yaml:"groups"`
			Conflicts []graph.FileConflict `yaml:"conflicts"`
		}{groups, conflicts}

		return render(report, func() {
			for i, g := range groups {
				fmt.Println(heading(fmt.Sprintf("Batch %d", i+1)))
				fmt.Print(taskTable(g))
			}
			if len(conflicts) > 0 {
				fmt.Println(heading("File conflicts"))
				for _, c := range conflicts {
					fmt.Printf("  %s: %s\n", c.File, strings.Join(c.TaskIDs, ", "))
				}
			}
		})
	},
}

var graphOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print every task in dependency order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		g, err := graph.NewService(a.store, a.logger).Load(ctx)
		if err != nil {
			return err
		}
		order, err := g.TopologicalSort()
		if err != nil {
			return err
		}
		return render(order, func() {
			for i, id := range order {
				t := g.GetTask(id)
				fmt.Printf("%3d. %s %s %s\n", i+1, models.ShortID(id), statusText(t.Status), t.Title)
			}
		})
	},
}

var graphAddCmd = &cobra.Command{
	Use:   "add <task-id> <depends-on-id>",
	Short: "Make a task depend on another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := graph.NewService(a.store, a.logger).AddDependency(ctx, args[0], args[1]); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("%s now depends on %s", args[0], args[1]), color.FgGreen)
		return nil
	},
}

var graphRemoveCmd = &cobra.Command{
	Use:   "rm <task-id> <depends-on-id>",
	Short: "Remove a dependency",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := graph.NewService(a.store, a.logger).RemoveDependency(ctx, args[0], args[1]); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("%s no longer depends on %s", args[0], args[1]), color.FgGreen)
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphReadyCmd, graphGroupsCmd, graphOrderCmd, graphAddCmd, graphRemoveCmd)
}

// taskTable renders tasks as an aligned table.
func taskTable(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return labelStyle.Render("  (none)") + "\n"
	}
	rows := [][]string{{"ID", "STATUS", "PRI", "TYPE", "ASSIGNEE", "TITLE"}}
	for _, t := range tasks {
		assignee := t.AssignedWorkerID
		if assignee == "" && t.AssignedTeamID != "" {
			assignee = "team:" + t.AssignedTeamID
		}
		rows = append(rows, []string{
			models.ShortID(t.ID), statusText(t.Status), string(t.Priority), string(t.Type),
			models.ShortID(assignee), truncate(t.Title, 50),
		})
	}
	return table(rows)
}

// activeFilter selects tasks that still need work.
var activeFilter = state.TaskFilter{Statuses: []models.TaskStatus{
	models.TaskStatusPending, models.TaskStatusReady, models.TaskStatusBlocked,
	models.TaskStatusInProgress, models.TaskStatusReadyForReview,
}}
