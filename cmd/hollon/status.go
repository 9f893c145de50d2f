package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tasks and workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		filter := activeFilter
		if statusAll {
			filter = state.TaskFilter{}
		}
		tasks, err := a.store.ListTasks(ctx, filter)
		if err != nil {
			return err
		}
		workers, err := a.store.ListWorkers(ctx, state.WorkerFilter{})
		if err != nil {
			return err
		}

		report := struct {
			Tasks   []*models.Task   `yaml:"tasks"`
			Workers []*models.Worker `yaml:"workers"`
		}{tasks, workers}
		return render(report, func() {
			fmt.Println(heading(fmt.Sprintf("Tasks (%d)", len(tasks))))
			fmt.Print(taskTable(tasks))
			fmt.Println()
			fmt.Println(heading(fmt.Sprintf("Workers (%d)", len(workers))))
			fmt.Print(workerTable(workers))
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Include completed, failed and cancelled tasks")
}

func workerTable(workers []*models.Worker) string {
	if len(workers) == 0 {
		return labelStyle.Render("  (none)") + "\n"
	}
	rows := [][]string{{"ID", "NAME", "STATUS", "LIFECYCLE", "ROLE", "TEAM"}}
	for _, w := range workers {
		rows = append(rows, []string{
			models.ShortID(w.ID), w.Name, string(w.Status), string(w.Lifecycle),
			models.ShortID(w.RoleID), models.ShortID(w.TeamID),
		})
	}
	return table(rows)
}
