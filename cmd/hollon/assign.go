package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/matcher"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

var (
	assignRebalance bool
	assignTeam      string
	assignRecommend string
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Match unassigned tasks to workers",
	Long: `Assign every unassigned leaf task to the best-scoring permanent worker.
Scores weigh skill match, workload, availability and existing knowledge.

With --rebalance, the pending and ready tasks already held by the selected
workers are released and assigned again. With --recommend, nothing is written:
the ranked candidates for one task are printed instead.`,
	Args: cobra.NoArgs,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().BoolVar(&assignRebalance, "rebalance", false, "Reassign queued tasks across workers")
	assignCmd.Flags().StringVar(&assignTeam, "team", "", "Limit the worker pool to one team")
	assignCmd.Flags().StringVar(&assignRecommend, "recommend", "", "Show the best workers for this task without assigning")
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	workers, err := a.store.ListWorkers(ctx, state.WorkerFilter{TeamID: assignTeam, Lifecycle: models.LifecyclePermanent})
	if err != nil {
		return err
	}

	mc := a.cfg.Matcher
	m := matcher.New(a.store, a.store,
		matcher.WithConfig(matcher.Config{
			QualityThreshold:  mc.QualityThreshold,
			OverloadThreshold: mc.OverloadThreshold,
			MaxAlternatives:   mc.MaxAlternatives,
		}),
		matcher.WithKnowledgeIndex(matcher.StoreKnowledge{Documents: a.store}),
		matcher.WithLogger(a.logger))

	if assignRecommend != "" {
		task, err := a.store.GetTask(ctx, assignRecommend)
		if err != nil {
			return err
		}
		rec, err := m.RecommendWorker(ctx, task, workers)
		if err != nil {
			return err
		}
		return render(rec, func() { printRecommendation(rec) })
	}

	var report *matcher.AssignmentReport
	if assignRebalance {
		report, err = m.RebalanceWorkload(ctx, workers)
	} else {
		var tasks []*models.Task
		tasks, err = a.store.ListTasks(ctx, state.TaskFilter{
			Unassigned: true,
			Statuses:   []models.TaskStatus{models.TaskStatusPending, models.TaskStatusReady, models.TaskStatusBlocked},
		})
		if err != nil {
			return err
		}
		report, err = m.AssignProject(ctx, tasks, workers)
	}
	if err != nil {
		return err
	}
	return render(report, func() { printAssignments(report) })
}

func printAssignments(r *matcher.AssignmentReport) {
	if len(r.Assignments) == 0 {
		printStatus("•", "nothing to assign", color.FgCyan)
	} else {
		rows := [][]string{{"TASK", "WORKER", "SCORE"}}
		for _, as := range r.Assignments {
			rows = append(rows, []string{models.ShortID(as.TaskID), models.ShortID(as.WorkerID), fmt.Sprintf("%.1f", as.Score)})
		}
		fmt.Print(table(rows))
		fmt.Printf("%s %.1f\n", labelStyle.Render("average score:"), r.AverageQuality)
	}
	for _, id := range r.Unassigned {
		printStatus("✗", "no eligible worker for "+id, color.FgRed)
	}
	for _, w := range r.Warnings {
		printStatus("!", w, color.FgYellow)
	}
}

func printRecommendation(r *matcher.Recommendation) {
	rows := [][]string{{"WORKER", "TOTAL", "SKILLS", "KNOWLEDGE", "EXPERIENCE", "WORKLOAD", "STATUS"}}
	for _, c := range append([]matcher.Candidate{r.Best}, r.Alternatives...) {
		s := c.Score
		rows = append(rows, []string{
			c.Worker.Name,
			fmt.Sprintf("%.1f", s.Total),
			fmt.Sprintf("%.0f", s.Skills),
			fmt.Sprintf("%.0f", s.Knowledge),
			fmt.Sprintf("%.0f", s.Experience),
			fmt.Sprintf("%.0f", s.Workload),
			fmt.Sprintf("%.0f", s.Status),
		})
	}
	fmt.Println(heading("Candidates for " + r.TaskID))
	fmt.Print(table(rows))
}
