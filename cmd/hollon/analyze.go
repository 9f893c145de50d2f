package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/pivot"
	"github.com/ShayCichocki/hollon/internal/uncertainty"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyse the open task pool",
}

var uncertaintySpikes bool

var uncertaintyCmd = &cobra.Command{
	Use:   "uncertainty",
	Short: "Flag ambiguous tasks",
	Long: `Score every open task for ambiguity: vague titles, sparse descriptions,
unknown technology markers, open questions and cross-team dependencies.
With --spikes, a time-boxed investigation task is created for every high or
critical task.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		uc := a.cfg.Uncertainty
		an := uncertainty.New(a.store,
			uncertainty.WithConfig(uncertainty.Config{
				MinDescriptionLength: uc.MinDescriptionLength,
				GenerateSpikes:       uc.GenerateSpikes || uncertaintySpikes,
				MaxDepth:             a.cfg.Orchestrator.MaxDepth,
			}),
			uncertainty.WithLogger(a.logger))
		report, err := an.AnalyzeAll(ctx, activeFilter)
		if err != nil {
			return err
		}
		return render(report, func() { printUncertainty(report) })
	},
}

var (
	pivotFrom  string
	pivotTo    string
	pivotAreas []string
	pivotApply bool
)

var pivotCmd = &cobra.Command{
	Use:   "pivot",
	Short: "Assess open tasks against a change of direction",
	Long: `Score every open task for alignment with a new direction and recommend
keeping, adapting, deferring or discarding it. With --apply, discarded tasks
are cancelled, deferred tasks are tagged and replacement tasks are created.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pivotFrom == "" || pivotTo == "" {
			return fmt.Errorf("--from and --to are required")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		an := pivot.New(a.store, a.store, pivot.WithLogger(a.logger))
		report, err := an.Analyze(ctx, pivot.Request{OldDirection: pivotFrom, NewDirection: pivotTo, Areas: pivotAreas})
		if err != nil {
			return err
		}
		if !pivotApply {
			return render(report, func() { printPivot(report) })
		}
		res, err := an.ApplyPlan(ctx, report)
		if err != nil {
			return err
		}
		out := struct {
			Report  *pivot.Report      `yaml:"report"`
			Applied *pivot.ApplyResult `yaml:"applied"`
		}{report, res}
		return render(out, func() {
			printPivot(report)
			fmt.Println(heading("Applied"))
			fmt.Printf("  cancelled %d, deferred %d, created %d\n", len(res.Cancelled), len(res.Deferred), len(res.Created))
		})
	},
}

func init() {
	uncertaintyCmd.Flags().BoolVar(&uncertaintySpikes, "spikes", false, "Create spike tasks for high and critical uncertainty")
	pivotCmd.Flags().StringVar(&pivotFrom, "from", "", "Current direction")
	pivotCmd.Flags().StringVar(&pivotTo, "to", "", "New direction")
	pivotCmd.Flags().StringSliceVar(&pivotAreas, "area", nil, "Restrict to tasks in these areas")
	pivotCmd.Flags().BoolVar(&pivotApply, "apply", false, "Apply the recommendations")
	analyzeCmd.AddCommand(uncertaintyCmd, pivotCmd)
}

var uncertaintyColors = map[uncertainty.Level]color.Attribute{
	uncertainty.LevelLow:      color.FgGreen,
	uncertainty.LevelMedium:   color.FgYellow,
	uncertainty.LevelHigh:     color.FgRed,
	uncertainty.LevelCritical: color.FgMagenta,
}

func printUncertainty(r *uncertainty.Report) {
	for _, as := range r.Assessments {
		if len(as.Factors) == 0 {
			continue
		}
		c := color.New(uncertaintyColors[as.Level])
		fmt.Printf("%s %s %s\n", c.Sprintf("%-8s", as.Level), as.TaskID, as.Title)
		for _, reason := range as.Reasons {
			fmt.Printf("         %s\n", labelStyle.Render(reason))
		}
	}
	var counts []string
	for _, l := range []uncertainty.Level{uncertainty.LevelLow, uncertainty.LevelMedium, uncertainty.LevelHigh, uncertainty.LevelCritical} {
		counts = append(counts, fmt.Sprintf("%s %d", l, r.Counts[l]))
	}
	fmt.Printf("%s %s\n", labelStyle.Render("levels:"), strings.Join(counts, ", "))
	for _, s := range r.Spikes {
		printStatus("+", "spike "+s.ID+" "+s.Title, color.FgCyan)
	}
}

func printPivot(r *pivot.Report) {
	rows := [][]string{{"TASK", "ALIGN", "COST", "IMPACT", "RECOMMENDATION", "TITLE"}}
	for _, im := range r.Impacts {
		rows = append(rows, []string{
			im.TaskID,
			fmt.Sprintf("%.0f", im.Alignment),
			fmt.Sprintf("%.0f", im.AdaptationCost),
			string(im.Level),
			string(im.Recommendation),
			truncate(im.Title, 40),
		})
	}
	fmt.Print(table(rows))
	fmt.Printf("%s %.1f  %s %s\n",
		labelStyle.Render("average alignment:"), r.AverageAlignment,
		labelStyle.Render("overall impact:"), r.OverallImpact)
	for _, p := range r.Recreations {
		printStatus("↻", fmt.Sprintf("recreate %s as %q", p.OriginalTaskID, p.Title), color.FgCyan)
	}
}
