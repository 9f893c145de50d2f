package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Import or export the organization",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load organizations, roles, teams, workers and seed tasks",
	Long: `Load a YAML roster. Records are matched by ID: existing ones are updated,
new ones created. Seed tasks that already exist are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r, err := roster.Decode(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := roster.Import(ctx, a.store, r, a.logger)
		if err != nil {
			return err
		}
		return render(res, func() {
			printStatus("✓", fmt.Sprintf("imported %s: %d created, %d updated", args[0], res.Created, res.Updated), color.FgGreen)
			if res.TasksSkipped > 0 {
				fmt.Printf("  %d existing tasks left unchanged\n", res.TasksSkipped)
			}
		})
	},
}

var rosterOutput string

var rosterExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the permanent organization as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := roster.Export(ctx, a.store)
		if err != nil {
			return err
		}
		if rosterOutput == "" || rosterOutput == "-" {
			return r.Encode(os.Stdout)
		}
		f, err := os.Create(rosterOutput)
		if err != nil {
			return err
		}
		if err := r.Encode(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	rosterExportCmd.Flags().StringVarP(&rosterOutput, "output", "o", "", "Output file (default: stdout)")
	rosterCmd.AddCommand(rosterImportCmd, rosterExportCmd)
}
