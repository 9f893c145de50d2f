package main

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/config"
	"github.com/ShayCichocki/hollon/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow verification of open change requests",
	Long: `Open a dashboard of in-progress and in-review tasks. Every poll interval
the checks of each open change request are evaluated: passing ones are handed
to review, failing ones record feedback for the worker's next attempt.

Edits to the config file are picked up while the dashboard runs.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	m := tui.NewWatchModel(ctx, a.store, orch, tui.WithInterval(a.cfg.Orchestrator.VerificationPollInterval))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if path := watchedConfigPath(); path != "" {
		w, err := config.Watch(path,
			func(c *config.Config) {
				p.Send(tui.ConfigReloadedMsg{Interval: c.Orchestrator.VerificationPollInterval})
			},
			func(err error) { p.Send(tui.ErrorMsg{Err: err}) })
		if err != nil {
			a.logger.Warn("config watch disabled", zap.String("path", path), zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// watchedConfigPath is the file whose edits should reach a running dashboard.
func watchedConfigPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}
	if p := config.GetProjectConfigPath(); p != "" {
		return p
	}
	return config.GetUserConfigPath()
}
