package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/internal/config"
	iexec "github.com/ShayCichocki/hollon/internal/exec"
	"github.com/ShayCichocki/hollon/internal/logging"
	"github.com/ShayCichocki/hollon/internal/orchestrator"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/internal/vcs"
)

var (
	flagRepo       string
	flagConfigPath string
	flagFormat     string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "hollon",
	Short: "Worker-agent orchestration for a git repository",
	Long: `Hollon runs a standing organization of worker agents against a git
repository. Aggregate tasks are decomposed down the team hierarchy, leaf tasks
are executed by workers in isolated git worktrees, and every result is opened
as a change request that must pass its checks before it is handed to review.

Typical flow:
  hollon roster import org.yaml     # teams, roles, workers and seed tasks
  hollon assign                     # match ready tasks to workers
  hollon execute <task>             # run one attempt of a task
  hollon watch                      # follow verification of open changes`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "Repository root (default: enclosing git repository)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file (default: user config merged with .hollon.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "Report format: text or yaml")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(rosterCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles what most commands need. Close releases the store and
// flushes the logger.
type app struct {
	cfg    *config.Config
	repo   string
	logger *zap.Logger
	store  state.Store
}

func loadConfig() (*config.Config, error) {
	if flagConfigPath != "" {
		return config.LoadFromPath(flagConfigPath)
	}
	return config.Load()
}

// openApp loads configuration, resolves the repository, builds the logger
// and opens the migrated store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	repo, err := resolveRepo()
	if err != nil {
		return nil, err
	}

	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = logging.LogPathForRepo(repo)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: logFile})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	dbPath := cfg.State.Path
	if dbPath == "" {
		dbPath = state.ProjectDBPath(repo)
	}
	db, err := state.Open(dbPath, state.WithDriver(cfg.State.Driver))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state: %w", err)
	}

	return &app{cfg: cfg, repo: repo, logger: logger, store: db}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close state", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// orchestrator wires the inference backend, gh client and command runner
// into an Orchestrator for the app's repository.
func (a *app) orchestrator(ctx context.Context, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	key, err := config.APIKey(a.cfg)
	if err != nil && !a.cfg.Anthropic.UseBedrock {
		return nil, err
	}
	b, err := brain.NewAnthropicBrain(ctx, brain.Config{
		APIKey:     key,
		Model:      a.cfg.Anthropic.Model,
		MaxTokens:  int64(a.cfg.Anthropic.MaxTokens),
		UseBedrock: a.cfg.Anthropic.UseBedrock,
		AWSRegion:  a.cfg.Anthropic.AWSRegion,
		AWSProfile: a.cfg.Anthropic.AWSProfile,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create inference client: %w", err)
	}

	runner := iexec.NewRunner(iexec.WithLogger(a.logger))
	base := []orchestrator.Option{
		orchestrator.WithConfig(orchestrator.FromConfig(a.cfg, a.repo)),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithHost(a.vcsClient(runner)),
	}
	return orchestrator.New(orchestrator.RequiredConfig{Store: a.store, Brain: b, Runner: runner}, append(base, opts...)...)
}

func (a *app) vcsClient(runner iexec.CommandRunner) *vcs.Client {
	v := a.cfg.VCS
	return vcs.NewClient(runner,
		vcs.WithBinary(v.GHBinary),
		vcs.WithRepository(v.Repository),
		vcs.WithRateLimit(v.RequestsPerSecond, v.Burst),
		vcs.WithLogger(a.logger))
}

func resolveRepo() (string, error) {
	if flagRepo != "" {
		return filepath.Abs(flagRepo)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return findGitRoot(cwd)
}

var errNotInRepo = errors.New("not in a git repository (use --repo)")

// findGitRoot walks up from startDir to the directory holding .git. A .git
// file marks a linked worktree and counts too.
func findGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNotInRepo
		}
		dir = parent
	}
}
