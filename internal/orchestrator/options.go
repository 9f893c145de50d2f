package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/internal/config"
	iexec "github.com/ShayCichocki/hollon/internal/exec"
	"github.com/ShayCichocki/hollon/internal/gates"
	"github.com/ShayCichocki/hollon/internal/repolock"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/internal/vcs"
	"github.com/ShayCichocki/hollon/internal/workspace"
)

// Workspaces provisions and removes task workspaces.
type Workspaces interface {
	Provision(ctx context.Context, req workspace.Request) (*workspace.Workspace, error)
	Remove(ctx context.Context, repoPath, path string) error
}

// Host is the change-request host.
type Host interface {
	vcs.Reviewer
	CreatePullRequest(ctx context.Context, dir string, req vcs.PullRequestRequest) (*vcs.PullRequestInfo, error)
	FindPullRequest(ctx context.Context, dir, branch string) (*vcs.PullRequestInfo, error)
	Checks(ctx context.Context, dir string, number int) ([]vcs.Check, error)
	FailedCheckLogs(ctx context.Context, dir string, failed []vcs.Check) ([]vcs.CheckLog, error)
}

// RequiredConfig contains the collaborators an Orchestrator cannot run without.
type RequiredConfig struct {
	// Store persists tasks, workers and their records.
	Store state.Store
	// Brain executes worker prompts.
	Brain brain.Brain
	// Runner runs git, gh and gate commands.
	Runner iexec.CommandRunner
}

// Config holds execution settings.
type Config struct {
	// RepoPath is used when a worker's organization names no repository.
	RepoPath string
	// BaseBranch is used when the organization names no base branch.
	BaseBranch       string
	Remote           string
	WorkspaceDirName string
	// MaxDepth and MaxSubtasks bound decomposition.
	MaxDepth    int
	MaxSubtasks int
	// MaxCIRetries is the number of verification retries granted; the next
	// failure ends the task.
	MaxCIRetries             int
	VerificationTimeout      time.Duration
	VerificationPollInterval time.Duration
	// Reviewers are added to change requests on handoff.
	Reviewers []string
	// Gates configures the default quality gate chain.
	Gates gates.Config
}

// DefaultConfig returns the default execution settings.
func DefaultConfig() Config {
	return Config{
		BaseBranch:               "main",
		Remote:                   "origin",
		WorkspaceDirName:         ".workspaces",
		MaxDepth:                 3,
		MaxSubtasks:              10,
		MaxCIRetries:             3,
		VerificationTimeout:      10 * time.Minute,
		VerificationPollInterval: 30 * time.Second,
	}
}

// FromConfig maps loaded configuration onto execution settings.
func FromConfig(c *config.Config, repoPath string) Config {
	o := c.Orchestrator
	q := c.QualityGates
	return Config{
		RepoPath:                 repoPath,
		BaseBranch:               o.BaseBranch,
		Remote:                   o.Remote,
		WorkspaceDirName:         o.WorkspaceDirName,
		MaxDepth:                 o.MaxDepth,
		MaxSubtasks:              o.MaxSubtasks,
		MaxCIRetries:             o.MaxCIRetries,
		VerificationTimeout:      o.VerificationTimeout,
		VerificationPollInterval: o.VerificationPollInterval,
		Reviewers:                c.VCS.Reviewers,
		Gates: gates.Config{
			MinOutputLength: q.MinOutputLength,
			MaxCostCents:    q.MaxCostCents,
			Timeout:         q.Timeout,
			Test:            q.Test,
			Build:           q.Build,
			Lint:            q.Lint,
			Typecheck:       q.Typecheck,
		},
	}
}

// withDefaults fills zero-valued settings from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseBranch == "" {
		c.BaseBranch = d.BaseBranch
	}
	if c.Remote == "" {
		c.Remote = d.Remote
	}
	if c.WorkspaceDirName == "" {
		c.WorkspaceDirName = d.WorkspaceDirName
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxSubtasks <= 0 {
		c.MaxSubtasks = d.MaxSubtasks
	}
	if c.MaxCIRetries <= 0 {
		c.MaxCIRetries = d.MaxCIRetries
	}
	if c.VerificationTimeout <= 0 {
		c.VerificationTimeout = d.VerificationTimeout
	}
	if c.VerificationPollInterval <= 0 {
		c.VerificationPollInterval = d.VerificationPollInterval
	}
	return c
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	cfg    Config
	logger *zap.Logger

	// Injectable dependencies for testing
	locks      *repolock.Locker
	workspaces Workspaces
	host       Host
	gate       gates.Gate
	events     *EventEmitter
}

// WithConfig sets the execution settings. Zero fields take defaults.
func WithConfig(cfg Config) Option {
	return func(o *orchestratorOptions) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithLocker shares a repository gate with other components.
func WithLocker(l *repolock.Locker) Option {
	return func(o *orchestratorOptions) { o.locks = l }
}

// WithWorkspaces replaces the workspace manager.
func WithWorkspaces(w Workspaces) Option {
	return func(o *orchestratorOptions) { o.workspaces = w }
}

// WithHost replaces the gh-backed change-request host.
func WithHost(h Host) Option {
	return func(o *orchestratorOptions) { o.host = h }
}

// WithGate replaces the default quality gate chain.
func WithGate(g gates.Gate) Option {
	return func(o *orchestratorOptions) { o.gate = g }
}

// WithEvents publishes execution events to e.
func WithEvents(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.events = e }
}
