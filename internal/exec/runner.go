package exec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct {
	logger *zap.Logger
	env    []string
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithLogger logs every command at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(r *ExecRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(r *ExecRunner) { r.env = append(r.env, kv...) }
}

// NewRunner creates a new ExecRunner.
func NewRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a command and returns combined stdout/stderr output.
func (r *ExecRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	r.logger.Debug("command finished",
		zap.String("cmd", name+" "+strings.Join(args, " ")),
		zap.String("dir", workDir),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return out, err
}

// RunShell executes a shell command through "sh -c".
func (r *ExecRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

// Exists checks if a file exists at the given path.
func (r *ExecRunner) Exists(_ context.Context, workDir string, path string) bool {
	if !filepath.IsAbs(path) && workDir != "" {
		path = filepath.Join(workDir, path)
	}
	_, err := os.Stat(path)
	return err == nil
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
