package gates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/hollon/internal/exec"
)

// ProjectType is the primary toolchain of a workspace.
type ProjectType string

const (
	ProjectGo      ProjectType = "go"
	ProjectRust    ProjectType = "rust"
	ProjectPython  ProjectType = "python"
	ProjectNode    ProjectType = "node"
	ProjectUnknown ProjectType = "unknown"
)

// DetectProjectType inspects marker files in dir, most specific first.
func DetectProjectType(ctx context.Context, runner exec.CommandRunner, dir string) ProjectType {
	has := func(name string) bool { return runner.Exists(ctx, dir, name) }
	switch {
	case has("go.mod"):
		return ProjectGo
	case has("Cargo.toml"):
		return ProjectRust
	case has("pyproject.toml"), has("setup.py"), has("requirements.txt"):
		return ProjectPython
	case has("package.json"):
		return ProjectNode
	default:
		return ProjectUnknown
	}
}

// CheckKind is a command-based quality check.
type CheckKind string

const (
	CheckBuild     CheckKind = "build"
	CheckTest      CheckKind = "test"
	CheckLint      CheckKind = "lint"
	CheckTypecheck CheckKind = "typecheck"
)

// CommandFor returns the command that runs kind for a project, or nil when
// the check does not apply.
func CommandFor(ctx context.Context, runner exec.CommandRunner, dir string, pt ProjectType, kind CheckKind) []string {
	switch pt {
	case ProjectGo:
		switch kind {
		case CheckBuild:
			return []string{"go", "build", "./..."}
		case CheckTest:
			return []string{"go", "test", "./..."}
		case CheckLint:
			return []string{"go", "vet", "./..."}
		}
	case ProjectRust:
		switch kind {
		case CheckBuild:
			return []string{"cargo", "build"}
		case CheckTest:
			return []string{"cargo", "test"}
		case CheckLint:
			return []string{"cargo", "clippy", "--", "-D", "warnings"}
		case CheckTypecheck:
			return []string{"cargo", "check"}
		}
	case ProjectPython:
		switch kind {
		case CheckTest:
			return []string{"python", "-m", "pytest"}
		case CheckLint:
			return []string{"ruff", "check", "."}
		case CheckTypecheck:
			if runner.Exists(ctx, dir, "mypy.ini") {
				return []string{"mypy", "."}
			}
		}
	case ProjectNode:
		switch kind {
		case CheckBuild:
			return []string{"npm", "run", "build", "--if-present"}
		case CheckTest:
			return []string{"npm", "test", "--if-present"}
		case CheckLint:
			return []string{"npm", "run", "lint", "--if-present"}
		case CheckTypecheck:
			if runner.Exists(ctx, dir, "tsconfig.json") {
				return []string{"npx", "tsc", "--noEmit"}
			}
		}
	}
	return nil
}

const maxFeedbackBytes = 4000

// CommandGate runs a project check in the workspace. Failures are retryable
// and carry the tail of the command output as feedback.
type CommandGate struct {
	kind    CheckKind
	runner  exec.CommandRunner
	timeout time.Duration
}

// NewCommandGate creates a gate for kind. A non-positive timeout means five minutes.
func NewCommandGate(kind CheckKind, runner exec.CommandRunner, timeout time.Duration) *CommandGate {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CommandGate{kind: kind, runner: runner, timeout: timeout}
}

// Name implements Gate.
func (g *CommandGate) Name() string { return string(g.kind) }

// Evaluate implements Gate. Workspaces without a recognised project, or
// projects where the check does not apply, pass.
func (g *CommandGate) Evaluate(ctx context.Context, in Input) error {
	if in.WorkDir == "" {
		return nil
	}
	pt := DetectProjectType(ctx, g.runner, in.WorkDir)
	argv := CommandFor(ctx, g.runner, in.WorkDir, pt, g.kind)
	if len(argv) == 0 {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.runner.Run(runCtx, in.WorkDir, argv[0], argv[1:]...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	reason := fmt.Sprintf("%v failed: %v", argv, err)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		reason = fmt.Sprintf("%v timed out after %s", argv, g.timeout)
	}
	if tail := tail(string(out), maxFeedbackBytes); tail != "" {
		reason += "\n" + tail
	}
	return &Failure{Gate: g.Name(), Reason: reason, Retryable: true}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
