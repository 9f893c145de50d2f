package git

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"

	"github.com/ShayCichocki/hollon/internal/exec"
)

// OperationError is a failed git invocation with its captured output.
type OperationError struct {
	Dir    string
	Args   []string
	Output string
	Err    error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *OperationError) Unwrap() error { return e.Err }

// ExecRunner implements Runner on top of an exec.CommandRunner.
type ExecRunner struct {
	dir string
	cmd exec.CommandRunner
}

// NewRunner creates a git runner for the repository at dir.
// A nil cmd uses the real process runner.
func NewRunner(dir string, cmd exec.CommandRunner) *ExecRunner {
	if cmd == nil {
		cmd = exec.NewRunner()
	}
	return &ExecRunner{dir: dir, cmd: cmd}
}

// Dir returns the directory commands run in.
func (r *ExecRunner) Dir() string { return r.dir }

// At returns a runner for another directory sharing the same command runner.
func (r *ExecRunner) At(dir string) Runner {
	return &ExecRunner{dir: dir, cmd: r.cmd}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.cmd.Run(ctx, r.dir, "git", args...)
	if err != nil {
		return "", &OperationError{Dir: r.dir, Args: args, Output: string(out), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, args...)
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists returns true if the branch exists.
func (r *ExecRunner) BranchExists(ctx context.Context, name string) (bool, error) {
	return r.verify(ctx, "refs/heads/"+name)
}

// RenameBranch renames a local branch.
func (r *ExecRunner) RenameBranch(ctx context.Context, oldName, newName string) error {
	_, err := r.run(ctx, "branch", "-m", oldName, newName)
	return err
}

// DeleteBranch deletes the specified branch.
func (r *ExecRunner) DeleteBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, "branch", "-D", name)
	return err
}

// Fetch fetches a single branch from remote.
func (r *ExecRunner) Fetch(ctx context.Context, remote, branch string) error {
	_, err := r.run(ctx, "fetch", remote, branch)
	return err
}

// RefExists reports whether ref resolves to a commit.
func (r *ExecRunner) RefExists(ctx context.Context, ref string) (bool, error) {
	return r.verify(ctx, ref)
}

// verify runs rev-parse --verify. A non-zero exit means the ref is missing.
func (r *ExecRunner) verify(ctx context.Context, ref string) (bool, error) {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err == nil {
		return true, nil
	}
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// Push pushes branch to remote and sets its upstream.
func (r *ExecRunner) Push(ctx context.Context, remote, branch string) error {
	_, err := r.run(ctx, "push", "--set-upstream", remote, branch)
	return err
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges(ctx context.Context) (bool, error) {
	status, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(status) > 0, nil
}

// AddAll stages every change.
func (r *ExecRunner) AddAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "-A")
	return err
}

// Commit creates a new commit with the given message.
func (r *ExecRunner) Commit(ctx context.Context, message string) error {
	_, err := r.run(ctx, "commit", "-m", message)
	return err
}

// ChangedFiles returns a list of files changed since the base ref.
func (r *ExecRunner) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// WorktreeAddNewBranch creates a worktree at path on a new branch started from ref.
func (r *ExecRunner) WorktreeAddNewBranch(ctx context.Context, path, branch, ref string) error {
	_, err := r.run(ctx, "worktree", "add", "-b", branch, path, ref)
	return err
}

// WorktreeRemove removes the worktree at the given path.
func (r *ExecRunner) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.run(ctx, args...)
	return err
}

// WorktreeList returns the repository's worktrees.
func (r *ExecRunner) WorktreeList(ctx context.Context) ([]Worktree, error) {
	out, err := r.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

// ParseWorktreeList parses `git worktree list --porcelain` output.
func ParseWorktreeList(out string) []Worktree {
	var (
		list []Worktree
		cur  *Worktree
	)
	flush := func() {
		if cur != nil {
			list = append(list, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case cur == nil:
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.Bare = true
		case line == "locked" || strings.HasPrefix(line, "locked "):
			cur.Locked = true
		}
	}
	flush()
	return list
}

// WorktreePrune removes stale worktree entries.
func (r *ExecRunner) WorktreePrune(ctx context.Context) error {
	_, err := r.run(ctx, "worktree", "prune")
	return err
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
