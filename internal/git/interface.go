// Package git wraps the git CLI operations used to manage task workspaces.
package git

import "context"

// Worktree is one entry from `git worktree list --porcelain`.
type Worktree struct {
	Path   string
	Head   string
	Branch string
	Bare   bool
	Locked bool
}

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the checked out branch.
	CurrentBranch(ctx context.Context) (string, error)
	// BranchExists returns true if the local branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)
	// RenameBranch renames a local branch (git branch -m).
	RenameBranch(ctx context.Context, oldName, newName string) error
	// DeleteBranch force deletes a local branch.
	DeleteBranch(ctx context.Context, name string) error
}

// RemoteOperations defines the interface for git remote operations.
type RemoteOperations interface {
	// Fetch fetches branch from remote.
	Fetch(ctx context.Context, remote, branch string) error
	// RefExists reports whether ref resolves to a commit.
	RefExists(ctx context.Context, ref string) (bool, error)
	// Push pushes branch to remote and sets its upstream.
	Push(ctx context.Context, remote, branch string) error
}

// CommitOperations defines the interface for staging and committing.
type CommitOperations interface {
	// HasChanges returns true if there are uncommitted changes.
	HasChanges(ctx context.Context) (bool, error)
	// AddAll stages every change in the working tree.
	AddAll(ctx context.Context) error
	// Commit creates a new commit with the given message.
	Commit(ctx context.Context, message string) error
	// ChangedFiles returns files changed relative to base.
	ChangedFiles(ctx context.Context, base string) ([]string, error)
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a worktree at path on a new branch started from ref.
	WorktreeAddNewBranch(ctx context.Context, path, branch, ref string) error
	// WorktreeRemove removes the worktree at path, optionally with force.
	WorktreeRemove(ctx context.Context, path string, force bool) error
	// WorktreeList returns the repository's worktrees.
	WorktreeList(ctx context.Context) ([]Worktree, error)
	// WorktreePrune removes stale worktree entries.
	WorktreePrune(ctx context.Context) error
}

// Runner defines the complete interface for git operations.
// Consumers should prefer the focused interfaces when possible.
type Runner interface {
	BranchOperations
	RemoteOperations
	CommitOperations
	WorktreeOperations
	// Dir returns the directory commands run in.
	Dir() string
	// At returns a Runner for another working directory of the same repository.
	At(dir string) Runner
	// Run executes an arbitrary git command with the given arguments.
	Run(ctx context.Context, args ...string) (string, error)
}
