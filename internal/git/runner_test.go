package git

import (
	"context"
	"errors"
	osexec "os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/internal/exec/exectest"
)

func TestRunner_CommandShapes(t *testing.T) {
	ctx := context.Background()
	fake := exectest.New()
	r := NewRunner("/repo", fake)

	require.NoError(t, r.Fetch(ctx, "origin", "main"))
	require.NoError(t, r.WorktreeAddNewBranch(ctx, "/ws/task", "tmp-1", "origin/main"))
	require.NoError(t, r.At("/ws/task").RenameBranch(ctx, "tmp-1", "feature/bea/task-ab12cd34"))
	require.NoError(t, r.Push(ctx, "origin", "feature/bea/task-ab12cd34"))
	require.NoError(t, r.WorktreeRemove(ctx, "/ws/task", true))

	assert.Equal(t, []string{
		"git fetch origin main",
		"git worktree add -b tmp-1 /ws/task origin/main",
		"git branch -m tmp-1 feature/bea/task-ab12cd34",
		"git push --set-upstream origin feature/bea/task-ab12cd34",
		"git worktree remove --force /ws/task",
	}, fake.Commands())

	calls := fake.Calls()
	assert.Equal(t, "/repo", calls[0].Dir)
	assert.Equal(t, "/ws/task", calls[2].Dir)
}

func TestRunner_OperationError(t *testing.T) {
	boom := errors.New("exit status 128")
	fake := exectest.New().Respond("git fetch", "fatal: could not read from remote\n", boom)
	r := NewRunner("/repo", fake)

	err := r.Fetch(context.Background(), "origin", "main")
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, []string{"fetch", "origin", "main"}, opErr.Args)
	assert.Contains(t, err.Error(), "could not read from remote")
	assert.ErrorIs(t, err, boom)
}

func TestRunner_RefExists(t *testing.T) {
	ctx := context.Background()
	fake := exectest.New().
		Respond("git rev-parse --verify --quiet origin/main", "abc123\n", nil).
		Respond("git rev-parse --verify --quiet refs/heads/gone", "", &osexec.ExitError{}).
		Respond("git rev-parse --verify --quiet broken", "", errors.New("not a git repository"))
	r := NewRunner("/repo", fake)

	ok, err := r.RefExists(ctx, "origin/main")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.BranchExists(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.RefExists(ctx, "broken")
	assert.Error(t, err)
}

func TestRunner_ChangesAndCommit(t *testing.T) {
	ctx := context.Background()
	fake := exectest.New().
		Respond("git status --porcelain", " M main.go\n", nil).
		Respond("git diff --name-only", "main.go\nutil.go\n", nil)
	r := NewRunner("/ws", fake)

	changed, err := r.HasChanges(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	files, err := r.ChangedFiles(ctx, "origin/main")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "util.go"}, files)

	require.NoError(t, r.AddAll(ctx))
	require.NoError(t, r.Commit(ctx, "task: done"))
	assert.True(t, fake.Ran("git commit -m task: done"))
}

func TestParseWorktreeList(t *testing.T) {
	out := `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repo/../.workspaces/worker-ab12cd34/task-ef56gh78
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature/bea/task-ef56gh78
locked

worktree /tmp/detached
HEAD 3333333333333333333333333333333333333333
detached
`
	got := ParseWorktreeList(out)
	require.Len(t, got, 3)
	assert.Equal(t, Worktree{Path: "/repo", Head: "1111111111111111111111111111111111111111", Branch: "main"}, got[0])
	assert.Equal(t, "feature/bea/task-ef56gh78", got[1].Branch)
	assert.True(t, got[1].Locked)
	assert.Empty(t, got[2].Branch)
}
