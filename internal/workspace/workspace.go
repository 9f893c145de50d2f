// Package workspace provisions and removes the per-task git worktrees
// workers operate in. Every mutation of a repository goes through its
// repolock gate.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/exec"
	"github.com/ShayCichocki/hollon/internal/git"
	"github.com/ShayCichocki/hollon/internal/repolock"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// ErrWorkspaceAlreadyExists is returned when the target path is occupied.
var ErrWorkspaceAlreadyExists = errors.New("workspace already exists")

// Config controls where workspaces live and what they branch from.
type Config struct {
	// DirName is created next to the repository to hold workspaces.
	DirName string
	// Remote is fetched before provisioning.
	Remote string
	// BaseBranch is used when a request does not name one.
	BaseBranch string
}

// DefaultConfig returns the standard layout.
func DefaultConfig() Config {
	return Config{DirName: ".workspaces", Remote: "origin", BaseBranch: "main"}
}

// Workspace is a provisioned worktree.
type Workspace struct {
	RepoPath  string
	Path      string
	Branch    string
	BaseRef   string
	CreatedAt time.Time
}

// Request describes the workspace to provision.
type Request struct {
	RepoPath   string
	WorkerID   string
	WorkerName string
	TaskID     string
	// BaseBranch overrides Config.BaseBranch.
	BaseBranch string
}

// Manager provisions and removes workspaces.
type Manager struct {
	cmd    exec.CommandRunner
	locks  *repolock.Locker
	cfg    Config
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the layout.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		d := DefaultConfig()
		if cfg.DirName == "" {
			cfg.DirName = d.DirName
		}
		if cfg.Remote == "" {
			cfg.Remote = d.Remote
		}
		if cfg.BaseBranch == "" {
			cfg.BaseBranch = d.BaseBranch
		}
		m.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager. A nil cmd uses real processes; a nil locker gets a private one.
func New(cmd exec.CommandRunner, locks *repolock.Locker, opts ...Option) *Manager {
	if cmd == nil {
		cmd = exec.NewRunner()
	}
	if locks == nil {
		locks = repolock.New()
	}
	m := &Manager{cmd: cmd, locks: locks, cfg: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the directory holding every workspace of repoPath.
func (m *Manager) Root(repoPath string) string {
	return filepath.Join(repoPath, "..", m.cfg.DirName)
}

// PathFor returns {repo}/../{dir}/worker-{short worker}/task-{short task}.
func (m *Manager) PathFor(repoPath, workerID, taskID string) string {
	return filepath.Join(m.Root(repoPath), "worker-"+models.ShortID(workerID), "task-"+models.ShortID(taskID))
}

// BranchName returns feature/{worker}/task-{short task}.
func BranchName(workerName, taskID string) string {
	return fmt.Sprintf("feature/%s/task-%s", sanitize(workerName), models.ShortID(taskID))
}

// sanitize makes a worker name safe for use as a ref path component.
func sanitize(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "worker"
	}
	return s
}

func (m *Manager) git(dir string) git.Runner {
	return git.NewRunner(dir, m.cmd)
}

// Provision creates the worktree for a task. It fetches the base branch
// (falling back to the local branch when the fetch fails), adds the worktree
// on a temporary branch and renames it to the task branch. A failed
// provision leaves no worktree behind.
func (m *Manager) Provision(ctx context.Context, req Request) (*Workspace, error) {
	base := req.BaseBranch
	if base == "" {
		base = m.cfg.BaseBranch
	}
	ws := &Workspace{
		RepoPath: req.RepoPath,
		Path:     m.PathFor(req.RepoPath, req.WorkerID, req.TaskID),
		Branch:   BranchName(req.WorkerName, req.TaskID),
	}

	err := m.locks.WithLock(ctx, req.RepoPath, func(ctx context.Context) error {
		if m.cmd.Exists(ctx, "", ws.Path) {
			return fmt.Errorf("%s: %w", ws.Path, ErrWorkspaceAlreadyExists)
		}
		repo := m.git(req.RepoPath)

		ref, err := m.baseRef(ctx, repo, base)
		if err != nil {
			return err
		}
		ws.BaseRef = ref

		tmp := "hollon-tmp/" + uuid.NewString()
		if err := repo.WorktreeAddNewBranch(ctx, ws.Path, tmp, ref); err != nil {
			return fmt.Errorf("add worktree: %w", err)
		}

		if exists, err := repo.BranchExists(ctx, ws.Branch); err == nil && exists {
			m.logger.Warn("replacing stale task branch", zap.String("branch", ws.Branch))
			if err := repo.DeleteBranch(ctx, ws.Branch); err != nil {
				m.discard(ctx, repo, ws.Path, tmp)
				return fmt.Errorf("delete stale branch: %w", err)
			}
		}
		if err := repo.RenameBranch(ctx, tmp, ws.Branch); err != nil {
			m.discard(ctx, repo, ws.Path, tmp)
			return fmt.Errorf("rename branch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ws.CreatedAt = time.Now()
	m.logger.Info("workspace provisioned",
		zap.String("task_id", req.TaskID),
		zap.String("path", ws.Path),
		zap.String("branch", ws.Branch),
		zap.String("base", ws.BaseRef))
	return ws, nil
}

// baseRef fetches base from the remote and returns the remote-tracking ref,
// or the local branch when the fetch fails.
func (m *Manager) baseRef(ctx context.Context, repo git.Runner, base string) (string, error) {
	fetchErr := repo.Fetch(ctx, m.cfg.Remote, base)
	if fetchErr == nil {
		return m.cfg.Remote + "/" + base, nil
	}
	m.logger.Warn("fetch failed, using local base branch", zap.String("base", base), zap.Error(fetchErr))

	ok, err := repo.RefExists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("resolve base %s: %w", base, err)
	}
	if !ok {
		return "", fmt.Errorf("base branch %s not found locally or on %s", base, m.cfg.Remote)
	}
	return base, nil
}

// discard undoes a partially provisioned worktree. Errors are logged.
func (m *Manager) discard(ctx context.Context, repo git.Runner, path, branch string) {
	if err := repo.WorktreeRemove(ctx, path, true); err != nil {
		m.logger.Warn("cleanup worktree failed", zap.String("path", path), zap.Error(err))
	}
	if err := repo.DeleteBranch(ctx, branch); err != nil {
		m.logger.Warn("cleanup branch failed", zap.String("branch", branch), zap.Error(err))
	}
}

// Remove deletes the worktree at path. Removing a missing workspace succeeds.
func (m *Manager) Remove(ctx context.Context, repoPath, path string) error {
	return m.locks.WithLock(ctx, repoPath, func(ctx context.Context) error {
		return m.removeLocked(ctx, repoPath, path)
	})
}

func (m *Manager) removeLocked(ctx context.Context, repoPath, path string) error {
	repo := m.git(repoPath)
	if m.cmd.Exists(ctx, "", path) {
		if err := repo.WorktreeRemove(ctx, path, true); err != nil {
			return fmt.Errorf("remove worktree %s: %w", path, err)
		}
		m.logger.Info("workspace removed", zap.String("path", path))
	}
	if err := repo.WorktreePrune(ctx); err != nil {
		m.logger.Warn("worktree prune failed", zap.Error(err))
	}
	return nil
}

// List returns the worktrees of repoPath that live under its workspace root.
func (m *Manager) List(ctx context.Context, repoPath string) ([]git.Worktree, error) {
	all, err := m.git(repoPath).WorktreeList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	root := filepath.Clean(m.Root(repoPath)) + string(filepath.Separator)
	var out []git.Worktree
	for _, wt := range all {
		if strings.HasPrefix(filepath.Clean(wt.Path), root) {
			out = append(out, wt)
		}
	}
	return out, nil
}

// Prune removes stale worktree bookkeeping for repoPath.
func (m *Manager) Prune(ctx context.Context, repoPath string) error {
	return m.locks.WithLock(ctx, repoPath, func(ctx context.Context) error {
		return m.git(repoPath).WorktreePrune(ctx)
	})
}

// CleanupOrphans removes managed worktrees whose path is not in active and
// returns the removed paths. Locked worktrees are left alone.
func (m *Manager) CleanupOrphans(ctx context.Context, repoPath string, active []string) ([]string, error) {
	keep := make(map[string]bool, len(active))
	for _, p := range active {
		keep[filepath.Clean(p)] = true
	}

	var removed []string
	err := m.locks.WithLock(ctx, repoPath, func(ctx context.Context) error {
		managed, err := m.List(ctx, repoPath)
		if err != nil {
			return err
		}
		for _, wt := range managed {
			if wt.Locked || keep[filepath.Clean(wt.Path)] {
				continue
			}
			if err := m.removeLocked(ctx, repoPath, wt.Path); err != nil {
				m.logger.Warn("orphan cleanup failed", zap.String("path", wt.Path), zap.Error(err))
				continue
			}
			removed = append(removed, wt.Path)
		}
		return nil
	})
	return removed, err
}
