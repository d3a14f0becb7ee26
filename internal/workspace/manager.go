// Package workspace creates and tears down the isolated git worktrees
// tasks run in, computes their diffs, and merges finished work back
// into an environment's checked-out repository.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cklxx/slopcoordinator/internal/shared/utils"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// Manager allocates and reclaims isolated worktrees for one
// environment's checked-out repository.
type Manager struct {
	envName      string
	envDir       string
	worktreesDir string
	logger       *utils.ComponentLogger
	mu           sync.Mutex
}

// NewManager returns a Manager for environment envName checked out at
// envDir, creating worktrees under worktreesDir/<slug(envName)>/....
func NewManager(envName, envDir, worktreesDir string) *Manager {
	return &Manager{
		envName:      envName,
		envDir:       envDir,
		worktreesDir: worktreesDir,
		logger:       utils.NewComponentLogger("workspace.manager"),
	}
}

// Allocation describes one isolated workspace, persisted onto its Task.
type Allocation struct {
	WorktreePath string
	BaseBranch   string
	TargetBranch string
}

// Validate confirms the environment directory exists and is a
// checked-out git repository, per the bootstrap sequence in spec.md §4.5.
func (m *Manager) Validate(ctx context.Context) error {
	info, err := os.Stat(m.envDir)
	if err != nil || !info.IsDir() {
		return errRepositoryNotFound(m.envDir)
	}
	out, err := m.gitOutput(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(out) != "true" {
		return errInvalidGitRepository(m.envDir)
	}
	return nil
}

// EnvDir returns the environment's checked-out repository path, used
// as the working directory for an in-place (non-worktree) task.
func (m *Manager) EnvDir() string { return m.envDir }

// ValidateWorktreesDir confirms worktreesDir exists and is a directory.
func ValidateWorktreesDir(worktreesDir string) error {
	info, err := os.Stat(worktreesDir)
	if err != nil || !info.IsDir() {
		return errWorktreesDirInvalid(worktreesDir)
	}
	return nil
}

// ListBranches lists every local branch in the environment repository.
func (m *Manager) ListBranches(ctx context.Context) ([]string, error) {
	out, err := m.gitOutput(ctx, "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// CurrentBranch resolves the branch currently checked out in the
// environment repository, failing on detached HEAD.
func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	out, err := m.gitOutput(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "" || branch == "HEAD" {
		return "", errGitFailed(fmt.Errorf("repository is in detached HEAD state"), "rev-parse --abbrev-ref HEAD")
	}
	return branch, nil
}

func (m *Manager) branchExists(ctx context.Context, branch string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = m.envDir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, errGitFailed(err, "show-ref")
}

// worktreePath builds <worktrees_dir>/<slug(env_name)>/<slug(branch)>.
func (m *Manager) worktreePath(branch string) string {
	return filepath.Join(m.worktreesDir, SanitizeForPath(m.envName), SanitizeForPath(branch))
}

// Allocate creates an isolated workspace for a new task: picks a
// target branch from prompt (see TaskBranchName), refuses if the worktree path or
// branch already exists, then adds a new worktree rooted at baseBranch
// (defaulting to the environment's current branch).
func (m *Manager) Allocate(ctx context.Context, picker TopicPicker, prompt, baseBranch string) (*Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if baseBranch == "" {
		resolved, err := m.CurrentBranch(ctx)
		if err != nil {
			return nil, err
		}
		baseBranch = resolved
	}

	target := TaskBranchName(picker, prompt)
	path := m.worktreePath(target)

	if _, err := os.Stat(path); err == nil {
		return nil, errWorktreeExists(path)
	}
	exists, err := m.branchExists(ctx, target)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errBranchExists(target)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errGitFailed(err, "mkdir worktree parent")
	}

	if _, err := m.gitOutput(ctx, "worktree", "add", "-b", target, path, baseBranch); err != nil {
		return nil, err
	}

	return &Allocation{WorktreePath: path, BaseBranch: baseBranch, TargetBranch: target}, nil
}

// Diff computes the staged/unstaged diff of a task's isolated worktree.
func (m *Manager) Diff(ctx context.Context, worktreePath, base string) (Diff, error) {
	return GetDiff(ctx, worktreePath, base)
}

// MergeReadiness reports whether t is eligible for MergeBack, and if
// not, why.
func (m *Manager) MergeReadiness(ctx context.Context, t *task.Task) (bool, string) {
	if t.WorkspaceKind != task.WorkspaceKindIsolated {
		return false, "task workspace is not isolated"
	}
	if t.MergeBranch == "" {
		return false, "task has no merge branch recorded"
	}
	wtDiff, err := GetDiff(ctx, t.WorktreePath, "")
	if err != nil {
		return false, fmt.Sprintf("failed to inspect worktree: %v", err)
	}
	if !wtDiff.IsClean() {
		return false, "worktree has uncommitted changes"
	}
	envDiff, err := GetDiff(ctx, m.envDir, "")
	if err != nil {
		return false, fmt.Sprintf("failed to inspect environment repository: %v", err)
	}
	if !envDiff.IsClean() {
		return false, "environment repository has uncommitted changes"
	}
	return true, ""
}

// MergeResult is the outcome of a successful merge-back.
type MergeResult struct {
	CommitHash string
}

// MergeBack merges t's merge branch into the environment directory's
// currently checked-out branch. This intentionally does not assert
// that branch equals t's recorded BaseBranch (spec.md §9(b)'s
// preserved looseness: a task merges against whatever the environment
// is on today, not necessarily what it was on when the task started).
// On any non-zero exit the merge is aborted and the tool's trimmed
// stdout is returned as a conflict error, leaving both trees untouched.
func (m *Manager) MergeBack(ctx context.Context, t *task.Task) (*MergeResult, error) {
	ok, reason := m.MergeReadiness(ctx, t)
	if !ok {
		return nil, errNotMergeable(reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := exec.CommandContext(ctx, "git", "merge", "--no-edit", t.MergeBranch)
	cmd.Dir = m.envDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		abort := exec.CommandContext(ctx, "git", "merge", "--abort")
		abort.Dir = m.envDir
		_ = abort.Run()
		return nil, errMergeConflict(strings.TrimSpace(stdout.String()))
	}

	hash, err := m.gitOutput(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	return &MergeResult{CommitHash: strings.TrimSpace(hash)}, nil
}

// Cleanup removes an isolated worktree, optionally deleting its branch.
func (m *Manager) Cleanup(ctx context.Context, worktreePath, branch string, deleteBranch bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if worktreePath != "" {
		if _, err := m.gitOutput(ctx, "worktree", "remove", "--force", worktreePath); err != nil {
			m.logger.Warn("worktree remove failed for %s: %v", worktreePath, err)
		}
	}
	if deleteBranch && branch != "" {
		if _, err := m.gitOutput(ctx, "branch", "-D", branch); err != nil {
			m.logger.Warn("branch delete failed for %s: %v", branch, err)
		}
	}
	return nil
}

func (m *Manager) gitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.envDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errGitFailed(fmt.Errorf("%s", stderr.String()), strings.Join(args, " "))
	}
	return stdout.String(), nil
}
