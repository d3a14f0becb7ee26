package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cklxx/slopcoordinator/internal/task"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("base\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestAllocateCreatesWorktreeOnFreshBranch(t *testing.T) {
	ctx := context.Background()
	envDir := initRepo(t)
	worktrees := t.TempDir()
	mgr := NewManager("widgets", envDir, worktrees)

	alloc, err := mgr.Allocate(ctx, nil, "Fix login flow", "")
	require.NoError(t, err)
	require.Equal(t, "main", alloc.BaseBranch)
	require.DirExists(t, alloc.WorktreePath)
	require.Contains(t, alloc.TargetBranch, "task/fix-login-flow-")

	branches, err := mgr.ListBranches(ctx)
	require.NoError(t, err)
	require.Contains(t, branches, alloc.TargetBranch)
}

// TaskBranchName always appends a random suffix to whatever topic a
// TopicPicker proposes, so Allocate's WorktreeExists/BranchExists
// refusal paths can't be driven through a predicted collision at that
// level; these exercise the same branchExists/worktreePath primitives
// Allocate refuses on directly instead.

func TestBranchExistsDetectsExistingRef(t *testing.T) {
	ctx := context.Background()
	envDir := initRepo(t)
	mgr := NewManager("widgets", envDir, t.TempDir())

	runGit(t, envDir, "branch", "task/taken")

	exists, err := mgr.branchExists(ctx, "task/taken")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = mgr.branchExists(ctx, "task/not-taken")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestWorktreePathIsSandboxedUnderEnvAndBranchSlug(t *testing.T) {
	mgr := NewManager("Widgets Co", "/irrelevant", "/worktrees")
	path := mgr.worktreePath("task/Fix Login!")
	require.Equal(t, filepath.Join("/worktrees", "widgets-co", "task-fix-login"), path)
}

func TestDiffReportsUnstagedAndUntrackedChanges(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello\n"), 0o644))

	diff, err := GetDiff(ctx, dir, "")
	require.NoError(t, err)
	require.False(t, diff.IsClean())
	require.Contains(t, diff.Unstaged, "-base")
	require.Contains(t, diff.Unstaged, "+changed")
	require.Contains(t, diff.Unstaged, "new.txt")
	require.Contains(t, diff.Unstaged, "+hello")
}

func TestDiffIsCleanOnPristineCheckout(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	diff, err := GetDiff(ctx, dir, "")
	require.NoError(t, err)
	require.True(t, diff.IsClean())
}

func TestMergeReadinessFalseWhenWorktreeDirty(t *testing.T) {
	ctx := context.Background()
	envDir := initRepo(t)
	worktrees := t.TempDir()
	mgr := NewManager("widgets", envDir, worktrees)

	alloc, err := mgr.Allocate(ctx, nil, "Add feature", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(alloc.WorktreePath, "x"), []byte("dirty\n"), 0o644))

	tk := task.New(task.AgentKindClaude, "widgets", "Add feature", task.WorkspaceKindIsolated, alloc.WorktreePath)
	tk.BaseBranch = alloc.BaseBranch
	tk.MergeBranch = alloc.TargetBranch

	ok, reason := mgr.MergeReadiness(ctx, tk)
	require.False(t, ok)
	require.Contains(t, reason, "uncommitted")
}

// TestMergeBackConflictLeavesBothTreesUntouched exercises spec.md §8
// scenario 6: modifying the same file on both the task's branch and
// the base branch produces a conflict error carrying the merge tool's
// trimmed stdout, and afterward the environment repository has no
// in-progress merge.
func TestMergeBackConflictLeavesBothTreesUntouched(t *testing.T) {
	ctx := context.Background()
	envDir := initRepo(t)
	worktrees := t.TempDir()
	mgr := NewManager("widgets", envDir, worktrees)

	alloc, err := mgr.Allocate(ctx, nil, "Add feature", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(alloc.WorktreePath, "x"), []byte("task-side\n"), 0o644))
	runGit(t, alloc.WorktreePath, "add", ".")
	runGit(t, alloc.WorktreePath, "commit", "-q", "-m", "task change")

	require.NoError(t, os.WriteFile(filepath.Join(envDir, "x"), []byte("base-side\n"), 0o644))
	runGit(t, envDir, "add", ".")
	runGit(t, envDir, "commit", "-q", "-m", "base change")

	tk := task.New(task.AgentKindClaude, "widgets", "Add feature", task.WorkspaceKindIsolated, alloc.WorktreePath)
	tk.BaseBranch = alloc.BaseBranch
	tk.MergeBranch = alloc.TargetBranch

	_, err = mgr.MergeBack(ctx, tk)
	require.Error(t, err)

	statusOut, statusErr := mgr.gitOutput(ctx, "status", "--porcelain")
	require.NoError(t, statusErr)
	require.Empty(t, statusOut, "environment should be clean after an aborted merge")

	require.NoFileExists(t, filepath.Join(envDir, ".git", "MERGE_HEAD"))
}

func TestMergeReadinessRejectsNonIsolatedTask(t *testing.T) {
	ctx := context.Background()
	envDir := initRepo(t)
	mgr := NewManager("widgets", envDir, t.TempDir())

	tk := task.New(task.AgentKindClaude, "widgets", "Add feature", task.WorkspaceKindInplace, envDir)
	ok, reason := mgr.MergeReadiness(ctx, tk)
	require.False(t, ok)
	require.Contains(t, reason, "not isolated")
}
