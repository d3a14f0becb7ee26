package environment

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cklxx/slopcoordinator/internal/shared/config"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
}

func TestValidateAcceptsConfiguredGitRepositories(t *testing.T) {
	worktrees := t.TempDir()
	repoDir := t.TempDir()
	initGitRepo(t, repoDir)

	cfg := &config.EnvironmentConfig{
		WorktreesDirectory: worktrees,
		Environments:       []config.Environment{{Name: "widgets", Directory: repoDir}},
	}
	b := New(cfg)
	require.NoError(t, b.Validate(context.Background()))
}

func TestValidateRejectsMissingWorktreesDirectory(t *testing.T) {
	cfg := &config.EnvironmentConfig{WorktreesDirectory: filepath.Join(t.TempDir(), "does-not-exist")}
	b := New(cfg)
	require.Error(t, b.Validate(context.Background()))
}

func TestValidateRejectsNonGitEnvironmentDirectory(t *testing.T) {
	worktrees := t.TempDir()
	notARepo := t.TempDir()

	cfg := &config.EnvironmentConfig{
		WorktreesDirectory: worktrees,
		Environments:       []config.Environment{{Name: "widgets", Directory: notARepo}},
	}
	b := New(cfg)
	require.Error(t, b.Validate(context.Background()))
}

func TestCreateInitializesRepositoryAndRegistersEnvironment(t *testing.T) {
	worktrees := t.TempDir()
	cfg := &config.EnvironmentConfig{WorktreesDirectory: worktrees}
	b := New(cfg)

	env, err := b.Create(context.Background(), "New Project")
	require.NoError(t, err)
	require.Equal(t, "New Project", env.Name)
	require.DirExists(t, filepath.Join(env.Directory, ".git"))

	found, ok := cfg.Find("New Project")
	require.True(t, ok)
	require.Equal(t, env.Directory, found.Directory)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	worktrees := t.TempDir()
	cfg := &config.EnvironmentConfig{WorktreesDirectory: worktrees}
	b := New(cfg)

	_, err := b.Create(context.Background(), "widgets")
	require.NoError(t, err)

	_, err = b.Create(context.Background(), "widgets")
	require.Error(t, err)
}

func TestSanitizeEnvNameCollapsesUnsafeCharacters(t *testing.T) {
	require.Equal(t, "my-project", sanitizeEnvName("My Project"))
	require.Equal(t, "env", sanitizeEnvName(""))
}
