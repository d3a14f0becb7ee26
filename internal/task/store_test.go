package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentRecoversCrashedRun(t *testing.T) {
	dir := t.TempDir()
	worktree := filepath.Join(dir, "wt")
	require.NoError(t, os.MkdirAll(worktree, 0o755))

	tk := New(AgentKindCodex, "env", "crash-test", WorkspaceKindIsolated, worktree)
	tk.StartRun("p")
	require.NoError(t, writeTaskFile(dir, taskFile{Tasks: []*Task{tk}}))

	store := NewStore(nil)
	require.NoError(t, store.LoadEnvironment("env", dir))

	loaded, ok := store.Get(tk.ID)
	require.True(t, ok)
	require.Equal(t, StatusFailed, loaded.Status)
	require.Len(t, loaded.History, 1)
	require.NotNil(t, loaded.History[0].FinishedAt)
	require.NotNil(t, loaded.History[0].Success)
	require.False(t, *loaded.History[0].Success)

	reread, err := readTaskFile(dir)
	require.NoError(t, err)
	require.Len(t, reread, 1)
	require.Equal(t, StatusFailed, reread[0].Status)
}

func TestLoadEnvironmentPrunesMissingWorktrees(t *testing.T) {
	dir := t.TempDir()

	var tasks []*Task
	var survivorID = ""
	for i, name := range []string{"a", "b", "c"} {
		wt := filepath.Join(dir, "wt-"+name)
		tk := New(AgentKindClaude, "env", name, WorkspaceKindIsolated, wt)
		tasks = append(tasks, tk)
		if i == 1 {
			require.NoError(t, os.MkdirAll(wt, 0o755))
			survivorID = tk.ID.String()
		}
	}
	require.NoError(t, writeTaskFile(dir, taskFile{Tasks: tasks}))

	store := NewStore(nil)
	require.NoError(t, store.LoadEnvironment("env", dir))

	list := store.ListByEnvironment("env")
	require.Len(t, list, 1)
	require.Equal(t, survivorID, list[0].ID.String())

	reread, err := readTaskFile(dir)
	require.NoError(t, err)
	require.Len(t, reread, 1)
}

func TestAtMostOneRunPerTask(t *testing.T) {
	dir := t.TempDir()
	worktree := filepath.Join(dir, "wt")
	require.NoError(t, os.MkdirAll(worktree, 0o755))

	store := NewStore(nil)
	store.envDirs["env"] = dir
	tk := New(AgentKindCursor, "env", "one-run", WorkspaceKindIsolated, worktree)
	require.NoError(t, store.Insert(tk))

	require.NoError(t, store.StartRun(tk.ID, "first"))

	err := store.StartRun(tk.ID, "second")
	require.Error(t, err)

	got, _ := store.Get(tk.ID)
	require.Len(t, got.History, 1)
	require.Equal(t, "first", got.History[0].Prompt)
}

func TestInterruptIsIdempotentWhenNotRunning(t *testing.T) {
	dir := t.TempDir()
	worktree := filepath.Join(dir, "wt")
	require.NoError(t, os.MkdirAll(worktree, 0o755))

	store := NewStore(nil)
	store.envDirs["env"] = dir
	tk := New(AgentKindOpencode, "env", "idle", WorkspaceKindIsolated, worktree)
	require.NoError(t, store.Insert(tk))

	err := store.InterruptRun(tk.ID)
	require.Error(t, err)

	got, _ := store.Get(tk.ID)
	require.Equal(t, StatusPending, got.Status)
	require.Empty(t, got.History)
}

func TestTasksYamlRoundTrip(t *testing.T) {
	dir := t.TempDir()
	worktree := filepath.Join(dir, "wt")
	require.NoError(t, os.MkdirAll(worktree, 0o755))

	tk := New(AgentKindGemini, "env", "roundtrip", WorkspaceKindIsolated, worktree)
	tk.StartRun("p")
	tk.CompleteRun(true)

	require.NoError(t, writeTaskFile(dir, taskFile{Tasks: []*Task{tk}}))
	loaded, err := readTaskFile(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, tk.ID, loaded[0].ID)
	require.Equal(t, tk.Status, loaded[0].Status)
	require.Equal(t, tk.History[0].Prompt, loaded[0].History[0].Prompt)
}

func TestLoadEnvironmentEmptyOrMissingFileLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)
	require.NoError(t, store.LoadEnvironment("env", dir))
	require.Empty(t, store.ListByEnvironment("env"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, taskFileName), []byte(""), 0o644))
	store2 := NewStore(nil)
	require.NoError(t, store2.LoadEnvironment("env", dir))
	require.Empty(t, store2.ListByEnvironment("env"))
}
