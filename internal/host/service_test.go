package host

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cklxx/slopcoordinator/internal/rpc"
	"github.com/cklxx/slopcoordinator/internal/shared/config"
	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/task"
	"github.com/cklxx/slopcoordinator/internal/workspace"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.EnvironmentConfig{WorktreesDirectory: dir}
	store := task.NewStore(nil)
	adapters := supervisor.NewRegistry()
	return NewService(cfg, store, adapters, map[string]*workspace.Manager{}, nil)
}

func TestCreateEnvironmentRegistersNewManager(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.createEnvironment(context.Background(), "widgets")
	require.NoError(t, err)
	require.Equal(t, rpc.ResponseEnvironments, resp.Kind)
	require.Len(t, resp.Environments, 1)
	require.Equal(t, "widgets", resp.Environments[0].Name)
	require.DirExists(t, filepath.Join(resp.Environments[0].Directory, ".git"))

	_, ok := svc.cfg.Find("widgets")
	require.True(t, ok, "bootstrapper should register the new environment on cfg")

	mgr, err := svc.manager("widgets")
	require.NoError(t, err)
	require.Equal(t, resp.Environments[0].Directory, mgr.EnvDir())
}

func TestCreateEnvironmentRejectsDuplicateName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.createEnvironment(context.Background(), "widgets")
	require.NoError(t, err)

	_, err = svc.createEnvironment(context.Background(), "widgets")
	require.Error(t, err)
}

func TestCreateEnvironmentRejectsEmptyName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.createEnvironment(context.Background(), "")
	require.Error(t, err)
}

func TestManagerLookupMissesUnknownEnvironment(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.manager("does-not-exist")
	require.Error(t, err)
}
