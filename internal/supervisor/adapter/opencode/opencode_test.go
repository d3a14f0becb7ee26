package opencode

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	slopErrors "github.com/cklxx/slopcoordinator/internal/shared/errors"
	"github.com/cklxx/slopcoordinator/internal/supervisor"
)

func TestBaseArgsIncludesModelAndExtra(t *testing.T) {
	cfg := supervisor.AgentConfig{Command: "opencode", Model: "grok", ExtraArgs: []string{"--extra-flag"}}
	args := baseArgs(cfg)
	require.Contains(t, args, "run")
	require.Contains(t, args, "--format")
	require.Contains(t, args, "json")
	require.Contains(t, args, "--model")
	require.Contains(t, args, "grok")
	require.Contains(t, args, "--extra-flag")
}

func TestResume_RejectsNonUUIDSessionID(t *testing.T) {
	a := New()
	_, err := a.Resume(context.Background(), supervisor.AgentConfig{}, t.TempDir(), "not-a-uuid", "prompt")
	require.Error(t, err)
}

func TestResume_NotFoundWithoutSidecarMapping(t *testing.T) {
	a := New()
	dir := t.TempDir()
	derived := uuid.New()
	_, err := a.Resume(context.Background(), supervisor.AgentConfig{}, dir, derived.String(), "prompt")
	require.Error(t, err)
	require.Equal(t, slopErrors.KindNotFound, slopErrors.KindOf(err))
}

func TestSessionMap_TranslatesDerivedUUIDBackToOriginal(t *testing.T) {
	dir := t.TempDir()
	derived := uuid.New()
	require.NoError(t, supervisor.NewSessionMap(dir).Put(derived, "opencode-session-xyz"))

	original, ok := supervisor.NewSessionMap(dir).Original(derived)
	require.True(t, ok)
	require.Equal(t, "opencode-session-xyz", original)
}
