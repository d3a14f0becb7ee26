package claude

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cklxx/slopcoordinator/internal/supervisor"
)

type fakeExitError struct{ code int }

func (e fakeExitError) Error() string { return "exit status" }
func (e fakeExitError) ExitCode() int { return e.code }

func TestFormatProcessError_IncludesTailAndExit(t *testing.T) {
	msg := formatProcessError("claude", fakeExitError{code: 1}, "not logged in")
	require.Contains(t, msg, "stderr tail")
	require.Contains(t, msg, "exit=1")
}

func TestMaybeAppendAuthHintClaude(t *testing.T) {
	base := formatProcessError("claude", errors.New("boom"), "not logged in")
	hinted := maybeAppendAuthHintClaude(base, "not logged in")
	require.Contains(t, hinted, "claude login")
}

func TestMaybeAppendAuthHintClaude_NoHintWhenUnrelated(t *testing.T) {
	base := formatProcessError("claude", errors.New("boom"), "disk full")
	hinted := maybeAppendAuthHintClaude(base, "disk full")
	require.Equal(t, base, hinted)
}

func TestBaseArgsIncludesModelAndExtra(t *testing.T) {
	cfg := supervisor.AgentConfig{Command: "claude", Model: "opus", ExtraArgs: []string{"--extra-flag"}}
	args := baseArgs(cfg)
	require.Contains(t, args, "--print")
	require.Contains(t, args, "--output-format")
	require.Contains(t, args, "stream-json")
	require.Contains(t, args, "--dangerously-skip-permissions")
	require.Contains(t, args, "--model")
	require.Contains(t, args, "opus")
	require.Contains(t, args, "--extra-flag")
}

func TestBaseArgsOmitsModelWhenEmpty(t *testing.T) {
	args := baseArgs(supervisor.AgentConfig{})
	require.NotContains(t, args, "--model")
}
