package codex

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
	msg := formatProcessError("codex", fakeExitError{code: 3}, "api key missing")
	require.Contains(t, msg, "stderr tail")
	require.Contains(t, msg, "exit=3")
}

func TestMaybeAppendAuthHintCodex(t *testing.T) {
	base := formatProcessError("codex", errors.New("boom"), "API key missing")
	hinted := maybeAppendAuthHintCodex(base, "API key missing")
	require.Contains(t, hinted, "codex API key")
}

func TestBaseArgsIncludesModelAndExtra(t *testing.T) {
	cfg := supervisor.AgentConfig{Command: "codex", Model: "o3", ExtraArgs: []string{"--extra-flag"}}
	args := baseArgs(cfg, "/work/dir")
	require.Contains(t, args, "exec")
	require.Contains(t, args, "--dangerously-bypass-approvals-and-sandbox")
	require.Contains(t, args, "-C")
	require.Contains(t, args, "/work/dir")
	require.Contains(t, args, "-m")
	require.Contains(t, args, "o3")
	require.Contains(t, args, "--extra-flag")
}
