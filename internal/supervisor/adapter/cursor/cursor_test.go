package cursor

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
	msg := formatProcessError("cursor-agent", fakeExitError{code: 2}, "not authenticated")
	require.Contains(t, msg, "stderr tail")
	require.Contains(t, msg, "exit=2")
}

func TestMaybeAppendAuthHintCursor(t *testing.T) {
	base := formatProcessError("cursor-agent", errors.New("boom"), "not authenticated")
	hinted := maybeAppendAuthHintCursor(base, "not authenticated")
	require.Contains(t, hinted, "cursor-agent login")
}

func TestMaybeAppendAuthHintCursor_NoHintWhenUnrelated(t *testing.T) {
	base := formatProcessError("cursor-agent", errors.New("boom"), "disk full")
	hinted := maybeAppendAuthHintCursor(base, "disk full")
	require.Equal(t, base, hinted)
}

func TestBaseArgsIncludesModelAndExtra(t *testing.T) {
	cfg := supervisor.AgentConfig{Command: "cursor-agent", Model: "fast", ExtraArgs: []string{"--extra-flag"}}
	args := baseArgs(cfg)
	require.Contains(t, args, "--print")
	require.Contains(t, args, "--force")
	require.Contains(t, args, "--model")
	require.Contains(t, args, "fast")
	require.Contains(t, args, "--extra-flag")
}
