package gemini

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
	msg := formatProcessError("gemini", fakeExitError{code: 4}, "unauthenticated")
	require.Contains(t, msg, "stderr tail")
	require.Contains(t, msg, "exit=4")
}

func TestMaybeAppendAuthHintGemini(t *testing.T) {
	base := formatProcessError("gemini", errors.New("boom"), "unauthenticated")
	hinted := maybeAppendAuthHintGemini(base, "unauthenticated")
	require.Contains(t, hinted, "gemini API key")
}

func TestBaseArgsIncludesModelAndExtra(t *testing.T) {
	cfg := supervisor.AgentConfig{Command: "gemini", Model: "flash", ExtraArgs: []string{"--extra-flag"}}
	args := baseArgs(cfg)
	require.Contains(t, args, "--output-format")
	require.Contains(t, args, "stream-json")
	require.Contains(t, args, "--approval-mode")
	require.Contains(t, args, "yolo")
	require.Contains(t, args, "--model")
	require.Contains(t, args, "flash")
	require.Contains(t, args, "--extra-flag")
}
