// Package opencode adapts the `opencode run --format json` CLI to the
// supervisor's AgentHandle contract.
//
// opencode's own session identifiers are opaque strings, not UUIDs, so
// the rest of the system only ever sees a namespaced UUID v5 derived
// from that string (supervisor.DeriveOpencodeSessionUUID). Resuming a
// task therefore requires mapping the derived UUID back to the
// original string via the worktree-local supervisor.SessionMap before
// the opencode CLI will recognize it.
package opencode

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cklxx/slopcoordinator/internal/shared/errors"
	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/supervisor/subprocess"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// Adapter spawns and resumes opencode sessions.
type Adapter struct{}

// New returns an opencode Adapter.
func New() *Adapter { return &Adapter{} }

// Kind implements supervisor.Adapter.
func (a *Adapter) Kind() task.AgentKind { return task.AgentKindOpencode }

// Spawn implements supervisor.Spawner: `opencode run --format json
// --model M <prompt>`.
func (a *Adapter) Spawn(ctx context.Context, cfg supervisor.AgentConfig, workingDir, prompt string) (supervisor.AgentHandle, error) {
	args := baseArgs(cfg)
	args = append(args, prompt)
	return run(ctx, cfg, workingDir, args)
}

// Resume implements supervisor.Resumer. sessionID is the namespaced
// UUID the rest of the system tracks; it is translated back to the
// original opencode session string via the worktree's SessionMap
// before being passed to the CLI as `--session <orig>`.
func (a *Adapter) Resume(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, sessionID string, prompt string) (supervisor.AgentHandle, error) {
	derived, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, errors.Wrap(errors.KindBadRequest, err, fmt.Sprintf("opencode resume requires a valid session id, got %q", sessionID))
	}
	original, ok := supervisor.NewSessionMap(workingDir).Original(derived)
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("no opencode session mapping for %s in %s", sessionID, workingDir))
	}
	args := baseArgs(cfg)
	args = append(args, "--session", original)
	args = append(args, prompt)
	return run(ctx, cfg, workingDir, args)
}

func baseArgs(cfg supervisor.AgentConfig) []string {
	args := []string{"run", "--format", "json"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}

func run(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, args []string) (supervisor.AgentHandle, error) {
	command := cfg.Command
	if command == "" {
		command = "opencode"
	}
	proc := subprocess.New(subprocess.Config{Command: command, Args: args, WorkingDir: workingDir})
	if err := proc.Start(ctx); err != nil {
		msg := formatProcessError(command, err, proc.StderrTail())
		return nil, fmt.Errorf("%s", maybeAppendAuthHintOpencode(msg, proc.StderrTail()))
	}
	return supervisor.NewAdapterHandle(proc, supervisor.ParseFunc(func(line []byte) ([]*supervisor.AgentEvent, error) {
		return supervisor.ParseOpencode(line)
	})), nil
}

func formatProcessError(tool string, cause error, stderrTail string) string {
	return supervisor.FormatProcessError(tool, cause, stderrTail)
}

func maybeAppendAuthHintOpencode(message, stderrTail string) string {
	if strings.Contains(strings.ToLower(stderrTail), "api key") || strings.Contains(strings.ToLower(stderrTail), "unauthorized") {
		return message + " (hint: check your opencode provider credentials)"
	}
	return message
}
