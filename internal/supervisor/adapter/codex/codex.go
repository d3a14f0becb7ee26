// Package codex adapts the `codex exec --json` CLI to the supervisor's
// AgentHandle contract.
package codex

import (
	"context"
	"fmt"
	"strings"

	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/supervisor/subprocess"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// Adapter spawns and resumes codex sessions.
type Adapter struct{}

// New returns a codex Adapter.
func New() *Adapter { return &Adapter{} }

// Kind implements supervisor.Adapter.
func (a *Adapter) Kind() task.AgentKind { return task.AgentKindCodex }

// Spawn implements supervisor.Spawner: `codex exec --json
// --dangerously-bypass-approvals-and-sandbox -C <dir> [-m M] <prompt>`.
func (a *Adapter) Spawn(ctx context.Context, cfg supervisor.AgentConfig, workingDir, prompt string) (supervisor.AgentHandle, error) {
	args := baseArgs(cfg, workingDir)
	args = append(args, prompt)
	return run(ctx, cfg, workingDir, args)
}

// Resume implements supervisor.Resumer: codex takes `resume <sid>` as
// a positional subcommand inserted before the prompt.
func (a *Adapter) Resume(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, sessionID string, prompt string) (supervisor.AgentHandle, error) {
	args := baseArgs(cfg, workingDir)
	args = append(args, "resume", sessionID, prompt)
	return run(ctx, cfg, workingDir, args)
}

func baseArgs(cfg supervisor.AgentConfig, workingDir string) []string {
	args := []string{"exec", "--json", "--dangerously-bypass-approvals-and-sandbox", "-C", workingDir}
	if cfg.Model != "" {
		args = append(args, "-m", cfg.Model)
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}

func run(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, args []string) (supervisor.AgentHandle, error) {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	proc := subprocess.New(subprocess.Config{Command: command, Args: args, WorkingDir: workingDir})
	if err := proc.Start(ctx); err != nil {
		msg := formatProcessError(command, err, proc.StderrTail())
		return nil, fmt.Errorf("%s", maybeAppendAuthHintCodex(msg, proc.StderrTail()))
	}
	return supervisor.NewAdapterHandle(proc, supervisor.ParseFunc(func(line []byte) ([]*supervisor.AgentEvent, error) {
		ev, err := supervisor.ParseCodex(line)
		if err != nil {
			return nil, err
		}
		return []*supervisor.AgentEvent{ev}, nil
	})), nil
}

func formatProcessError(tool string, cause error, stderrTail string) string {
	return supervisor.FormatProcessError(tool, cause, stderrTail)
}

// maybeAppendAuthHintCodex appends a human-readable hint when the
// stderr tail suggests a missing or invalid API key, so a caller
// reading the coordinator's Error envelope doesn't have to go spelunk
// in the host's logs.
func maybeAppendAuthHintCodex(message, stderrTail string) string {
	if strings.Contains(strings.ToLower(stderrTail), "api key") {
		return message + " (hint: check your codex API key / auth configuration)"
	}
	return message
}
