// Package cursor adapts the `cursor-agent --print --output-format
// stream-json` CLI to the supervisor's AgentHandle contract.
package cursor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/supervisor/subprocess"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// Adapter spawns and resumes cursor-agent sessions.
type Adapter struct{}

// New returns a cursor Adapter.
func New() *Adapter { return &Adapter{} }

// Kind implements supervisor.Adapter.
func (a *Adapter) Kind() task.AgentKind { return task.AgentKindCursor }

// Spawn implements supervisor.Spawner: `cursor-agent --print
// --output-format stream-json --force [--model M] <prompt>`.
func (a *Adapter) Spawn(ctx context.Context, cfg supervisor.AgentConfig, workingDir, prompt string) (supervisor.AgentHandle, error) {
	args := baseArgs(cfg)
	args = append(args, prompt)
	return run(ctx, cfg, workingDir, args)
}

// Resume implements supervisor.Resumer: `--resume <sid>` before the prompt.
func (a *Adapter) Resume(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, sessionID string, prompt string) (supervisor.AgentHandle, error) {
	args := baseArgs(cfg)
	args = append(args, "--resume", sessionID, prompt)
	return run(ctx, cfg, workingDir, args)
}

func baseArgs(cfg supervisor.AgentConfig) []string {
	args := []string{"--print", "--output-format", "stream-json", "--force"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}

func run(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, args []string) (supervisor.AgentHandle, error) {
	command := cfg.Command
	if command == "" {
		command = "cursor-agent"
	}
	proc := subprocess.New(subprocess.Config{Command: command, Args: args, WorkingDir: workingDir})
	if err := proc.Start(ctx); err != nil {
		msg := formatProcessError(command, err, proc.StderrTail())
		return nil, fmt.Errorf("%s", maybeAppendAuthHintCursor(msg, proc.StderrTail()))
	}
	return supervisor.NewAdapterHandle(proc, supervisor.ParseFunc(func(line []byte) ([]*supervisor.AgentEvent, error) {
		return supervisor.ParseCursor(line)
	})), nil
}

func formatProcessError(tool string, cause error, stderrTail string) string {
	return supervisor.FormatProcessError(tool, cause, stderrTail)
}

func maybeAppendAuthHintCursor(message, stderrTail string) string {
	if strings.Contains(strings.ToLower(stderrTail), "not authenticated") || strings.Contains(strings.ToLower(stderrTail), "api key") {
		return message + " (hint: check your cursor-agent login / auth configuration)"
	}
	return message
}
