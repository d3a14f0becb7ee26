// Package gemini adapts the `gemini --output-format stream-json` CLI
// to the supervisor's AgentHandle contract.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/supervisor/subprocess"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// Adapter spawns and resumes gemini sessions.
type Adapter struct{}

// New returns a gemini Adapter.
func New() *Adapter { return &Adapter{} }

// Kind implements supervisor.Adapter.
func (a *Adapter) Kind() task.AgentKind { return task.AgentKindGemini }

// Spawn implements supervisor.Spawner: `gemini --output-format
// stream-json --approval-mode yolo [--model M] <prompt>`.
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
	args := []string{"--output-format", "stream-json", "--approval-mode", "yolo"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}

func run(ctx context.Context, cfg supervisor.AgentConfig, workingDir string, args []string) (supervisor.AgentHandle, error) {
	command := cfg.Command
	if command == "" {
		command = "gemini"
	}
	proc := subprocess.New(subprocess.Config{Command: command, Args: args, WorkingDir: workingDir})
	if err := proc.Start(ctx); err != nil {
		msg := formatProcessError(command, err, proc.StderrTail())
		return nil, fmt.Errorf("%s", maybeAppendAuthHintGemini(msg, proc.StderrTail()))
	}
	return supervisor.NewAdapterHandle(proc, supervisor.ParseFunc(func(line []byte) ([]*supervisor.AgentEvent, error) {
		return supervisor.ParseGemini(line)
	})), nil
}

func formatProcessError(tool string, cause error, stderrTail string) string {
	return supervisor.FormatProcessError(tool, cause, stderrTail)
}

func maybeAppendAuthHintGemini(message, stderrTail string) string {
	if strings.Contains(strings.ToLower(stderrTail), "api key") || strings.Contains(strings.ToLower(stderrTail), "unauthenticated") {
		return message + " (hint: check your gemini API key / auth configuration)"
	}
	return message
}
