// Package supervisor spawns assistant-process adapters, parses their
// line-delimited JSON output into a unified event taxonomy, and runs
// the per-task run loop that ties adapter events to the task store.
package supervisor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cklxx/slopcoordinator/internal/task"
)

// AgentErrorKind classifies a failure from an AgentHandle.
type AgentErrorKind string

const (
	AgentErrSpawn     AgentErrorKind = "spawn_error"
	AgentErrParse     AgentErrorKind = "parse_error"
	AgentErrProcess   AgentErrorKind = "process_error"
	AgentErrNoSession AgentErrorKind = "no_session_id"
)

// AgentError wraps a classified adapter failure.
type AgentError struct {
	Kind    AgentErrorKind
	Message string
	Cause   error
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Cause }

func newAgentError(kind AgentErrorKind, message string, cause error) *AgentError {
	return &AgentError{Kind: kind, Message: message, Cause: cause}
}

// AgentResult is what an adapter's Wait() reports about its exit.
type AgentResult struct {
	SessionID uuid.UUID
	Success   bool
	ExitCode  int
}

// AgentConfig carries per-adapter invocation settings: binary path,
// default model, and any extra arguments a deployment wants passed
// through on every spawn/resume.
type AgentConfig struct {
	Command   string
	Model     string
	ExtraArgs []string
}

// DefaultAgentConfig returns the documented default binary/model per
// adapter kind.
func DefaultAgentConfig(kind task.AgentKind) AgentConfig {
	switch kind {
	case task.AgentKindCodex:
		return AgentConfig{Command: "codex"}
	case task.AgentKindClaude:
		return AgentConfig{Command: "claude"}
	case task.AgentKindCursor:
		return AgentConfig{Command: "cursor-agent"}
	case task.AgentKindOpencode:
		return AgentConfig{Command: "opencode", Model: "litellm-guha-anderson/boa"}
	case task.AgentKindGemini:
		return AgentConfig{Command: "gemini"}
	default:
		return AgentConfig{Command: string(kind)}
	}
}

// AgentHandle is the uniform contract every adapter satisfies: a
// closed tagged variant with no shared state and no inheritance,
// dispatched only at spawn/resume.
type AgentHandle interface {
	// NextEvent returns the next parsed event, an error for a line
	// that failed to parse or a process fault (non-terminal — the
	// caller should keep reading), or (nil, nil, false) at EOF.
	NextEvent() (*AgentEvent, error, bool)
	// Wait blocks for process exit and reports the outcome. It is
	// always called exactly once per run, after NextEvent reports EOF
	// or after Kill, so the child is always reaped.
	Wait() (AgentResult, error)
	// Kill forcibly terminates the child. The only termination
	// mechanism; there is no cooperative stop signal.
	Kill()
	// SessionID returns the captured session id, if any has arrived.
	SessionID() *uuid.UUID
}

// Spawner starts a fresh AgentHandle for a new run.
type Spawner interface {
	Spawn(ctx context.Context, cfg AgentConfig, workingDir, prompt string) (AgentHandle, error)
}

// Resumer starts an AgentHandle that resumes a prior session.
type Resumer interface {
	Resume(ctx context.Context, cfg AgentConfig, workingDir string, sessionID string, prompt string) (AgentHandle, error)
}

// Adapter is the full per-kind capability set: spawn a new run or
// resume an existing session.
type Adapter interface {
	Spawner
	Resumer
	Kind() task.AgentKind
}

// Registry resolves an AgentKind to its Adapter implementation.
type Registry struct {
	adapters map[task.AgentKind]Adapter
}

// NewRegistry builds a registry from a set of adapters, keyed by their
// own Kind().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[task.AgentKind]Adapter{}}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Get returns the adapter for kind, or an AgentError if none is
// registered.
func (r *Registry) Get(kind task.AgentKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, newAgentError(AgentErrSpawn, fmt.Sprintf("no adapter registered for %s", kind), nil)
	}
	return a, nil
}
