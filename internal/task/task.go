// Package task owns the Task data model: the durable record of one
// assistant session, its workspace, and its run history.
package task

import (
	"time"

	"github.com/google/uuid"
)

// AgentKind names one of the closed set of assistant-process adapters.
type AgentKind string

const (
	AgentKindCodex    AgentKind = "codex"
	AgentKindClaude   AgentKind = "claude"
	AgentKindCursor   AgentKind = "cursor"
	AgentKindOpencode AgentKind = "opencode"
	AgentKindGemini   AgentKind = "gemini"
)

// WorkspaceKind distinguishes an isolated worktree from a task that runs
// directly inside the environment's own directory.
type WorkspaceKind string

const (
	WorkspaceKindIsolated WorkspaceKind = "isolated"
	WorkspaceKindInplace  WorkspaceKind = "inplace"
)

// Status is a Task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PromptRun is one prompt -> response cycle within a task. A run with
// FinishedAt == nil and the task's status == running is the signal for
// crash recovery: it was mid-flight when the host last exited.
type PromptRun struct {
	Prompt     string     `yaml:"prompt" json:"prompt"`
	StartedAt  time.Time  `yaml:"started_at" json:"started_at"`
	FinishedAt *time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
	Success    *bool      `yaml:"success,omitempty" json:"success,omitempty"`
}

// NewPromptRun starts a run record for prompt.
func NewPromptRun(prompt string) PromptRun {
	return PromptRun{Prompt: prompt, StartedAt: time.Now()}
}

// Finish closes the run in place, recording success and a finish time.
func (r *PromptRun) Finish(success bool) {
	now := time.Now()
	r.FinishedAt = &now
	r.Success = &success
}

// IsOpen reports whether this run has not yet finished.
func (r *PromptRun) IsOpen() bool {
	return r.FinishedAt == nil
}

// Task is the central entity: one durable assistant session.
type Task struct {
	ID            uuid.UUID     `yaml:"id" json:"id"`
	AgentKind     AgentKind     `yaml:"agent_kind" json:"agent_kind"`
	Environment   string        `yaml:"environment" json:"environment"`
	Name          string        `yaml:"name" json:"name"`
	WorkspaceKind WorkspaceKind `yaml:"workspace_kind" json:"workspace_kind"`
	BaseBranch    string        `yaml:"base_branch,omitempty" json:"base_branch,omitempty"`
	MergeBranch   string        `yaml:"merge_branch,omitempty" json:"merge_branch,omitempty"`
	WorktreePath  string        `yaml:"worktree_path" json:"worktree_path"`
	Status        Status        `yaml:"status" json:"status"`
	SessionID     *uuid.UUID    `yaml:"session_id,omitempty" json:"session_id,omitempty"`
	CreatedAt     time.Time     `yaml:"created_at" json:"created_at"`
	History       []PromptRun   `yaml:"history" json:"history"`
}

// New constructs a pending Task. name is truncated to 20 characters to
// satisfy the short-human-label invariant.
func New(kind AgentKind, environment, name string, workspaceKind WorkspaceKind, worktreePath string) *Task {
	if len(name) > 20 {
		name = name[:20]
	}
	return &Task{
		ID:            uuid.New(),
		AgentKind:     kind,
		Environment:   environment,
		Name:          name,
		WorkspaceKind: workspaceKind,
		WorktreePath:  worktreePath,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
}

// CanRun reports whether the task is in a state that accepts a new run:
// pending, completed, or failed, but never while already running.
func (t *Task) CanRun() bool {
	return t.Status == StatusPending || t.Status == StatusCompleted || t.Status == StatusFailed
}

// IsRunning reports whether the task currently has an open run.
func (t *Task) IsRunning() bool {
	return t.Status == StatusRunning
}

// StartRun transitions the task into running and appends a new open
// PromptRun. Callers must have already verified CanRun().
func (t *Task) StartRun(prompt string) {
	t.Status = StatusRunning
	t.History = append(t.History, NewPromptRun(prompt))
}

// CompleteRun closes the last PromptRun and sets the terminal status.
// It is a no-op on the history if there is no open run.
func (t *Task) CompleteRun(success bool) {
	if run := t.lastOpenRun(); run != nil {
		run.Finish(success)
	}
	if success {
		t.Status = StatusCompleted
	} else {
		t.Status = StatusFailed
	}
}

// LastPrompt returns the most recent run's prompt, or "" if history is
// empty.
func (t *Task) LastPrompt() string {
	if len(t.History) == 0 {
		return ""
	}
	return t.History[len(t.History)-1].Prompt
}

func (t *Task) lastOpenRun() *PromptRun {
	if len(t.History) == 0 {
		return nil
	}
	last := &t.History[len(t.History)-1]
	if last.IsOpen() {
		return last
	}
	return nil
}

// SetSessionID records the externally-issued session identifier
// captured from the first successful assistant run.
func (t *Task) SetSessionID(sid uuid.UUID) {
	t.SessionID = &sid
}
