// Package rpc defines the coordinator<->host wire protocol: a single
// tagged-union AgentEnvelope carried one-per-message over a persistent
// websocket, plus the request/response payload taxonomy it wraps.
package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// EnvelopeType is the discriminator field ("type") of every AgentEnvelope.
type EnvelopeType string

const (
	EnvelopeHello     EnvelopeType = "hello"
	EnvelopeRequest   EnvelopeType = "request"
	EnvelopeResponse  EnvelopeType = "response"
	EnvelopeError     EnvelopeType = "error"
	EnvelopeTaskEvent EnvelopeType = "task_event"
)

// Envelope is the single message type carried over the coordinator<->
// host websocket, one per frame. Exactly one of the payload fields is
// populated, selected by Type.
type Envelope struct {
	Type EnvelopeType `json:"type"`

	// Hello
	Hostname    string  `json:"hostname,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`

	// Request / Response / Error share RequestID for correlation.
	RequestID string    `json:"request_id,omitempty"`
	Request   *Request  `json:"request,omitempty"`
	Response  *Response `json:"response,omitempty"`
	Status    int       `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`

	// TaskEvent
	TaskID *uuid.UUID             `json:"task_id,omitempty"`
	Event  *supervisor.AgentEvent `json:"event,omitempty"`
}

// Hello builds the host's opening handshake envelope.
func Hello(hostname string, displayName *string) Envelope {
	return Envelope{Type: EnvelopeHello, Hostname: hostname, DisplayName: displayName}
}

// NewRequest builds a coordinator->host request envelope.
func NewRequest(requestID string, req Request) Envelope {
	return Envelope{Type: EnvelopeRequest, RequestID: requestID, Request: &req}
}

// NewResponse builds a host->coordinator success envelope.
func NewResponse(requestID string, resp Response) Envelope {
	return Envelope{Type: EnvelopeResponse, RequestID: requestID, Response: &resp}
}

// NewError builds a host->coordinator failure envelope, status mirroring
// HTTP status-code semantics per the shared error-kind taxonomy.
func NewError(requestID string, status int, message string) Envelope {
	return Envelope{Type: EnvelopeError, RequestID: requestID, Status: status, Error: message}
}

// NewTaskEvent builds an unsolicited host->coordinator event push.
func NewTaskEvent(taskID uuid.UUID, event *supervisor.AgentEvent) Envelope {
	return Envelope{Type: EnvelopeTaskEvent, TaskID: &taskID, Event: event}
}

// RequestKind is the discriminator field of a Request payload.
type RequestKind string

const (
	RequestListEnvironments  RequestKind = "list_environments"
	RequestCreateEnvironment RequestKind = "create_environment"
	RequestListBranches      RequestKind = "list_branches"
	RequestListTasks         RequestKind = "list_tasks"
	RequestGetTask           RequestKind = "get_task"
	RequestCreateTask        RequestKind = "create_task"
	RequestSendPrompt        RequestKind = "send_prompt"
	RequestGetTaskOutput     RequestKind = "get_task_output"
	RequestGetTaskDiff       RequestKind = "get_task_diff"
	RequestInterruptTask     RequestKind = "interrupt_task"
	RequestMergeTask         RequestKind = "merge_task"
	RequestGetMergeReadiness RequestKind = "get_merge_readiness"
	RequestArchiveTask       RequestKind = "archive_task"
	RequestDeleteTask        RequestKind = "delete_task"
)

// Request is the full coordinator->host request payload taxonomy. Only
// the fields relevant to Kind are populated.
type Request struct {
	Kind RequestKind `json:"type"`

	Name        string             `json:"name,omitempty"`
	Environment string             `json:"environment,omitempty"`
	TaskID      *uuid.UUID         `json:"task_id,omitempty"`
	Prompt      string             `json:"prompt,omitempty"`
	Force       bool               `json:"force,omitempty"`
	CreateTask  *CreateTaskRequest `json:"request,omitempty"`
}

// CreateTaskRequest mirrors the reference implementation's
// AgentCreateTaskRequest: the payload for RequestCreateTask.
type CreateTaskRequest struct {
	Environment string          `json:"environment"`
	Name        *string         `json:"name,omitempty"`
	UseWorktree bool            `json:"use_worktree"`
	WebSearch   bool            `json:"web_search"`
	Prompt      string          `json:"prompt"`
	Agent       *task.AgentKind `json:"agent,omitempty"`
}

// ResponseKind is the discriminator field of a Response payload.
type ResponseKind string

const (
	ResponseEnvironments   ResponseKind = "environments"
	ResponseEnvironment    ResponseKind = "environment"
	ResponseBranches       ResponseKind = "branches"
	ResponseTasks          ResponseKind = "tasks"
	ResponseTask           ResponseKind = "task"
	ResponseCreatedTask    ResponseKind = "created_task"
	ResponseTaskOutput     ResponseKind = "task_output"
	ResponseTaskDiff       ResponseKind = "task_diff"
	ResponseMergeResult    ResponseKind = "merge_result"
	ResponseMergeReadiness ResponseKind = "merge_readiness"
	ResponseArchiveResult  ResponseKind = "archive_result"
	ResponseDeleteResult   ResponseKind = "delete_result"
	ResponseAck            ResponseKind = "ack"
)

// Response is the full host->coordinator response payload taxonomy.
type Response struct {
	Kind ResponseKind `json:"type"`

	Environments []EnvironmentInfo        `json:"environments,omitempty"`
	Environment  *EnvironmentInfo         `json:"environment,omitempty"`
	Branches     []string                 `json:"branches,omitempty"`
	Tasks        []*task.Task             `json:"tasks,omitempty"`
	Task         *task.Task               `json:"task,omitempty"`
	TaskID       *uuid.UUID               `json:"id,omitempty"`
	WorktreePath string                   `json:"worktree_path,omitempty"`
	Events       []*supervisor.AgentEvent `json:"events,omitempty"`
	Staged       string                   `json:"staged,omitempty"`
	Unstaged     string                   `json:"unstaged,omitempty"`
	Status       string                   `json:"status,omitempty"`
	Message      string                   `json:"message,omitempty"`
	CanMerge     bool                     `json:"can_merge,omitempty"`
	Reason       *string                  `json:"reason,omitempty"`
}

// EnvironmentInfo is the wire shape of one configured environment.
type EnvironmentInfo struct {
	Name      string `json:"name"`
	Directory string `json:"directory"`
}

// Ack is the trivial success response for fire-and-forget requests
// (send prompt, interrupt) that carry no other payload.
func Ack() Response { return Response{Kind: ResponseAck} }

// Marshal serializes an Envelope to a single JSON line.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Unmarshal parses one JSON line into an Envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return e, nil
}
