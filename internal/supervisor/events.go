package supervisor

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventType is the discriminator of the unified AgentEvent taxonomy
// every adapter's output is normalized into.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventTurnStarted    EventType = "turn_started"
	EventItemCompleted  EventType = "item_completed"
	EventTurnCompleted  EventType = "turn_completed"
	EventBackground     EventType = "background_event"
	EventPromptSent     EventType = "prompt_sent"
	EventUnknown        EventType = "unknown"
)

// CompletedItem is a completed reasoning block, assistant message, tool
// call, or tool output surfaced by ItemCompleted.
type CompletedItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Text      *string         `json:"text,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Arguments *string         `json:"arguments,omitempty"`
	CallID    *string         `json:"call_id,omitempty"`
	Output    *string         `json:"output,omitempty"`
	Extra     json.RawMessage `json:"extra,omitempty"`
}

func (i *CompletedItem) IsReasoning() bool    { return i.Type == "reasoning" }
func (i *CompletedItem) IsAgentMessage() bool { return i.Type == "agent_message" }
func (i *CompletedItem) IsToolCall() bool     { return i.Type == "tool_call" }
func (i *CompletedItem) IsToolOutput() bool   { return i.Type == "tool_output" }

// UsageStats is the optional token accounting attached to TurnCompleted.
type UsageStats struct {
	InputTokens       *uint64 `json:"input_tokens,omitempty"`
	CachedInputTokens *uint64 `json:"cached_input_tokens,omitempty"`
	OutputTokens      *uint64 `json:"output_tokens,omitempty"`
}

// AgentEvent is one normalized event in an adapter's output stream.
type AgentEvent struct {
	Type           EventType       `json:"type"`
	SessionID      *uuid.UUID      `json:"session_id,omitempty"`
	Item           *CompletedItem  `json:"item,omitempty"`
	Usage          *UsageStats     `json:"usage,omitempty"`
	BackgroundName *string         `json:"event,omitempty"`
	Extra          json.RawMessage `json:"extra,omitempty"`
	Prompt         string          `json:"prompt,omitempty"`
}

func unknownEvent() *AgentEvent { return &AgentEvent{Type: EventUnknown} }

func strp(s string) *string { return &s }

func toJSONRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// ---- codex ----

type codexRaw struct {
	Type      string         `json:"type"`
	SessionID *uuid.UUID     `json:"session_id"`
	ThreadID  *uuid.UUID     `json:"thread_id"`
	Item      *CompletedItem `json:"item"`
	Usage     *UsageStats    `json:"usage"`
	Event     *string        `json:"event"`
	Prompt    *string        `json:"prompt"`
}

// ParseCodex parses one JSONL line from `codex exec --json`. Each line
// yields exactly one AgentEvent, with codex's own type names mapped onto
// the unified taxonomy.
func ParseCodex(line []byte) (*AgentEvent, error) {
	var raw codexRaw
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse codex event: %w", err)
	}
	switch raw.Type {
	case "session.started", "thread.started":
		sid := raw.SessionID
		if sid == nil {
			sid = raw.ThreadID
		}
		if sid == nil {
			return unknownEvent(), nil
		}
		return &AgentEvent{Type: EventSessionStarted, SessionID: sid}, nil
	case "turn.started":
		return &AgentEvent{Type: EventTurnStarted}, nil
	case "item.completed":
		if raw.Item == nil {
			return unknownEvent(), nil
		}
		return &AgentEvent{Type: EventItemCompleted, Item: raw.Item}, nil
	case "turn.completed":
		return &AgentEvent{Type: EventTurnCompleted, Usage: raw.Usage}, nil
	case "background_event":
		return &AgentEvent{Type: EventBackground, BackgroundName: raw.Event}, nil
	case "prompt.sent":
		if raw.Prompt == nil {
			return unknownEvent(), nil
		}
		return &AgentEvent{Type: EventPromptSent, Prompt: *raw.Prompt}, nil
	default:
		return unknownEvent(), nil
	}
}

// ---- claude ----

type claudeRaw struct {
	Type          string          `json:"type"`
	SessionID     *uuid.UUID      `json:"session_id"`
	Message       json.RawMessage `json:"message"`
	ToolUseResult json.RawMessage `json:"tool_use_result"`
	Usage         *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens          *uint64 `json:"input_tokens"`
	CacheReadInputTokens *uint64 `json:"cache_read_input_tokens"`
	OutputTokens         *uint64 `json:"output_tokens"`
}

type claudeMessage struct {
	ID      string          `json:"id"`
	Content []claudeContent `json:"content"`
}

type claudeUserMessage struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Kind      string          `json:"type"`
	Text      *string         `json:"text"`
	ID        *string         `json:"id"`
	Name      *string         `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID *string         `json:"tool_use_id"`
	Content   *string         `json:"content"`
}

// ParseClaude parses one JSONL line from `claude --output-format
// stream-json`, which may expand into zero or more normalized events.
func ParseClaude(line []byte) ([]*AgentEvent, error) {
	var raw claudeRaw
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse claude event: %w", err)
	}
	switch raw.Type {
	case "system":
		if raw.SessionID != nil {
			return []*AgentEvent{{Type: EventSessionStarted, SessionID: raw.SessionID}}, nil
		}
		return []*AgentEvent{unknownEvent()}, nil
	case "assistant":
		var msg claudeMessage
		if len(raw.Message) > 0 {
			if err := json.Unmarshal(raw.Message, &msg); err != nil {
				return nil, fmt.Errorf("parse claude assistant message: %w", err)
			}
		}
		return claudeAssistantEvents(msg), nil
	case "user":
		var msg claudeUserMessage
		if len(raw.Message) > 0 {
			if err := json.Unmarshal(raw.Message, &msg); err != nil {
				return nil, fmt.Errorf("parse claude user message: %w", err)
			}
		}
		return claudeUserEvents(msg, raw.ToolUseResult), nil
	case "result":
		return []*AgentEvent{{Type: EventTurnCompleted, Usage: convertClaudeUsage(raw.Usage)}}, nil
	default:
		return []*AgentEvent{unknownEvent()}, nil
	}
}

func claudeAssistantEvents(msg claudeMessage) []*AgentEvent {
	var events []*AgentEvent
	text := ""
	for _, block := range msg.Content {
		switch block.Kind {
		case "text":
			if block.Text != nil {
				text += *block.Text
			}
		case "tool_use":
			id := msg.ID
			if block.ID != nil {
				id = *block.ID
			}
			events = append(events, &AgentEvent{
				Type: EventItemCompleted,
				Item: &CompletedItem{
					ID:        id,
					Type:      "tool_call",
					Name:      block.Name,
					Arguments: rawToStringPtr(block.Input),
					CallID:    block.ID,
				},
			})
		}
	}
	if text != "" {
		events = append(events, &AgentEvent{
			Type: EventItemCompleted,
			Item: &CompletedItem{ID: msg.ID, Type: "agent_message", Text: &text},
		})
	}
	if len(events) == 0 {
		events = append(events, unknownEvent())
	}
	return events
}

func claudeUserEvents(msg claudeUserMessage, toolUseResult json.RawMessage) []*AgentEvent {
	var events []*AgentEvent
	for _, block := range msg.Content {
		if block.Kind != "tool_result" {
			continue
		}
		id := "tool_result"
		if block.ToolUseID != nil {
			id = *block.ToolUseID
		}
		output := block.Content
		if output == nil {
			output = block.Text
		}
		events = append(events, &AgentEvent{
			Type: EventItemCompleted,
			Item: &CompletedItem{
				ID:     id,
				Type:   "tool_output",
				CallID: block.ToolUseID,
				Output: output,
				Extra:  toolUseResult,
			},
		})
	}
	if len(events) == 0 {
		events = append(events, unknownEvent())
	}
	return events
}

func convertClaudeUsage(u *claudeUsage) *UsageStats {
	if u == nil {
		return nil
	}
	return &UsageStats{InputTokens: u.InputTokens, CachedInputTokens: u.CacheReadInputTokens, OutputTokens: u.OutputTokens}
}

func rawToStringPtr(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// ---- cursor ----

type cursorRaw struct {
	Type      string          `json:"type"`
	SessionID *uuid.UUID      `json:"session_id"`
	Message   json.RawMessage `json:"message"`
	Text      *string         `json:"text"`
}

type cursorMessage struct {
	Content []claudeContent `json:"content"`
}

// ParseCursor parses one JSONL line from `cursor-agent --output-format
// stream-json`.
func ParseCursor(line []byte) ([]*AgentEvent, error) {
	var raw cursorRaw
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse cursor event: %w", err)
	}
	switch raw.Type {
	case "system":
		if raw.SessionID != nil {
			return []*AgentEvent{{Type: EventSessionStarted, SessionID: raw.SessionID}}, nil
		}
		return []*AgentEvent{unknownEvent()}, nil
	case "assistant":
		var msg cursorMessage
		if len(raw.Message) > 0 {
			if err := json.Unmarshal(raw.Message, &msg); err != nil {
				return nil, fmt.Errorf("parse cursor assistant message: %w", err)
			}
		}
		return cursorAssistantEvents(msg), nil
	case "user":
		return []*AgentEvent{unknownEvent()}, nil
	case "result":
		return []*AgentEvent{{Type: EventTurnCompleted}}, nil
	case "thinking":
		if raw.Text != nil {
			id := uuid.New().String()
			return []*AgentEvent{{
				Type: EventItemCompleted,
				Item: &CompletedItem{ID: id, Type: "reasoning", Text: raw.Text},
			}}, nil
		}
		return []*AgentEvent{unknownEvent()}, nil
	default:
		return []*AgentEvent{unknownEvent()}, nil
	}
}

func cursorAssistantEvents(msg cursorMessage) []*AgentEvent {
	var events []*AgentEvent
	text := ""
	for _, block := range msg.Content {
		switch block.Kind {
		case "text":
			if block.Text != nil {
				text += *block.Text
			}
		case "tool_use":
			id := uuid.New().String()
			if block.ID != nil {
				id = *block.ID
			}
			events = append(events, &AgentEvent{
				Type: EventItemCompleted,
				Item: &CompletedItem{
					ID:        id,
					Type:      "tool_call",
					Name:      block.Name,
					Arguments: rawToStringPtr(block.Input),
					CallID:    block.ID,
				},
			})
		}
	}
	if text != "" {
		events = append(events, &AgentEvent{
			Type: EventItemCompleted,
			Item: &CompletedItem{ID: uuid.New().String(), Type: "agent_message", Text: &text},
		})
	}
	if len(events) == 0 {
		events = append(events, unknownEvent())
	}
	return events
}

// ---- opencode ----

type opencodeRaw struct {
	Type      string          `json:"type"`
	SessionID *string         `json:"sessionID"`
	Part      json.RawMessage `json:"part"`
}

type opencodeTextPart struct {
	ID   *string `json:"id"`
	Text *string `json:"text"`
}

type opencodeToolPart struct {
	ID     *string            `json:"id"`
	CallID *string            `json:"callID"`
	Tool   *string            `json:"tool"`
	State  *opencodeToolState `json:"state"`
}

type opencodeToolState struct {
	Status *string         `json:"status"`
	Input  json.RawMessage `json:"input"`
	Output *string         `json:"output"`
}

type opencodeStepFinishPart struct {
	Tokens *opencodeTokens `json:"tokens"`
}

type opencodeTokens struct {
	Input     *uint64 `json:"input"`
	Output    *uint64 `json:"output"`
	Reasoning *uint64 `json:"reasoning"`
}

// ParseOpencode parses one JSONL line from `opencode run --format
// json`. step_start expands into a SessionStarted (derived UUID) plus
// a BackgroundEvent carrying the original opaque session string, which
// the caller uses to populate the sidecar session map.
func ParseOpencode(line []byte) ([]*AgentEvent, error) {
	var raw opencodeRaw
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse opencode event: %w", err)
	}
	switch raw.Type {
	case "step_start":
		if raw.SessionID != nil {
			derived := DeriveOpencodeSessionUUID(*raw.SessionID)
			extra := toJSONRaw(map[string]string{"session_string": *raw.SessionID})
			return []*AgentEvent{
				{Type: EventSessionStarted, SessionID: &derived},
				{Type: EventBackground, BackgroundName: strp("opencode_session"), Extra: extra},
			}, nil
		}
		return []*AgentEvent{{Type: EventTurnStarted}}, nil
	case "text":
		var part opencodeTextPart
		if len(raw.Part) > 0 {
			if err := json.Unmarshal(raw.Part, &part); err != nil {
				return nil, fmt.Errorf("parse opencode text part: %w", err)
			}
		}
		if part.Text != nil {
			id := uuid.New().String()
			if part.ID != nil {
				id = *part.ID
			}
			return []*AgentEvent{{Type: EventItemCompleted, Item: &CompletedItem{ID: id, Type: "agent_message", Text: part.Text}}}, nil
		}
		return []*AgentEvent{unknownEvent()}, nil
	case "tool_use":
		var part opencodeToolPart
		if len(raw.Part) > 0 {
			if err := json.Unmarshal(raw.Part, &part); err != nil {
				return nil, fmt.Errorf("parse opencode tool part: %w", err)
			}
		}
		id := uuid.New().String()
		if part.ID != nil {
			id = *part.ID
		}
		var arguments *string
		var output *string
		if part.State != nil {
			arguments = rawToStringPtr(part.State.Input)
			output = part.State.Output
		}
		return []*AgentEvent{{
			Type: EventItemCompleted,
			Item: &CompletedItem{ID: id, Type: "tool_call", Name: part.Tool, Arguments: arguments, CallID: part.CallID, Output: output},
		}}, nil
	case "step_finish":
		var part opencodeStepFinishPart
		if len(raw.Part) > 0 {
			if err := json.Unmarshal(raw.Part, &part); err != nil {
				return nil, fmt.Errorf("parse opencode step_finish part: %w", err)
			}
		}
		var usage *UsageStats
		if part.Tokens != nil {
			usage = &UsageStats{InputTokens: part.Tokens.Input, OutputTokens: part.Tokens.Output}
		}
		return []*AgentEvent{{Type: EventTurnCompleted, Usage: usage}}, nil
	default:
		return []*AgentEvent{unknownEvent()}, nil
	}
}

// DeriveOpencodeSessionUUID deterministically derives a namespaced
// UUIDv5 from opencode's opaque session string.
func DeriveOpencodeSessionUUID(sessionString string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionString))
}

// OpencodeSessionString extracts the original opaque session string
// carried on an opencode_session BackgroundEvent, if this is one.
func OpencodeSessionString(ev *AgentEvent) (uuid.UUID, string, bool) {
	if ev.Type != EventBackground || ev.BackgroundName == nil || *ev.BackgroundName != "opencode_session" {
		return uuid.UUID{}, "", false
	}
	var payload struct {
		SessionString string `json:"session_string"`
	}
	if err := json.Unmarshal(ev.Extra, &payload); err != nil || payload.SessionString == "" {
		return uuid.UUID{}, "", false
	}
	return DeriveOpencodeSessionUUID(payload.SessionString), payload.SessionString, true
}

// ---- gemini ----

type geminiRaw struct {
	Type       string          `json:"type"`
	SessionID  *uuid.UUID      `json:"session_id"`
	Role       *string         `json:"role"`
	Content    *string         `json:"content"`
	ToolName   *string         `json:"tool_name"`
	ToolID     *string         `json:"tool_id"`
	Parameters json.RawMessage `json:"parameters"`
	Status     *string         `json:"status"`
	Output     *string         `json:"output"`
	Stats      *geminiStats    `json:"stats"`
}

type geminiStats struct {
	InputTokens  *uint64 `json:"input_tokens"`
	OutputTokens *uint64 `json:"output_tokens"`
	Cached       *uint64 `json:"cached"`
}

// ParseGemini parses one JSONL line from `gemini --output-format
// stream-json`.
func ParseGemini(line []byte) ([]*AgentEvent, error) {
	var raw geminiRaw
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse gemini event: %w", err)
	}
	switch raw.Type {
	case "init":
		if raw.SessionID == nil {
			return []*AgentEvent{unknownEvent()}, nil
		}
		return []*AgentEvent{{Type: EventSessionStarted, SessionID: raw.SessionID}}, nil
	case "message":
		if raw.Role != nil && *raw.Role == "assistant" && raw.Content != nil {
			return []*AgentEvent{{Type: EventItemCompleted, Item: &CompletedItem{ID: uuid.New().String(), Type: "agent_message", Text: raw.Content}}}, nil
		}
		return []*AgentEvent{unknownEvent()}, nil
	case "tool_use":
		arguments := rawToStringPtr(raw.Parameters)
		return []*AgentEvent{{
			Type: EventItemCompleted,
			Item: &CompletedItem{ID: uuid.New().String(), Type: "tool_call", Name: raw.ToolName, Arguments: arguments, CallID: raw.ToolID},
		}}, nil
	case "tool_result":
		return []*AgentEvent{{
			Type: EventItemCompleted,
			Item: &CompletedItem{ID: uuid.New().String(), Type: "tool_output", CallID: raw.ToolID, Output: raw.Output},
		}}, nil
	case "result":
		var usage *UsageStats
		if raw.Stats != nil {
			usage = &UsageStats{InputTokens: raw.Stats.InputTokens, OutputTokens: raw.Stats.OutputTokens, CachedInputTokens: raw.Stats.Cached}
		}
		return []*AgentEvent{{Type: EventTurnCompleted, Usage: usage}}, nil
	default:
		return []*AgentEvent{unknownEvent()}, nil
	}
}
