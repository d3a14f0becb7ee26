package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const threadStartedJSON = `{"type":"thread.started","thread_id":"019b8211-cfdc-7b42-aba2-f10cf3236c70"}`
const turnStartedJSON = `{"type":"turn.started"}`
const itemCompletedReasoningJSON = `{"type":"item.completed","item":{"id":"item_0","type":"reasoning","text":"thinking about the task"}}`
const itemCompletedMessageJSON = `{"type":"item.completed","item":{"id":"item_1","type":"agent_message","text":"OK"}}`
const turnCompletedJSON = `{"type":"turn.completed","usage":{"input_tokens":4079,"cached_input_tokens":3200,"output_tokens":7}}`

func TestParseCodexSessionStarted(t *testing.T) {
	ev, err := ParseCodex([]byte(threadStartedJSON))
	require.NoError(t, err)
	require.Equal(t, EventSessionStarted, ev.Type)
	require.Equal(t, "019b8211-cfdc-7b42-aba2-f10cf3236c70", ev.SessionID.String())
}

func TestParseCodexTurnStarted(t *testing.T) {
	ev, err := ParseCodex([]byte(turnStartedJSON))
	require.NoError(t, err)
	require.Equal(t, EventTurnStarted, ev.Type)
}

func TestParseCodexItemCompletedReasoning(t *testing.T) {
	ev, err := ParseCodex([]byte(itemCompletedReasoningJSON))
	require.NoError(t, err)
	require.Equal(t, EventItemCompleted, ev.Type)
	require.True(t, ev.Item.IsReasoning())
	require.Equal(t, "item_0", ev.Item.ID)
}

func TestParseCodexItemCompletedMessage(t *testing.T) {
	ev, err := ParseCodex([]byte(itemCompletedMessageJSON))
	require.NoError(t, err)
	require.True(t, ev.Item.IsAgentMessage())
	require.Equal(t, "OK", *ev.Item.Text)
}

func TestParseCodexTurnCompleted(t *testing.T) {
	ev, err := ParseCodex([]byte(turnCompletedJSON))
	require.NoError(t, err)
	require.Equal(t, EventTurnCompleted, ev.Type)
	require.EqualValues(t, 4079, *ev.Usage.InputTokens)
	require.EqualValues(t, 7, *ev.Usage.OutputTokens)
}

func TestParseCodexUnknownEventType(t *testing.T) {
	ev, err := ParseCodex([]byte(`{"type":"some.future.event","data":{}}`))
	require.NoError(t, err)
	require.Equal(t, EventUnknown, ev.Type)
}

func TestParseCodexMalformedJSONReturnsError(t *testing.T) {
	_, err := ParseCodex([]byte(`{not json`))
	require.Error(t, err)
}

func TestParseClaudeSystem(t *testing.T) {
	events, err := ParseClaude([]byte(`{"type":"system","subtype":"init","session_id":"6c0b0f60-d9b0-4ee7-9f12-6de09fbfc6d5"}`))
	require.NoError(t, err)
	require.Equal(t, EventSessionStarted, events[0].Type)
}

func TestParseClaudeAssistantMessage(t *testing.T) {
	events, err := ParseClaude([]byte(`{"type":"assistant","message":{"id":"msg_1","content":[{"type":"text","text":"Hi"}]}}`))
	require.NoError(t, err)
	require.Equal(t, "msg_1", events[0].Item.ID)
	require.Equal(t, "agent_message", events[0].Item.Type)
	require.Equal(t, "Hi", *events[0].Item.Text)
}

func TestParseClaudeToolCall(t *testing.T) {
	events, err := ParseClaude([]byte(`{"type":"assistant","message":{"id":"msg_tool","content":[{"type":"tool_use","id":"toolu_1","name":"Bash","input":{"command":"ls"}}]}}`))
	require.NoError(t, err)
	require.Equal(t, "tool_call", events[0].Item.Type)
	require.Equal(t, "toolu_1", *events[0].Item.CallID)
	require.Equal(t, "Bash", *events[0].Item.Name)
}

func TestParseClaudeToolResult(t *testing.T) {
	events, err := ParseClaude([]byte(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"ok","is_error":false}]},"tool_use_result":{"stdout":"ok","stderr":""}}`))
	require.NoError(t, err)
	require.Equal(t, "tool_output", events[0].Item.Type)
	require.Equal(t, "toolu_1", *events[0].Item.CallID)
	require.Equal(t, "ok", *events[0].Item.Output)
}

func TestParseClaudeResultUsage(t *testing.T) {
	events, err := ParseClaude([]byte(`{"type":"result","usage":{"input_tokens":3,"cache_read_input_tokens":10,"output_tokens":5}}`))
	require.NoError(t, err)
	require.Equal(t, EventTurnCompleted, events[0].Type)
	require.EqualValues(t, 3, *events[0].Usage.InputTokens)
	require.EqualValues(t, 10, *events[0].Usage.CachedInputTokens)
	require.EqualValues(t, 5, *events[0].Usage.OutputTokens)
}

func TestParseCursorSystem(t *testing.T) {
	events, err := ParseCursor([]byte(`{"type":"system","subtype":"init","session_id":"6c0b0f60-d9b0-4ee7-9f12-6de09fbfc6d5"}`))
	require.NoError(t, err)
	require.Equal(t, EventSessionStarted, events[0].Type)
}

func TestParseCursorThinking(t *testing.T) {
	events, err := ParseCursor([]byte(`{"type":"thinking","subtype":"delta","text":"considering options"}`))
	require.NoError(t, err)
	require.True(t, events[0].Item.IsReasoning())
	require.Equal(t, "considering options", *events[0].Item.Text)
}

func TestParseCursorResult(t *testing.T) {
	events, err := ParseCursor([]byte(`{"type":"result","session_id":"6c0b0f60-d9b0-4ee7-9f12-6de09fbfc6d5","is_error":false}`))
	require.NoError(t, err)
	require.Equal(t, EventTurnCompleted, events[0].Type)
}

const opencodeStepStartJSON = `{"type":"step_start","timestamp":1767609902893,"sessionID":"ses_4723d5c64ffeo3VMtIbToaB7GI","part":{"id":"prt_test","sessionID":"ses_4723d5c64ffeo3VMtIbToaB7GI","messageID":"msg_test","type":"step-start"}}`
const opencodeTextJSON = `{"type":"text","timestamp":1767609902907,"sessionID":"ses_4723d5c64ffeo3VMtIbToaB7GI","part":{"id":"prt_text","sessionID":"ses_4723d5c64ffeo3VMtIbToaB7GI","messageID":"msg_text","type":"text","text":"hello"}}`
const opencodeToolUseJSON = `{"type":"tool_use","timestamp":1767609910770,"sessionID":"ses_4723d3e62ffeHCDksgr4fRpmzP","part":{"id":"prt_tool","sessionID":"ses_4723d3e62ffeHCDksgr4fRpmzP","messageID":"msg_tool","type":"tool","callID":"chatcmpl-tool-123","tool":"write","state":{"status":"completed","input":{"content":"hello world","filePath":"/tmp/test.txt"},"output":""}}}`
const opencodeStepFinishJSON = `{"type":"step_finish","timestamp":1767609902907,"sessionID":"ses_4723d5c64ffeo3VMtIbToaB7GI","part":{"id":"prt_finish","sessionID":"ses_4723d5c64ffeo3VMtIbToaB7GI","messageID":"msg_finish","type":"step-finish","reason":"stop","cost":0,"tokens":{"input":10176,"output":2,"reasoning":0}}}`

func TestParseOpencodeStepStart(t *testing.T) {
	events, err := ParseOpencode([]byte(opencodeStepStartJSON))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, EventSessionStarted, events[0].Type)
	expected := DeriveOpencodeSessionUUID("ses_4723d5c64ffeo3VMtIbToaB7GI")
	require.Equal(t, expected, *events[0].SessionID)

	derivedUUID, sessionStr, ok := OpencodeSessionString(events[1])
	require.True(t, ok)
	require.Equal(t, "ses_4723d5c64ffeo3VMtIbToaB7GI", sessionStr)
	require.Equal(t, expected, derivedUUID)
}

func TestParseOpencodeText(t *testing.T) {
	events, err := ParseOpencode([]byte(opencodeTextJSON))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "agent_message", events[0].Item.Type)
	require.Equal(t, "hello", *events[0].Item.Text)
}

func TestParseOpencodeToolUse(t *testing.T) {
	events, err := ParseOpencode([]byte(opencodeToolUseJSON))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "tool_call", events[0].Item.Type)
	require.Equal(t, "write", *events[0].Item.Name)
	require.Equal(t, "chatcmpl-tool-123", *events[0].Item.CallID)
	require.NotNil(t, events[0].Item.Arguments)
}

func TestParseOpencodeStepFinish(t *testing.T) {
	events, err := ParseOpencode([]byte(opencodeStepFinishJSON))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventTurnCompleted, events[0].Type)
	require.EqualValues(t, 10176, *events[0].Usage.InputTokens)
	require.EqualValues(t, 2, *events[0].Usage.OutputTokens)
}

func TestDeriveOpencodeSessionUUIDDeterministic(t *testing.T) {
	a := DeriveOpencodeSessionUUID("ses_abc")
	b := DeriveOpencodeSessionUUID("ses_abc")
	c := DeriveOpencodeSessionUUID("ses_xyz")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

const geminiInitJSON = `{"type":"init","timestamp":"2026-01-07T02:18:58.980Z","session_id":"219b0367-780a-4ea0-8ebb-875d740e8fe2","model":"auto-gemini-3"}`
const geminiMessageJSON = `{"type":"message","timestamp":"2026-01-07T02:19:02.137Z","role":"assistant","content":"I will execute the command.","delta":true}`
const geminiToolUseJSON = `{"type":"tool_use","timestamp":"2026-01-07T02:19:02.239Z","tool_name":"run_shell_command","tool_id":"call_123","parameters":{"command":"echo hello"}}`
const geminiToolResultJSON = `{"type":"tool_result","timestamp":"2026-01-07T02:19:02.263Z","tool_id":"call_123","status":"success","output":"hello"}`
const geminiResultJSON = `{"type":"result","timestamp":"2026-01-07T02:21:30.824Z","status":"success","stats":{"input_tokens":100,"output_tokens":50,"cached":20}}`

func TestParseGeminiInit(t *testing.T) {
	events, err := ParseGemini([]byte(geminiInitJSON))
	require.NoError(t, err)
	require.Equal(t, EventSessionStarted, events[0].Type)
	require.Equal(t, "219b0367-780a-4ea0-8ebb-875d740e8fe2", events[0].SessionID.String())
}

func TestParseGeminiMessage(t *testing.T) {
	events, err := ParseGemini([]byte(geminiMessageJSON))
	require.NoError(t, err)
	require.Equal(t, "agent_message", events[0].Item.Type)
	require.Equal(t, "I will execute the command.", *events[0].Item.Text)
}

func TestParseGeminiToolUse(t *testing.T) {
	events, err := ParseGemini([]byte(geminiToolUseJSON))
	require.NoError(t, err)
	require.Equal(t, "tool_call", events[0].Item.Type)
	require.Equal(t, "run_shell_command", *events[0].Item.Name)
	require.Equal(t, "call_123", *events[0].Item.CallID)
}

func TestParseGeminiToolResult(t *testing.T) {
	events, err := ParseGemini([]byte(geminiToolResultJSON))
	require.NoError(t, err)
	require.Equal(t, "tool_output", events[0].Item.Type)
	require.Equal(t, "hello", *events[0].Item.Output)
}

func TestParseGeminiResult(t *testing.T) {
	events, err := ParseGemini([]byte(geminiResultJSON))
	require.NoError(t, err)
	require.Equal(t, EventTurnCompleted, events[0].Type)
	require.EqualValues(t, 100, *events[0].Usage.InputTokens)
	require.EqualValues(t, 50, *events[0].Usage.OutputTokens)
	require.EqualValues(t, 20, *events[0].Usage.CachedInputTokens)
}
