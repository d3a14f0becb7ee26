package supervisor

import (
	"bufio"
	"fmt"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/cklxx/slopcoordinator/internal/supervisor/subprocess"
)

// ParseFunc turns one JSONL line into zero or more normalized events.
// Implementations are total: an unrecognized but well-formed line
// returns an Unknown event, never an error. A non-nil error means the
// line itself was not valid JSON.
type ParseFunc func(line []byte) ([]*AgentEvent, error)

// lineHandle is the shared AgentHandle implementation for every
// adapter: spawn a subprocess, scan its stdout line by line, and hand
// each line to the adapter-specific ParseFunc. Adapters differ only in
// argv construction and ParseFunc.
type lineHandle struct {
	proc      *subprocess.Subprocess
	parse     ParseFunc
	scanner   *bufio.Scanner
	pending   []*AgentEvent
	sessionID *uuid.UUID
}

func newLineHandle(proc *subprocess.Subprocess, parse ParseFunc) *lineHandle {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &lineHandle{proc: proc, parse: parse, scanner: scanner}
}

// NewAdapterHandle builds the shared line-oriented AgentHandle around
// an already-started subprocess, for use by the per-adapter packages
// under internal/supervisor/adapter/....
func NewAdapterHandle(proc *subprocess.Subprocess, parse ParseFunc) AgentHandle {
	return newLineHandle(proc, parse)
}

// NextEvent implements AgentHandle.
func (h *lineHandle) NextEvent() (*AgentEvent, error, bool) {
	for {
		if len(h.pending) > 0 {
			ev := h.pending[0]
			h.pending = h.pending[1:]
			h.captureSessionID(ev)
			return ev, nil, true
		}
		if !h.scanner.Scan() {
			return nil, h.scanner.Err(), false
		}
		line := h.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events, err := h.parse(append([]byte(nil), line...))
		if err != nil {
			if repaired, rerr := jsonrepair.JSONRepair(string(line)); rerr == nil {
				if retryEvents, rerr2 := h.parse([]byte(repaired)); rerr2 == nil {
					events, err = retryEvents, nil
				}
			}
		}
		if err != nil {
			return nil, newAgentError(AgentErrParse, "malformed event line", err), true
		}
		h.pending = events
	}
}

func (h *lineHandle) captureSessionID(ev *AgentEvent) {
	if ev.Type == EventSessionStarted && ev.SessionID != nil && h.sessionID == nil {
		h.sessionID = ev.SessionID
	}
}

// Wait implements AgentHandle.
func (h *lineHandle) Wait() (AgentResult, error) {
	err := h.proc.Wait()
	exitCode := h.proc.ExitCode()
	if h.sessionID == nil {
		return AgentResult{Success: false, ExitCode: exitCode}, newAgentError(AgentErrNoSession, "child exited without a session id", nil)
	}
	success := err == nil && exitCode == 0
	return AgentResult{SessionID: *h.sessionID, Success: success, ExitCode: exitCode}, nil
}

// Kill implements AgentHandle.
func (h *lineHandle) Kill() {
	_ = h.proc.Stop()
}

// SessionID implements AgentHandle.
func (h *lineHandle) SessionID() *uuid.UUID {
	return h.sessionID
}

// FormatProcessError renders a uniform "<tool> failed: <cause> (stderr
// tail: <tail>) (exit=<code>)" message used by every adapter's spawn
// error path, so failures surfaced to the coordinator carry enough
// detail to diagnose without re-running the child.
func FormatProcessError(tool string, cause error, stderrTail string) string {
	msg := fmt.Sprintf("%s failed: %v", tool, cause)
	if stderrTail != "" {
		msg += fmt.Sprintf(" (stderr tail: %s)", stderrTail)
	}
	if exitErr, ok := cause.(interface{ ExitCode() int }); ok {
		msg += fmt.Sprintf(" (exit=%d)", exitErr.ExitCode())
	}
	return msg
}
