package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cklxx/slopcoordinator/internal/shared/observability"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
	"github.com/cklxx/slopcoordinator/internal/task"
)

// LogPath returns the append-only event-log path for taskID under
// envDir, the same path Run opens for writing.
func LogPath(envDir string, taskID uuid.UUID) string {
	return filepath.Join(envDir, fmt.Sprintf("task-%s.jsonl", taskID))
}

// ReadLog loads every event previously appended to taskID's log,
// in order, for spec.md §4.3's "get task output (historical events
// from the log)" request. A missing log (no run has started yet)
// yields an empty slice, not an error. Lines that fail to parse are
// skipped rather than aborting the read, matching the log's
// append-only, best-effort write contract.
func ReadLog(envDir string, taskID uuid.UUID) ([]*AgentEvent, error) {
	f, err := os.Open(LogPath(envDir, taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open task log: %w", err)
	}
	defer f.Close()

	var events []*AgentEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev AgentEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, &ev)
	}
	return events, nil
}

// EventSink receives every AgentEvent a running task produces, in
// order, for fan-out to connected coordinator(s). Implementations must
// not block the run loop indefinitely; a bounded, drop-on-full queue
// upstream of the coordinator dispatcher is the expected shape.
type EventSink interface {
	Send(taskID uuid.UUID, event *AgentEvent)
}

// Run drives one PromptRun to completion: it opens the append-only
// event log, spawns or resumes the adapter, and forwards every event
// both to disk and to sink, honoring an interrupt signal concurrently
// with the adapter's event stream. It returns only once the run has
// reached a terminal state (completed, failed, or interrupted) and the
// task store has been updated accordingly.
func Run(ctx context.Context, store *task.Store, registry *Registry, envDir string, t *task.Task, cfg AgentConfig, prompt string, sink EventSink, interrupt <-chan struct{}) error {
	logger := utils.NewComponentLogger("supervisor.runloop")

	ctx, span := observability.StartSpan(ctx, "supervisor.run")
	span.SetAttributes(
		attribute.String("slopcoordinator.task_id", t.ID.String()),
		attribute.String("slopcoordinator.agent_kind", string(t.AgentKind)),
	)
	defer span.End()

	adapter, err := registry.Get(t.AgentKind)
	if err != nil {
		_ = store.CompleteRun(t.ID, false)
		return err
	}

	logFile, logErr := os.OpenFile(LogPath(envDir, t.ID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if logErr != nil {
		logger.Warn("disabling event log for task %s: %v", t.ID, logErr)
	}
	defer func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}()

	appendLog := func(ev *AgentEvent) {
		if logFile == nil {
			return
		}
		line, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := logFile.Write(append(line, '\n')); err != nil {
			logger.Warn("event log write failed for task %s, disabling for remainder of run: %v", t.ID, err)
			_ = logFile.Close()
			logFile = nil
		}
	}

	promptSent := &AgentEvent{Type: EventPromptSent, Prompt: prompt}
	appendLog(promptSent)
	sink.Send(t.ID, promptSent)

	var handle AgentHandle
	if t.SessionID != nil {
		logger.Debug("resuming %s session %s for task %s in %s", t.AgentKind, t.SessionID, t.ID, t.WorktreePath)
		handle, err = adapter.Resume(ctx, cfg, t.WorktreePath, t.SessionID.String(), prompt)
	} else {
		logger.Debug("spawning %s for task %s in %s", t.AgentKind, t.ID, t.WorktreePath)
		handle, err = adapter.Spawn(ctx, cfg, t.WorktreePath, prompt)
	}
	if err != nil {
		_ = store.CompleteRun(t.ID, false)
		return newAgentError(AgentErrSpawn, "failed to start adapter", err)
	}

	events := make(chan eventOrErr)
	go drainHandle(handle, events)

	interrupted := false
runLoop:
	for {
		select {
		case res, ok := <-events:
			if !ok {
				break runLoop
			}
			if res.err != nil {
				logger.Warn("task %s event stream error: %v", t.ID, res.err)
				continue
			}
			ev := res.event
			if ev.Type == EventSessionStarted && ev.SessionID != nil {
				if err := store.SetSessionID(t.ID, *ev.SessionID); err != nil {
					logger.Warn("failed to record session id for task %s: %v", t.ID, err)
				}
			}
			if derived, original, ok := OpencodeSessionString(ev); ok {
				if err := NewSessionMap(t.WorktreePath).Put(derived, original); err != nil {
					logger.Warn("failed to persist session mapping for task %s: %v", t.ID, err)
				}
			}
			appendLog(ev)
			sink.Send(t.ID, ev)
		case <-interrupt:
			handle.Kill()
			interrupted = true
			break runLoop
		case <-ctx.Done():
			handle.Kill()
			interrupted = true
			break runLoop
		}
	}

	if interrupted {
		// Keep draining so drainHandle can reach EOF and exit instead of
		// blocking forever on a channel nobody reads.
		go func() {
			for range events {
			}
		}()
	}
	result, waitErr := handle.Wait()
	if interrupted {
		return store.InterruptRun(t.ID)
	}
	success := waitErr == nil && result.Success
	return store.CompleteRun(t.ID, success)
}

type eventOrErr struct {
	event *AgentEvent
	err   error
}

// drainHandle pumps handle.NextEvent() into events until EOF, then
// closes the channel. Non-terminal parse/process errors are forwarded
// so the run loop can log them without ending the stream.
func drainHandle(handle AgentHandle, events chan<- eventOrErr) {
	defer close(events)
	for {
		ev, err, more := handle.NextEvent()
		if !more {
			return
		}
		if err != nil {
			events <- eventOrErr{err: err}
			continue
		}
		events <- eventOrErr{event: ev}
	}
}
