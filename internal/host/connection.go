package host

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cklxx/slopcoordinator/internal/rpc"
	"github.com/cklxx/slopcoordinator/internal/shared/async"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
	"github.com/cklxx/slopcoordinator/internal/supervisor"
)

// staleCleanupInterval is how often the host sweeps the task store for
// tasks whose worktree no longer exists, per SPEC_FULL.md's supplemented
// cleanup_stale_tasks feature.
const staleCleanupInterval = 5 * time.Minute

// Runner owns the reconnecting host<->coordinator connection and its
// per-connection read/write/dispatch goroutines.
type Runner struct {
	serverURL   string
	password    string
	hostname    string
	displayName *string
	service     *Service
	logger      *utils.ComponentLogger
}

// NewRunner builds a Runner that will serve svc's requests over a
// connection to serverURL.
func NewRunner(serverURL, password, hostname string, displayName *string, svc *Service) *Runner {
	return &Runner{
		serverURL:   serverURL,
		password:    password,
		hostname:    hostname,
		displayName: displayName,
		service:     svc,
		logger:      utils.NewComponentLogger("host.runner"),
	}
}

// Run drives the host forever: dial, serve one connection until it
// drops, retry. Task state lives in the Store, not the connection, so
// a reconnect carries on exactly where the last one left off. Events
// are never buffered across a disconnect — only the task's JSONL log
// captures what happens while the coordinator is unreachable.
func (r *Runner) Run(ctx context.Context) error {
	async.Go(r.logger, "host.cleanupLoop", func() { r.cleanupLoop(ctx) })

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := rpc.DialHost(ctx, r.serverURL, r.password, r.hostname, r.displayName)
		if err != nil {
			return err // only returns non-nil on ctx cancellation
		}
		r.logger.Info("connected to coordinator at %s", r.serverURL)
		if err := r.serveConnection(ctx, conn); err != nil {
			r.logger.Warn("connection lost: %v", err)
		}
		_ = conn.Close()
	}
}

// connSink adapts one connection's outbound queue to supervisor.EventSink.
// Events share the queue with replies, so the writer goroutine is the
// only writer on the socket; an event is dropped when the queue is full
// or once this connection has torn down. A run loop keeps the sink of
// the connection its request arrived on: after a reconnect, its events
// are not sent over the new connection.
type connSink struct {
	outbound chan<- rpc.Envelope
	done     <-chan struct{}
}

func (s *connSink) Send(taskID uuid.UUID, event *supervisor.AgentEvent) {
	select {
	case <-s.done:
	case s.outbound <- rpc.NewTaskEvent(taskID, event):
	default:
	}
}

func (r *Runner) serveConnection(ctx context.Context, conn *rpc.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outbound := make(chan rpc.Envelope, 64)
	group, gCtx := errgroup.WithContext(connCtx)

	// outbound is never closed: detached handler goroutines may still be
	// finishing when the connection tears down, and they bail out on
	// gCtx.Done() instead.
	group.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case env := <-outbound:
				if err := conn.Send(env); err != nil {
					return err
				}
			}
		}
	})

	group.Go(func() error {
		sink := &connSink{outbound: outbound, done: gCtx.Done()}
		for {
			env, err := conn.Recv()
			if err != nil {
				return err
			}
			if env.Type != rpc.EnvelopeRequest || env.Request == nil {
				continue
			}
			requestID := env.RequestID
			req := *env.Request
			async.Go(r.logger, fmt.Sprintf("host.handle[%s]", req.Kind), func() {
				resp, err := r.service.Handle(gCtx, sink, req)
				var reply rpc.Envelope
				if err != nil {
					reply = rpc.NewError(requestID, statusForError(err), err.Error())
				} else {
					reply = rpc.NewResponse(requestID, resp)
				}
				select {
				case outbound <- reply:
				case <-gCtx.Done():
				}
			})
		}
	})

	return group.Wait()
}

func (r *Runner) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(staleCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.service.store.CleanupStale(); err != nil {
				r.logger.Warn("stale task cleanup failed: %v", err)
			}
		}
	}
}
