// Package coordinator implements the coordinator side of the
// coordinator<->host RPC: a registry of connected hosts, request
// dispatch with correlation and timeout tiers, and per-task event
// fan-out to subscribed clients.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cklxx/slopcoordinator/internal/rpc"
	slopErrors "github.com/cklxx/slopcoordinator/internal/shared/errors"
	"github.com/cklxx/slopcoordinator/internal/shared/observability"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
)

// lateDuplicateCacheSize bounds the set of request ids the registry
// remembers as "already resolved", so a Response/Error that arrives
// after its waiter already timed out is recognized and logged as a late
// duplicate. A reply whose id has no pending waiter is dropped whether
// or not the cache still holds that id.
const lateDuplicateCacheSize = 4096

// Default and long-op request timeouts, per spec.md §4.3's routing
// rule: "a generous timeout (>=30s; 5 min for long ops like merge)".
const (
	DefaultRequestTimeout = 30 * time.Second
	LongOpRequestTimeout  = 5 * time.Minute
)

var longOpRequests = map[rpc.RequestKind]bool{
	rpc.RequestMergeTask: true,
}

// TimeoutFor returns the timeout tier for a request kind.
func TimeoutFor(kind rpc.RequestKind) time.Duration {
	if longOpRequests[kind] {
		return LongOpRequestTimeout
	}
	return DefaultRequestTimeout
}

// outboundSender is the minimal capability Registry needs from a
// connected host's write side; *rpc.Conn satisfies it.
type outboundSender interface {
	Send(rpc.Envelope) error
}

// ConnectedAgent is one connected host: its outbound sender and the
// table of requests awaiting a reply.
type ConnectedAgent struct {
	Hostname    string
	DisplayName *string
	sender      outboundSender

	mu      sync.Mutex
	pending map[string]chan rpc.Envelope
}

// Registry tracks every currently-connected host by hostname.
type Registry struct {
	mu       sync.RWMutex
	hosts    map[string]*ConnectedAgent
	events   *EventBus
	resolved *lru.Cache[string, struct{}]
	logger   *utils.ComponentLogger
}

// NewRegistry returns an empty host registry with its own EventBus.
func NewRegistry() *Registry {
	resolved, err := lru.New[string, struct{}](lateDuplicateCacheSize)
	if err != nil {
		panic(err) // only errors on a non-positive size, which is a constant above
	}
	return &Registry{
		hosts:    map[string]*ConnectedAgent{},
		events:   NewEventBus(),
		resolved: resolved,
		logger:   utils.NewComponentLogger("coordinator.registry"),
	}
}

// Events returns the registry's per-task event bus, for coordinator
// clients to subscribe to.
func (r *Registry) Events() *EventBus { return r.events }

// Register adds a newly-connected host, replacing any prior connection
// under the same hostname (a fresh Hello supersedes a stale one).
func (r *Registry) Register(hostname string, displayName *string, sender outboundSender) *ConnectedAgent {
	agent := &ConnectedAgent{Hostname: hostname, DisplayName: displayName, sender: sender, pending: map[string]chan rpc.Envelope{}}
	r.mu.Lock()
	r.hosts[hostname] = agent
	r.mu.Unlock()
	connectedHosts.Inc()
	return agent
}

// Unregister drops a host on disconnect, failing any requests still
// awaiting a reply.
func (r *Registry) Unregister(hostname string) {
	r.mu.Lock()
	agent, ok := r.hosts[hostname]
	delete(r.hosts, hostname)
	r.mu.Unlock()
	if !ok {
		return
	}
	connectedHosts.Dec()
	agent.mu.Lock()
	for id, ch := range agent.pending {
		close(ch)
		delete(agent.pending, id)
	}
	agent.mu.Unlock()
}

// Deliver routes an incoming Response/Error/TaskEvent envelope from a
// host to the right waiter or subscriber.
func (r *Registry) Deliver(hostname string, env rpc.Envelope) {
	switch env.Type {
	case rpc.EnvelopeResponse, rpc.EnvelopeError:
		r.mu.RLock()
		agent, ok := r.hosts[hostname]
		r.mu.RUnlock()
		if !ok {
			return
		}
		agent.mu.Lock()
		ch, ok := agent.pending[env.RequestID]
		if ok {
			delete(agent.pending, env.RequestID)
		}
		agent.mu.Unlock()
		if ok {
			ch <- env
			close(ch)
		} else if _, late := r.resolved.Get(env.RequestID); late {
			r.logger.Debug("dropping late duplicate response for request %s", env.RequestID)
		}
	case rpc.EnvelopeTaskEvent:
		if env.TaskID != nil && env.Event != nil {
			r.events.Publish(*env.TaskID, env.Event)
		}
	}
}

// Dispatch sends request to hostname and awaits its reply, refusing
// with a NotFound error if the host is unknown, and a Timeout error if
// no reply arrives within the request kind's timeout tier.
func (r *Registry) Dispatch(ctx context.Context, hostname string, req rpc.Request) (rpc.Response, error) {
	ctx, span := observability.StartSpan(ctx, "coordinator.dispatch")
	span.SetAttributes(
		attribute.String("slopcoordinator.hostname", hostname),
		attribute.String("slopcoordinator.request_kind", string(req.Kind)),
	)
	defer span.End()

	r.mu.RLock()
	agent, ok := r.hosts[hostname]
	r.mu.RUnlock()
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("host %q is not connected", hostname))
	}

	requestID := uuid.New().String()
	waiter := make(chan rpc.Envelope, 1)
	agent.mu.Lock()
	agent.pending[requestID] = waiter
	agent.mu.Unlock()

	if err := agent.sender.Send(rpc.NewRequest(requestID, req)); err != nil {
		agent.mu.Lock()
		delete(agent.pending, requestID)
		agent.mu.Unlock()
		return rpc.Response{}, slopErrors.Internal(err, "send request to host")
	}

	requestsInFlight.WithLabelValues(string(req.Kind)).Inc()
	defer requestsInFlight.WithLabelValues(string(req.Kind)).Dec()

	timeout := TimeoutFor(req.Kind)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		agent.mu.Lock()
		delete(agent.pending, requestID)
		agent.mu.Unlock()
		r.resolved.Add(requestID, struct{}{})
		return rpc.Response{}, ctx.Err()
	case <-timer.C:
		agent.mu.Lock()
		delete(agent.pending, requestID)
		agent.mu.Unlock()
		r.resolved.Add(requestID, struct{}{})
		requestsTimedOut.WithLabelValues(string(req.Kind)).Inc()
		return rpc.Response{}, slopErrors.Timeout(fmt.Sprintf("request %s to host %q timed out after %s", req.Kind, hostname, timeout))
	case env, ok := <-waiter:
		r.resolved.Add(requestID, struct{}{})
		if !ok {
			return rpc.Response{}, slopErrors.Internal(nil, fmt.Sprintf("host %q disconnected before replying", hostname))
		}
		if env.Type == rpc.EnvelopeError {
			return rpc.Response{}, mapStatusError(env.Status, env.Error)
		}
		if env.Response == nil {
			return rpc.Response{}, slopErrors.Internal(nil, "empty response payload")
		}
		return *env.Response, nil
	}
}

func mapStatusError(status int, message string) error {
	switch status {
	case 404:
		return slopErrors.NotFound(message)
	case 409:
		return slopErrors.Conflict(message)
	case 410:
		return slopErrors.Gone(message)
	case 400:
		return slopErrors.BadRequest(message)
	case 401:
		return slopErrors.Unauthorized(message)
	case 504, 408:
		return slopErrors.Timeout(message)
	default:
		return slopErrors.Internal(nil, message)
	}
}
