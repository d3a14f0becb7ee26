package coordinator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cklxx/slopcoordinator/internal/supervisor"
)

// subscriberBuffer is the bound on a single subscriber's undelivered
// event backlog; per spec.md §9's fan-out design note, a slow
// subscriber drops events rather than applying backpressure to the
// host connection.
const subscriberBuffer = 64

// EventBus demultiplexes AgentEvents into per-task broadcast channels.
// A subscriber only sees events published after it subscribes; there
// is no historical replay, matching spec.md §4.3 ("a client that
// subscribes after events have been emitted sees only events arriving
// from that moment forward").
type EventBus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan *supervisor.AgentEvent]struct{}
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: map[uuid.UUID]map[chan *supervisor.AgentEvent]struct{}{}}
}

// Subscribe registers a new listener for taskID, returning the channel
// to read from and an unsubscribe function to call when done.
func (b *EventBus) Subscribe(taskID uuid.UUID) (<-chan *supervisor.AgentEvent, func()) {
	ch := make(chan *supervisor.AgentEvent, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[taskID]
	if !ok {
		set = map[chan *supervisor.AgentEvent]struct{}{}
		b.subs[taskID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[taskID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, taskID)
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}

// Publish fans ev out to every current subscriber of taskID. A
// subscriber whose buffer is full drops the event rather than
// blocking the publisher.
func (b *EventBus) Publish(taskID uuid.UUID, ev *supervisor.AgentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[taskID] {
		select {
		case ch <- ev:
		default:
			b.observeDrop()
		}
	}
}
