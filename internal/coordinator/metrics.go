package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the event fan-out and per-host request traffic,
// per spec.md §9's note that slow subscribers silently dropping events
// is a design choice that needs to stay observable.
var (
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slopcoordinator",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "AgentEvents dropped because a subscriber's buffer was full.",
	})

	connectedHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slopcoordinator",
		Subsystem: "hosts",
		Name:      "connected",
		Help:      "Currently connected agent hosts.",
	})

	requestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "slopcoordinator",
		Subsystem: "requests",
		Name:      "in_flight",
		Help:      "Requests awaiting a host reply, by request kind.",
	}, []string{"kind"})

	requestsTimedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slopcoordinator",
		Subsystem: "requests",
		Name:      "timed_out_total",
		Help:      "Requests that exceeded their timeout tier without a reply.",
	}, []string{"kind"})
)

// observeDrop increments the drop counter whenever Publish could not
// enqueue an event for a subscriber.
func (b *EventBus) observeDrop() { eventsDropped.Inc() }
