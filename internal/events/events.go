// Package events defines the lifecycle events the proxy publishes over the
// shared lock-free event bus, so the health prober, the orchestrator and any
// future admin surface can observe state transitions without being wired
// together directly.
package events

import "github.com/vellum-proxy/vellum/pkg/eventbus"

type Kind string

const (
	TargetHealthy   Kind = "target_healthy"
	TargetUnhealthy Kind = "target_unhealthy"
)

// Event is one lifecycle transition worth telling subscribers about.
type Event struct {
	Kind     Kind
	Listener string
	Target   string
}

// Bus is the event type this package's subscribers deal in.
type Bus = eventbus.EventBus[Event]

// NewBus builds a bus with the library's default buffering and cleanup.
func NewBus() *Bus {
	return eventbus.New[Event]()
}
