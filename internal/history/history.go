package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start" // runner entered running
	EventStop  EventType = "stop"  // runner entered stopped
	EventError EventType = "error" // runner entered error
)

// Record is the runner snapshot carried by an event.
type Record struct {
	Runner   string `json:"runner"`
	PID      int    `json:"pid"`
	State    string `json:"state"`
	Previous string `json:"previous"`
	LastExit string `json:"last_exit,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
