package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/runkeeper/internal/supervisor"
)

const DefaultSendTimeout = 5 * time.Second

// Source is the state-change feed the recorder consumes.
type Source interface {
	Name() string
	Subscribe(buffer int) (<-chan supervisor.Event, func())
}

// Recorder forwards every state change of a supervisor to its sinks.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	log     *slog.Logger
}

func NewRecorder(log *slog.Logger, timeout time.Duration, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Recorder{sinks: sinks, timeout: timeout, log: log.With("component", "history")}
}

// Run consumes events from src until ctx is cancelled or the feed closes.
// Sink errors are logged and never end the loop.
func (r *Recorder) Run(ctx context.Context, src Source) error {
	return r.Follow(src)(ctx)
}

// Follow subscribes to src immediately and returns the forwarding loop, so
// no transition made between the call and the loop starting is missed.
func (r *Recorder) Follow(src Source) func(ctx context.Context) error {
	events, cancel := src.Subscribe(64)
	return func(ctx context.Context) error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				r.Record(ctx, FromSupervisor(src.Name(), ev))
			}
		}
	}
}

// Record sends e to every sink with a bounded timeout each.
func (r *Recorder) Record(ctx context.Context, e Event) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		if err := s.Send(sctx, e); err != nil {
			r.log.Warn("history sink send failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}

// Close closes every sink that implements io.Closer.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// FromSupervisor converts a state transition into a history event. The exit
// reason is the one captured with the transition.
func FromSupervisor(name string, ev supervisor.Event) Event {
	var t EventType
	lastExit := ev.LastExit
	switch ev.State {
	case supervisor.StateRunning:
		t = EventStart
		lastExit = ""
	case supervisor.StateError:
		t = EventError
	default:
		t = EventStop
	}
	return Event{
		Type:       t,
		OccurredAt: ev.At.UTC(),
		Record: Record{
			Runner:   name,
			PID:      ev.PID,
			State:    ev.State.String(),
			Previous: ev.Previous.String(),
			LastExit: lastExit,
		},
	}
}
