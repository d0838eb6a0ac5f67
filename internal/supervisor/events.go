package supervisor

import (
	"sync"
	"time"
)

// Event describes one accepted state transition.
type Event struct {
	State    State     `json:"state"`
	Previous State     `json:"previous"`
	PID      int       `json:"pid,omitempty"`
	At       time.Time `json:"at"`
	// LastExit is the exit reason of the process released by this
	// transition; empty for Running.
	LastExit string `json:"last_exit,omitempty"`
}

// subscription queues events for one subscriber so the state setter never
// blocks on a slow reader. A pump goroutine drains the queue into out.
type subscription struct {
	mu       sync.Mutex
	queue    []Event
	closed   bool
	draining bool
	notify   chan struct{}
	out      chan Event
	done     chan struct{}
	stop     sync.Once
}

func newSubscription(buffer int) *subscription {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscription{
		notify: make(chan struct{}, 1),
		out:    make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// close drops anything still queued.
func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop.Do(func() { close(s.done) })
}

// finish closes the subscription once the queued events are delivered.
func (s *subscription) finish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.draining = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		draining := s.draining
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if draining {
			return
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}

// Subscribe returns a channel receiving every subsequent state transition in
// order, and a function that cancels the subscription and closes the channel.
func (s *Supervisor) Subscribe(buffer int) (<-chan Event, func()) {
	sub := newSubscription(buffer)
	s.stateMu.Lock()
	if s.subsClosed {
		s.stateMu.Unlock()
		sub.close()
		return sub.out, func() {}
	}
	s.subs[sub] = struct{}{}
	s.stateMu.Unlock()

	cancel := func() {
		s.stateMu.Lock()
		delete(s.subs, sub)
		s.stateMu.Unlock()
		sub.close()
	}
	return sub.out, cancel
}

// closeSubscriptions delivers what is queued and then closes every feed.
func (s *Supervisor) closeSubscriptions() {
	s.stateMu.Lock()
	subs := s.subs
	s.subs = map[*subscription]struct{}{}
	s.subsClosed = true
	s.stateMu.Unlock()
	for sub := range subs {
		sub.finish()
	}
}
