package policy

import (
	"sync"
	"time"
)

// Defaults for the automatic restart circuit breaker.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxAttempts = 5
	DefaultCooldown    = 5 * time.Second
)

// Decision is the outcome of registering one unexpected exit.
type Decision struct {
	Allowed  bool
	Attempts int // attempts counted in the current window, including this one
}

// Policy counts automatic restart attempts in a fixed trailing window.
//
// A new window opens when none is open or when more than Window has elapsed
// since the current one opened. Bursts that straddle a window boundary can
// reset the count early, so the limit is best-effort rather than a guarantee
// for every rolling interval.
type Policy struct {
	mu          sync.Mutex
	window      time.Duration
	maxAttempts int
	cooldown    time.Duration

	windowStart time.Time
	count       int
}

// New returns a Policy. Non-positive arguments fall back to the defaults.
func New(window time.Duration, maxAttempts int, cooldown time.Duration) *Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &Policy{window: window, maxAttempts: maxAttempts, cooldown: cooldown}
}

// Default returns a Policy with a 60s window, 5 attempts and a 5s cooldown.
func Default() *Policy { return New(DefaultWindow, DefaultMaxAttempts, DefaultCooldown) }

// RegisterFailureAndDecide records one failure at now and reports whether an
// automatic restart may follow.
func (p *Policy) RegisterFailureAndDecide(now time.Time) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.windowStart.IsZero() || now.Sub(p.windowStart) > p.window {
		p.windowStart = now
		p.count = 1
		return Decision{Allowed: true, Attempts: 1}
	}
	p.count++
	return Decision{Allowed: p.count <= p.maxAttempts, Attempts: p.count}
}

// Reset clears the failure history.
func (p *Policy) Reset() {
	p.mu.Lock()
	p.windowStart = time.Time{}
	p.count = 0
	p.mu.Unlock()
}

// Attempts returns the number of failures in the current window.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Cooldown is the delay callers wait before an approved restart.
func (p *Policy) Cooldown() time.Duration { return p.cooldown }

// Window returns the configured window length.
func (p *Policy) Window() time.Duration { return p.window }

// MaxAttempts returns the number of restarts allowed per window.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }
