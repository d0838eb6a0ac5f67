// Package guard keeps the host awake while the runner is supervised.
package guard

// Guard re-asserts that the host must not sleep. PreventSleep is stateless
// and idempotent, so it is safe to call on every watchdog tick.
type Guard interface {
	PreventSleep() error
}

// New returns the guard for the current platform.
func New() Guard { return newGuard() }

// Nop is a Guard that does nothing.
type Nop struct{}

func (Nop) PreventSleep() error { return nil }
