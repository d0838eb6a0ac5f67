// Package watchdog periodically re-asserts the keep-awake guard and recovers
// a runner that died without its exit being handled.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/runkeeper/internal/guard"
	"github.com/loykin/runkeeper/internal/metrics"
	"github.com/loykin/runkeeper/internal/supervisor"
)

const DefaultInterval = 5 * time.Second

// Runner is the part of the supervisor the watchdog drives.
type Runner interface {
	State() supervisor.State
	Recover() (bool, error)
}

type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
	Guard    guard.Guard
}

type Watchdog struct {
	runner   Runner
	interval time.Duration
	log      *slog.Logger
	guard    guard.Guard

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(r Runner, cfg Config) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Guard == nil {
		cfg.Guard = guard.Nop{}
	}
	return &Watchdog{
		runner:   r,
		interval: cfg.Interval,
		log:      cfg.Logger.With("component", "watchdog"),
		guard:    cfg.Guard,
	}
}

// Run ticks until ctx is cancelled. It always returns nil; tick failures are
// logged and never end the loop.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.Debug("watchdog started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("watchdog stopped")
			return nil
		case <-ticker.C:
			w.tick()
		}
	}
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = w.Run(ctx)
	}(w.done)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watchdog) tick() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watchdog tick panicked", "panic", fmt.Sprint(r))
		}
	}()
	metrics.IncWatchdogTick()

	if err := w.guard.PreventSleep(); err != nil {
		w.log.Warn("prevent sleep failed", "error", err)
	}

	state := w.runner.State()
	if state == supervisor.StateRunning {
		return
	}
	restarted, err := w.runner.Recover()
	if !restarted {
		return
	}
	metrics.IncWatchdogRecovery()
	if err != nil {
		w.log.Warn("runner found idle, recovery failed", "state", state.String(), "error", err)
		return
	}
	w.log.Info("runner found idle, restarted", "state", state.String())
}
