package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/runkeeper/internal/metrics"
	"github.com/loykin/runkeeper/internal/policy"
	"github.com/loykin/runkeeper/internal/process"
)

const (
	DefaultStopTimeout = 5 * time.Second
	DefaultExitQueue   = 16
)

// Config describes the runner and how it is stopped.
type Config struct {
	Name        string
	WorkDir     string
	Launcher    string
	Args        []string
	Env         []string
	StopTimeout time.Duration
	ExitQueue   int
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

func WithLogSink(sink LogSink) Option {
	return func(s *Supervisor) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithPolicy(p *policy.Policy) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.policy = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	Name       string    `json:"name"`
	State      State     `json:"state"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	LastExit   string    `json:"last_exit,omitempty"`
	Restarts   int64     `json:"restarts"`
	Suppressed bool      `json:"suppressed"`
	Held       bool      `json:"held"`
}

type exitEvent struct {
	h   *process.Handle
	err error
}

// Supervisor owns the runner lifecycle.
//
// Lock order: opMu, then stateMu. opMu is never held while waiting out a
// restart cooldown; line output uses its own per-run mutex.
type Supervisor struct {
	cfg    Config
	log    *slog.Logger
	sink   LogSink
	policy *policy.Policy
	now    func() time.Time

	// opMu serializes Start, Stop, Restart, Recover, automatic restarts and exit cleanup.
	opMu sync.Mutex
	proc *process.Handle
	out  *runOutput

	held       atomic.Bool // not started yet or stopped by a caller; no automatic restarts
	suppressed atomic.Bool // restart window exhausted
	pending    atomic.Bool // exit path is waiting out the cooldown
	restarts   atomic.Int64

	stateMu    sync.RWMutex
	state      State
	pid        int
	startedAt  time.Time
	lastExit   string
	subs       map[*subscription]struct{}
	subsClosed bool

	exits      chan exitEvent
	closeMu    sync.RWMutex
	closed     bool
	workerDone chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	shutdown   sync.Once

	onSpawn func(*process.Handle)
}

// New returns a stopped supervisor and starts its exit worker.
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.Name == "" {
		cfg.Name = "runner"
	}
	if cfg.Launcher == "" {
		cfg.Launcher = process.DefaultScript
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.ExitQueue <= 0 {
		cfg.ExitQueue = DefaultExitQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:        cfg,
		log:        slog.Default(),
		sink:       nopSink{},
		policy:     policy.Default(),
		now:        time.Now,
		state:      StateStopped,
		subs:       map[*subscription]struct{}{},
		exits:      make(chan exitEvent, cfg.ExitQueue),
		workerDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.held.Store(true)
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("runner", cfg.Name)
	metrics.SetCurrentState(cfg.Name, StateStopped.String(), stateNames())
	go s.runExitWorker()
	return s
}

func (s *Supervisor) Name() string { return s.cfg.Name }

func (s *Supervisor) spec() process.Spec {
	return process.Spec{
		Name:    s.cfg.Name,
		Script:  s.cfg.Launcher,
		Args:    s.cfg.Args,
		WorkDir: s.cfg.WorkDir,
		Env:     s.cfg.Env,
	}
}

// Start spawns the runner unless one is already alive. A successful start
// clears the restart history and any suppression.
func (s *Supervisor) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.held.Store(false)
	return s.startLocked(true)
}

// Stop terminates the runner and its descendants and holds it stopped until
// the next Start or Restart.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.held.Store(true)
	return s.stopLocked()
}

// Restart stops and starts the runner as one operation.
func (s *Supervisor) Restart() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	stopErr := s.stopLocked()
	s.held.Store(false)
	return errors.Join(stopErr, s.startLocked(true))
}

// State returns the current state without waiting on in-flight operations.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// PID returns the pid of the live runner, or 0.
func (s *Supervisor) PID() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.pid
}

func (s *Supervisor) Snapshot() Status {
	s.stateMu.RLock()
	st := Status{
		Name:      s.cfg.Name,
		State:     s.state,
		PID:       s.pid,
		StartedAt: s.startedAt,
		LastExit:  s.lastExit,
	}
	s.stateMu.RUnlock()
	st.Restarts = s.restarts.Load()
	st.Suppressed = s.suppressed.Load()
	st.Held = s.held.Load()
	return st
}

// Recover restarts a runner that is unexpectedly not running. It does nothing
// when the runner was stopped by a caller, when automatic restarts are
// suppressed, or when the exit path already has a restart pending. The
// returned bool reports whether a start was attempted.
func (s *Supervisor) Recover() (bool, error) {
	if s.pending.Load() {
		return false, nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if !s.restartableLocked() {
		return false, nil
	}
	s.log.Warn("runner not running, recovering", "state", s.State())
	err := s.startLocked(false)
	if err == nil {
		s.restarts.Add(1)
		metrics.IncRestart(s.cfg.Name)
	}
	return true, err
}

func (s *Supervisor) restartableLocked() bool {
	if s.held.Load() || s.suppressed.Load() || s.pending.Load() || s.ctx.Err() != nil {
		return false
	}
	if s.proc != nil && !s.proc.HasExited() {
		return false
	}
	return s.State() != StateRunning
}

// Shutdown stops the runner, interrupts any pending cooldown, drains the exit
// queue and closes all subscriptions.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var err error
	s.shutdown.Do(func() {
		s.held.Store(true)
		s.cancel()
		err = s.Stop()

		s.closeMu.Lock()
		s.closed = true
		close(s.exits)
		s.closeMu.Unlock()

		select {
		case <-s.workerDone:
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
		s.closeSubscriptions()
	})
	return err
}

func (s *Supervisor) startLocked(reset bool) error {
	if s.proc != nil {
		if !s.proc.HasExited() {
			s.log.Info("runner already running", "pid", s.proc.PID())
			return nil
		}
		// exited before the worker saw it; the worker will drop the event as stale
		pid := s.proc.PID()
		s.releaseLocked(s.proc.ExitErr())
		s.setExited(pid)
		metrics.IncUnexpectedExit(s.cfg.Name)
	}

	spec := s.spec()
	path := spec.ScriptPath()
	if _, err := os.Stat(path); err != nil {
		s.setState(StateError, 0)
		err = fmt.Errorf("%w: %s", ErrScriptMissing, path)
		s.log.Error("cannot start runner", "error", err)
		return err
	}

	startedAt := s.now()
	w, err := s.sink.OpenRun(s.cfg.Name, startedAt)
	if err != nil {
		s.log.Warn("open run log failed, output discarded", "error", err)
		w = nopRunLog{}
	}
	out := &runOutput{w: w}
	h := process.New(spec, process.Options{
		Stdout: out.writer(process.Stdout),
		Stderr: out.writer(process.Stderr),
	})
	h.SetOnExit(s.enqueueExit)
	if s.onSpawn != nil {
		s.onSpawn(h)
	}
	if err := h.Start(); err != nil {
		_ = out.close()
		s.setState(StateError, 0)
		err = fmt.Errorf("%w: %w", ErrSpawnFailure, err)
		s.log.Error("cannot start runner", "error", err)
		return err
	}

	s.proc, s.out = h, out
	if reset {
		s.policy.Reset()
		s.suppressed.Store(false)
	}
	pid := h.PID()
	s.stateMu.Lock()
	s.pid, s.startedAt = pid, startedAt
	s.stateMu.Unlock()
	s.setState(StateRunning, pid)
	metrics.IncStart(s.cfg.Name)
	return nil
}

func (s *Supervisor) stopLocked() error {
	h := s.proc
	if h == nil {
		s.setState(StateStopped, 0)
		return nil
	}
	pid := h.PID()
	if h.HasExited() {
		s.releaseLocked(h.ExitErr())
		s.setExited(pid)
		return nil
	}

	// unregister first so the kill is not mistaken for a crash
	h.SetOnExit(nil)
	if err := h.Kill(true); err != nil {
		s.log.Warn("kill runner", "pid", pid, "error", err)
	}
	var err error
	if !h.Wait(s.cfg.StopTimeout) {
		err = fmt.Errorf("%w: pid %d after %s", ErrTerminationTimeout, pid, s.cfg.StopTimeout)
		s.log.Error("stop runner", "error", err)
	}
	s.releaseLocked(h.ExitErr())
	s.setExited(pid)
	metrics.IncStop(s.cfg.Name)
	return err
}

// releaseLocked drops the current handle and closes its run log.
func (s *Supervisor) releaseLocked(exitErr error) {
	if s.proc != nil {
		s.proc.SetOnExit(nil)
	}
	if err := s.out.close(); err != nil {
		s.log.Warn("close run log", "error", err)
	}
	s.proc, s.out = nil, nil

	s.stateMu.Lock()
	s.pid = 0
	s.lastExit = ""
	if exitErr != nil {
		s.lastExit = exitErr.Error()
	}
	s.stateMu.Unlock()
}

// setState changes the state and queues one event per subscriber in a
// single step. Setting the current state is a no-op.
func (s *Supervisor) setState(next State, pid int) { s.transition(next, pid, false) }

// setExited moves to Stopped after a release; the event carries the exit
// reason recorded by releaseLocked.
func (s *Supervisor) setExited(pid int) { s.transition(StateStopped, pid, true) }

func (s *Supervisor) transition(next State, pid int, exited bool) {
	s.stateMu.Lock()
	prev := s.state
	if prev == next {
		s.stateMu.Unlock()
		return
	}
	s.state = next
	ev := Event{State: next, Previous: prev, PID: pid, At: s.now()}
	if exited {
		ev.LastExit = s.lastExit
	}
	for sub := range s.subs {
		sub.push(ev)
	}
	s.stateMu.Unlock()

	metrics.RecordStateTransition(s.cfg.Name, prev.String(), next.String())
	metrics.SetCurrentState(s.cfg.Name, next.String(), stateNames())
	s.log.Info("runner state changed", "from", prev.String(), "to", next.String(), "pid", pid)
}
