package supervisor

import (
	"time"

	"github.com/loykin/runkeeper/internal/metrics"
	"github.com/loykin/runkeeper/internal/policy"
	"github.com/loykin/runkeeper/internal/process"
)

// enqueueExit is the handle's exit callback. It runs on the handle's wait
// goroutine and only hands the event to the exit worker.
func (s *Supervisor) enqueueExit(h *process.Handle, err error) {
	ev := exitEvent{h: h, err: err}
	s.closeMu.RLock()
	if !s.closed {
		s.exits <- ev
		s.closeMu.RUnlock()
		return
	}
	s.closeMu.RUnlock()
	// worker is gone: clean up without restarting
	s.opMu.Lock()
	if s.proc == h {
		pid := h.PID()
		s.releaseLocked(err)
		s.setExited(pid)
	}
	s.opMu.Unlock()
}

func (s *Supervisor) runExitWorker() {
	defer close(s.workerDone)
	for ev := range s.exits {
		s.handleExit(ev)
	}
}

func (s *Supervisor) handleExit(ev exitEvent) {
	s.opMu.Lock()
	if s.proc != ev.h {
		s.opMu.Unlock()
		s.log.Debug("ignoring exit of stale runner", "pid", ev.h.PID())
		return
	}
	pid := ev.h.PID()
	s.releaseLocked(ev.err)
	s.setExited(pid)
	restart := !s.held.Load() && s.ctx.Err() == nil
	if restart {
		s.pending.Store(true)
	}
	s.opMu.Unlock()

	metrics.IncUnexpectedExit(s.cfg.Name)
	s.log.Warn("runner exited", "pid", pid, "error", ev.err)
	if !restart {
		return
	}
	defer s.pending.Store(false)

	d := s.policy.RegisterFailureAndDecide(s.now())
	if !d.Allowed {
		s.suppress(d)
		return
	}
	cooldown := s.policy.Cooldown()
	s.log.Info("restarting runner after cooldown", "cooldown", cooldown, "attempt", d.Attempts)
	if !s.sleep(cooldown) {
		return
	}
	s.autoRestart()
}

// suppress moves the runner to Error unless a caller started it meanwhile.
func (s *Supervisor) suppress(d policy.Decision) {
	s.opMu.Lock()
	if s.proc == nil && !s.held.Load() {
		s.suppressed.Store(true)
		s.setState(StateError, 0)
	}
	s.opMu.Unlock()
	metrics.IncRestartSuppressed(s.cfg.Name)
	s.log.Error("runner keeps exiting, automatic restart disabled",
		"error", ErrRestartSuppressed, "attempts", d.Attempts, "window", s.policy.Window())
}

func (s *Supervisor) autoRestart() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.held.Load() || s.ctx.Err() != nil {
		return
	}
	if s.proc != nil && !s.proc.HasExited() {
		return
	}
	if err := s.startLocked(false); err != nil {
		return
	}
	s.restarts.Add(1)
	metrics.IncRestart(s.cfg.Name)
}

// sleep waits d or until shutdown; it reports whether d elapsed.
func (s *Supervisor) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
