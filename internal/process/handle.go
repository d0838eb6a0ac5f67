package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Stream names the output stream a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// DefaultWaitDelay bounds how long output pipes are drained after the
// process exits before they are forcibly closed.
const DefaultWaitDelay = 500 * time.Millisecond

// LineFunc receives one line of output without its trailing newline.
type LineFunc func(line string)

// ExitFunc is invoked once when the process exits.
type ExitFunc func(h *Handle, err error)

// Options configures output handling for a Handle.
type Options struct {
	Stdout    LineFunc
	Stderr    LineFunc
	WaitDelay time.Duration
}

var ErrAlreadyStarted = errors.New("process already started")

// Handle owns a single OS child process.
type Handle struct {
	spec Spec
	opts Options

	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	onExit    ExitFunc
	exitErr   error
	done      chan struct{}

	outW *lineWriter
	errW *lineWriter
}

// New returns an unstarted handle.
func New(spec Spec, opts Options) *Handle {
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}
	return &Handle{spec: spec, opts: opts, done: make(chan struct{})}
}

func (h *Handle) Spec() Spec { return h.spec }

// Start spawns the launcher. A handle can be started once.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil {
		return ErrAlreadyStarted
	}
	cmd := h.spec.BuildCommand()
	configureSysProcAttr(cmd)
	if h.opts.Stdout != nil {
		h.outW = newLineWriter(h.opts.Stdout)
		cmd.Stdout = h.outW
	}
	if h.opts.Stderr != nil {
		h.errW = newLineWriter(h.opts.Stderr)
		cmd.Stderr = h.errW
	}
	cmd.WaitDelay = h.opts.WaitDelay
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", h.spec.ScriptPath(), err)
	}
	h.cmd = cmd
	h.startedAt = time.Now()
	go h.wait(cmd)
	return nil
}

// wait is the only goroutine that reaps the child.
func (h *Handle) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	h.outW.flush()
	h.errW.flush()

	h.mu.Lock()
	h.exitErr = err
	fn := h.onExit
	h.onExit = nil
	close(h.done)
	h.mu.Unlock()

	if fn != nil {
		fn(h, err)
	}
}

// SetOnExit registers fn to run when the process exits; nil unregisters.
// A callback registered after exit is never invoked.
func (h *Handle) SetOnExit(fn ExitFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.onExit = fn
}

// PID returns the OS pid, or 0 when not started.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// Done is closed after the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) HasExited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error from Wait; valid once Done is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Kill forcibly terminates the process. With includeDescendants the whole
// process group and every enumerated descendant are killed too.
func (h *Handle) Kill(includeDescendants bool) error {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil || h.HasExited() {
		return nil
	}
	pid := cmd.Process.Pid

	var tree []int32
	if includeDescendants {
		tree = descendants(pid)
		_ = killGroup(pid)
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	killPIDs(tree)
	return err
}

// Wait blocks until the process exits or timeout elapses and reports
// whether it exited.
func (h *Handle) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}
