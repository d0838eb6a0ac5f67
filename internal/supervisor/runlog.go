package supervisor

import (
	"sync"
	"time"

	"github.com/loykin/runkeeper/internal/process"
)

// RunLog receives the output lines of one run.
type RunLog interface {
	WriteLine(stream process.Stream, line string) error
	Close() error
}

// LogSink opens a RunLog for every spawned runner.
type LogSink interface {
	OpenRun(name string, startedAt time.Time) (RunLog, error)
}

type nopRunLog struct{}

func (nopRunLog) WriteLine(process.Stream, string) error { return nil }
func (nopRunLog) Close() error                          { return nil }

type nopSink struct{}

func (nopSink) OpenRun(string, time.Time) (RunLog, error) { return nopRunLog{}, nil }

// runOutput serializes line writes for one run with its own mutex, separate
// from the operation lock. Lines arriving after close are dropped.
type runOutput struct {
	mu     sync.Mutex
	w      RunLog
	closed bool
}

func (r *runOutput) writer(stream process.Stream) process.LineFunc {
	return func(line string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		_ = r.w.WriteLine(stream, line)
	}
}

func (r *runOutput) close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.w.Close()
}
