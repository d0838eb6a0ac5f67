// Package runlog stores runner output in one file per run and keeps only the
// most recent runs.
package runlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/loykin/runkeeper/internal/process"
	"github.com/loykin/runkeeper/internal/supervisor"
)

const (
	DefaultKeep       = 5
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3

	runIDLayout = "20060102-150405.000"
)

type Config struct {
	Dir        string
	Keep       int  // number of runs kept on disk (default 5)
	MaxSizeMB  int  // size before a run file is rotated (default 10)
	MaxBackups int  // rotated backups per run (default 3)
	Compress   bool // gzip rotated backups
}

// Sink implements supervisor.LogSink.
type Sink struct {
	cfg Config
	log *slog.Logger
	mu  sync.Mutex
	now func() time.Time
}

func New(cfg Config, log *slog.Logger) *Sink {
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{cfg: cfg, log: log, now: time.Now}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func safeName(name string) string {
	if name == "" {
		return "runner"
	}
	return unsafeName.ReplaceAllString(name, "_")
}

// FileName returns the base name of the run file for a run started at t.
func FileName(name string, t time.Time) string {
	return fmt.Sprintf("%s-%s.log", safeName(name), t.UTC().Format(runIDLayout))
}

// OpenRun creates the file for a new run and prunes runs beyond Keep.
func (s *Sink) OpenRun(name string, startedAt time.Time) (supervisor.RunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create run log dir: %w", err)
	}
	path := filepath.Join(s.cfg.Dir, FileName(name, startedAt))
	w := &lj.Logger{
		Filename:   path,
		MaxSize:    s.cfg.MaxSizeMB,
		MaxBackups: s.cfg.MaxBackups,
		Compress:   s.cfg.Compress,
	}
	r := &Run{w: w, path: path, now: s.now}
	if _, err := fmt.Fprintf(w, "# %s started %s\n", name, startedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write run log header: %w", err)
	}
	if err := s.prune(name); err != nil {
		s.log.Warn("prune run logs", "dir", s.cfg.Dir, "error", err)
	}
	return r, nil
}

// Runs lists the run ids on disk for name, newest first.
func (s *Sink) Runs(name string) ([]string, error) {
	files, err := s.files(name)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Paths lists the current file of each run on disk for name, newest first.
func (s *Sink) Paths(name string) ([]string, error) {
	ids, err := s.Runs(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = filepath.Join(s.cfg.Dir, safeName(name)+"-"+id+".log")
	}
	return out, nil
}

// files groups every file of name in Dir by run id, including lumberjack
// backups of that run.
func (s *Sink) files(name string) (map[string][]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := safeName(name) + "-"
	out := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		rest := strings.TrimPrefix(e.Name(), prefix)
		if len(rest) < len(runIDLayout) {
			continue
		}
		id := rest[:len(runIDLayout)]
		if _, err := time.Parse(runIDLayout, id); err != nil {
			continue
		}
		out[id] = append(out[id], filepath.Join(s.cfg.Dir, e.Name()))
	}
	return out, nil
}

func (s *Sink) prune(name string) error {
	files, err := s.files(name)
	if err != nil {
		return err
	}
	ids, _ := s.Runs(name)
	if len(ids) <= s.cfg.Keep {
		return nil
	}
	var errs []error
	for _, id := range ids[s.cfg.Keep:] {
		for _, f := range files[id] {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("remove old runs: %v", errs)
	}
	return nil
}

// Run is the log file of a single run.
type Run struct {
	w    *lj.Logger
	path string
	now  func() time.Time
}

func (r *Run) Path() string { return r.path }

// WriteLine appends "<time> [<stream>] <line>".
func (r *Run) WriteLine(stream process.Stream, line string) error {
	_, err := fmt.Fprintf(r.w, "%s [%s] %s\n", r.now().UTC().Format(time.RFC3339Nano), stream, line)
	return err
}

func (r *Run) Close() error { return r.w.Close() }
