// Package schedule restarts a running runner on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/runkeeper/internal/metrics"
	"github.com/loykin/runkeeper/internal/supervisor"
)

// Runner is the part of the supervisor a schedule drives.
type Runner interface {
	Name() string
	State() supervisor.State
	Restart() error
}

// parser accepts five-field expressions, an optional leading seconds field
// and descriptors such as @daily or @every 6h.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether expr and timeZone are usable.
func Validate(expr, timeZone string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	if _, err := location(timeZone); err != nil {
		return err
	}
	return nil
}

func location(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}
	return loc, nil
}

// Scheduler restarts the runner at every activation of its schedule. A
// runner that is not running is left alone so a caller's Stop is honored.
type Scheduler struct {
	runner Runner
	expr   string
	log    *slog.Logger
	cron   *cron.Cron
}

func New(r Runner, expr, timeZone string, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	loc, err := location(timeZone)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		runner: r,
		expr:   expr,
		log:    log.With("component", "schedule"),
		cron:   cron.New(cron.WithLocation(loc), cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := s.cron.AddFunc(expr, s.fire); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return s, nil
}

// Next returns the next activation time, or zero before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run schedules restarts until ctx is cancelled and waits for a restart in
// progress to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduled restarts enabled", "schedule", s.expr, "next", s.Next())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) fire() {
	name := s.runner.Name()
	if st := s.runner.State(); st != supervisor.StateRunning {
		s.log.Info("scheduled restart skipped", "state", st)
		metrics.IncScheduledRestart(name, "skipped")
		return
	}
	s.log.Info("scheduled restart")
	if err := s.runner.Restart(); err != nil {
		s.log.Error("scheduled restart failed", "error", err)
		metrics.IncScheduledRestart(name, "failed")
		return
	}
	metrics.IncScheduledRestart(name, "ok")
}
