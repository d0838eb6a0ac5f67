package runkeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/runkeeper/internal/guard"
	"github.com/loykin/runkeeper/internal/history"
	"github.com/loykin/runkeeper/internal/history/factory"
	"github.com/loykin/runkeeper/internal/logger"
	"github.com/loykin/runkeeper/internal/metrics"
	"github.com/loykin/runkeeper/internal/policy"
	"github.com/loykin/runkeeper/internal/runlog"
	"github.com/loykin/runkeeper/internal/schedule"
	iapi "github.com/loykin/runkeeper/internal/server"
	"github.com/loykin/runkeeper/internal/supervisor"
	"github.com/loykin/runkeeper/internal/watchdog"
)

const shutdownGrace = 5 * time.Second

// DaemonOptions tune how NewDaemon wires the ambient services.
type DaemonOptions struct {
	// Console receives log output when no log file is configured (default io.Discard).
	Console io.Writer
	// Registerer and Gatherer back the metrics endpoint (default: Prometheus default registry).
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Guard overrides the platform keep-awake guard.
	Guard guard.Guard
}

// Daemon is a supervisor plus the services around it: watchdog, scheduled
// restarts, control API, metrics endpoint, per-run logs and history sinks.
type Daemon struct {
	cfg      *Config
	log      *slog.Logger
	logClose io.Closer

	sup      *Supervisor
	runs     *runlog.Sink
	recorder *history.Recorder
	watchdog *watchdog.Watchdog
	schedule *schedule.Scheduler
	api      *http.Server
	metrics  *http.Server
}

// NewDaemon builds a daemon from c. Nothing is started until Run.
func NewDaemon(c *Config, opts DaemonOptions) (*Daemon, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	log, closer, err := logger.New(c.LoggerConfig(), opts.Console)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	d := &Daemon{cfg: c, log: log, logClose: closer}

	env, err := c.RunnerEnv()
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	if err := metrics.Register(opts.Registerer); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}

	d.runs = runlog.New(runlog.Config{
		Dir:        c.RunLog.Dir,
		Keep:       c.RunLog.Keep,
		MaxSizeMB:  c.RunLog.MaxSizeMB,
		MaxBackups: c.RunLog.MaxBackups,
		Compress:   c.RunLog.Compress,
	}, log)

	d.sup = supervisor.New(supervisor.Config{
		Name:        c.Runner.Name,
		WorkDir:     c.Runner.WorkDir,
		Launcher:    c.Runner.Launcher,
		Args:        c.Runner.Args,
		Env:         env,
		StopTimeout: c.Runner.StopTimeout,
	},
		supervisor.WithLogger(log),
		supervisor.WithLogSink(d.runs),
		supervisor.WithPolicy(policy.New(c.Restart.Window, c.Restart.MaxAttempts, c.Restart.Cooldown)),
	)

	if err := metrics.RegisterRunner(opts.Registerer, d.sup.Name(), d.sup.PID); err != nil {
		log.Warn("failed to register runner metrics", "error", err)
	}

	if c.Schedule.Restart != "" {
		d.schedule, err = schedule.New(d.sup, c.Schedule.Restart, c.Schedule.TimeZone, log)
		if err != nil {
			_ = d.sup.Shutdown(context.Background())
			_ = closer.Close()
			return nil, err
		}
	}

	if len(c.History.Sinks) > 0 {
		sinks, err := factory.NewSinks(c.History.Sinks)
		if err != nil {
			_ = d.sup.Shutdown(context.Background())
			_ = closer.Close()
			return nil, err
		}
		d.recorder = history.NewRecorder(log, c.History.Timeout, sinks...)
	}

	if c.Watchdog.Enabled {
		g := opts.Guard
		if g == nil {
			g = guard.Nop{}
			if c.Watchdog.PreventSleep {
				g = guard.New()
			}
		}
		d.watchdog = watchdog.New(d.sup, watchdog.Config{Interval: c.Watchdog.Interval, Logger: log, Guard: g})
	}

	d.api = iapi.NewServer(c.Server.Listen, iapi.NewRouter(d.sup, c.Server.BasePath, log).Handler())
	if c.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HandlerFor(opts.Gatherer))
		d.metrics = iapi.NewServer(c.Metrics.Listen, mux)
	}
	return d, nil
}

func (d *Daemon) Supervisor() *Supervisor { return d.sup }

func (d *Daemon) Logger() *slog.Logger { return d.log }

// Handler returns the control API handler without starting a listener.
func (d *Daemon) Handler() http.Handler { return d.api.Handler }

// Runs lists the run log files of the runner, newest first.
func (d *Daemon) Runs() ([]string, error) { return d.runs.Paths(d.sup.Name()) }

// Run serves until ctx is cancelled or a listener fails, then stops the
// runner and releases every resource. A daemon cannot be run twice.
func (d *Daemon) Run(ctx context.Context) error {
	var recorded chan struct{}
	if d.recorder != nil {
		// the loop ends when Shutdown closes the feed, so the final stop is recorded
		loop := d.recorder.Follow(d.sup)
		recorded = make(chan struct{})
		go func() {
			defer close(recorded)
			_ = loop(context.Background())
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.log.Info("control API listening", "addr", d.cfg.Server.Listen, "base_path", d.cfg.Server.BasePath)
		return iapi.ListenAndServe(gctx, d.api, shutdownGrace)
	})
	if d.metrics != nil {
		g.Go(func() error {
			d.log.Info("metrics listening", "addr", d.cfg.Metrics.Listen)
			return iapi.ListenAndServe(gctx, d.metrics, shutdownGrace)
		})
	}
	if d.watchdog != nil {
		g.Go(func() error { return d.watchdog.Run(gctx) })
	}
	if d.schedule != nil {
		g.Go(func() error { return d.schedule.Run(gctx) })
	}

	if d.cfg.Runner.Autostart {
		if err := d.sup.Start(); err != nil {
			d.log.Error("autostart failed", "error", err)
		}
	}

	err := g.Wait()
	d.log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), d.cfg.Runner.StopTimeout+shutdownGrace)
	defer cancel()
	errs := []error{err, d.sup.Shutdown(sctx)}
	if recorded != nil {
		select {
		case <-recorded:
		case <-sctx.Done():
		}
		errs = append(errs, d.recorder.Close())
	}
	errs = append(errs, d.logClose.Close())
	return errors.Join(errs...)
}
