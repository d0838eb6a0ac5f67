package runkeeper

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/runkeeper/internal/config"
	"github.com/loykin/runkeeper/internal/history"
	"github.com/loykin/runkeeper/internal/metrics"
	"github.com/loykin/runkeeper/internal/policy"
	"github.com/loykin/runkeeper/internal/runlog"
	iapi "github.com/loykin/runkeeper/internal/server"
	"github.com/loykin/runkeeper/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Supervisor = supervisor.Supervisor

type SupervisorConfig = supervisor.Config

type Option = supervisor.Option

type State = supervisor.State

type Status = supervisor.Status

type Event = supervisor.Event

type Config = cfg.Config

type HistorySink = history.Sink

const (
	StateStopped = supervisor.StateStopped
	StateRunning = supervisor.StateRunning
	StateError   = supervisor.StateError
)

var (
	ErrScriptMissing      = supervisor.ErrScriptMissing
	ErrSpawnFailure       = supervisor.ErrSpawnFailure
	ErrTerminationTimeout = supervisor.ErrTerminationTimeout
	ErrRestartSuppressed  = supervisor.ErrRestartSuppressed
)

// New returns a stopped supervisor for the launcher described by c.
func New(c SupervisorConfig, opts ...Option) *Supervisor { return supervisor.New(c, opts...) }

func WithLogger(l *slog.Logger) Option { return supervisor.WithLogger(l) }

// WithRestartPolicy overrides the crash-loop breaker.
func WithRestartPolicy(window time.Duration, maxAttempts int, cooldown time.Duration) Option {
	return supervisor.WithPolicy(policy.New(window, maxAttempts, cooldown))
}

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// NewHandler exposes the control API of s under basePath.
func NewHandler(s *Supervisor, basePath string, log *slog.Logger) http.Handler {
	return iapi.NewRouter(s, basePath, log).Handler()
}

// NewHTTPServer returns a server for the control API of s.
func NewHTTPServer(addr, basePath string, s *Supervisor) *http.Server {
	return iapi.NewServer(addr, NewHandler(s, basePath, nil))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// RegisterRunnerMetrics adds CPU and memory gauges for the live runner of s.
func RegisterRunnerMetrics(r prometheus.Registerer, s *Supervisor) error {
	return metrics.RegisterRunner(r, s.Name(), s.PID)
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler { return metrics.Handler() }

// RunLogs lists the run log files of the configured runner, newest first.
func RunLogs(c *Config) ([]string, error) {
	return runlog.New(runlog.Config{Dir: c.RunLog.Dir}, nil).Paths(c.Runner.Name)
}
