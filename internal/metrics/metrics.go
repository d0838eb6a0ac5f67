package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "runkeeper"
	subsystem = "runner"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runnerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "starts_total",
			Help:      "Number of successful runner spawns.",
		}, []string{"name"},
	)
	runnerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stops_total",
			Help:      "Number of caller-initiated stops of a live runner.",
		}, []string{"name"},
	)
	runnerExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unexpected_exits_total",
			Help:      "Number of runner exits that were not requested.",
		}, []string{"name"},
	)
	runnerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restarts_total",
			Help:      "Number of automatic restarts.",
		}, []string{"name"},
	)
	runnerSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restarts_suppressed_total",
			Help:      "Number of automatic restarts denied by the restart window.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between runner states.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "current_state",
			Help:      "Current runner state (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	watchdogTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "ticks_total",
			Help:      "Number of watchdog ticks.",
		},
	)
	watchdogRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "recoveries_total",
			Help:      "Number of restarts triggered by the watchdog.",
		},
	)
	scheduledRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "restarts_total",
			Help:      "Number of scheduled restarts by outcome.",
		}, []string{"name", "outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		runnerStarts, runnerStops, runnerExits, runnerRestarts, runnerSuppressed,
		stateTransitions, currentStates, watchdogTicks, watchdogRecoveries, scheduledRestarts,
	}
	for _, c := range cs {
		if err := register(r, c); err != nil {
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// register ignores AlreadyRegisteredError so the default registry can be reused.
func register(r prometheus.Registerer, c prometheus.Collector) error {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		runnerStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		runnerStops.WithLabelValues(name).Inc()
	}
}

func IncUnexpectedExit(name string) {
	if regOK.Load() {
		runnerExits.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		runnerRestarts.WithLabelValues(name).Inc()
	}
}

func IncRestartSuppressed(name string) {
	if regOK.Load() {
		runnerSuppressed.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

// SetCurrentState marks state as the active one among all.
func SetCurrentState(name, state string, all []string) {
	if !regOK.Load() {
		return
	}
	for _, s := range all {
		var value float64
		if s == state {
			value = 1
		}
		currentStates.WithLabelValues(name, s).Set(value)
	}
}

func IncWatchdogTick() {
	if regOK.Load() {
		watchdogTicks.Inc()
	}
}

func IncWatchdogRecovery() {
	if regOK.Load() {
		watchdogRecoveries.Inc()
	}
}

// IncScheduledRestart counts a scheduled restart; outcome is ok, failed or skipped.
func IncScheduledRestart(name, outcome string) {
	if regOK.Load() {
		scheduledRestarts.WithLabelValues(name, outcome).Inc()
	}
}
