package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value returns the counter or gauge sample of metric name whose labels include want.
func value(t *testing.T, g prometheus.Gatherer, name string, want map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue(), true
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	n := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			n++
		}
	}
	return n == len(want)
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("a")
	IncStart("a")
	IncStop("a")
	IncUnexpectedExit("a")
	IncRestart("a")
	IncRestartSuppressed("a")
	RecordStateTransition("a", "stopped", "running")
	SetCurrentState("a", "running", []string{"stopped", "running", "error"})
	IncWatchdogTick()
	IncWatchdogRecovery()

	if got, _ := value(t, reg, "runkeeper_runner_starts_total", map[string]string{"name": "a"}); got != 2 {
		t.Fatalf("starts = %v, want 2", got)
	}
	if got, _ := value(t, reg, "runkeeper_runner_current_state", map[string]string{"name": "a", "state": "running"}); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got, ok := value(t, reg, "runkeeper_runner_current_state", map[string]string{"name": "a", "state": "error"}); !ok || got != 0 {
		t.Fatalf("error gauge = %v (found %v), want 0", got, ok)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"runkeeper_runner_starts_total":              false,
		"runkeeper_runner_stops_total":               false,
		"runkeeper_runner_unexpected_exits_total":    false,
		"runkeeper_runner_restarts_total":            false,
		"runkeeper_runner_restarts_suppressed_total": false,
		"runkeeper_runner_state_transitions_total":   false,
		"runkeeper_watchdog_ticks_total":             false,
		"runkeeper_watchdog_recoveries_total":        false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHelpersNoopBeforeRegister(t *testing.T) {
	regOK.Store(false)
	IncStop("noop")
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	if _, ok := value(t, reg, "runkeeper_runner_stops_total", map[string]string{"name": "noop"}); ok {
		t.Fatal("stop counter recorded before Register")
	}
}

func TestHandlerForServesMetrics(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	IncStart("x")

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `runkeeper_runner_starts_total{name="x"}`) {
		t.Fatalf("metrics output missing starts counter:\n%s", b)
	}
}

func TestRunnerCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	pid := 0
	if err := RegisterRunner(reg, "self", func() int { return pid }); err != nil {
		t.Fatal(err)
	}

	// not running: no samples
	if _, ok := value(t, reg, "runkeeper_runner_memory_rss_bytes", nil); ok {
		t.Fatal("expected no samples without pid")
	}

	pid = os.Getpid()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "runkeeper_runner_memory_rss_bytes" {
			found = true
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v <= 0 {
				t.Fatalf("rss = %v, want > 0", v)
			}
		}
	}
	if !found {
		t.Fatal("rss metric not collected for own pid")
	}
}
