//go:build !windows

package runkeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/runkeeper/internal/guard"
	"github.com/loykin/runkeeper/internal/history/sqlite"
)

func writeLauncher(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(body), 0o644))
}

func post(t *testing.T, h http.Handler, path string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Status
}

func TestFacadeHandlerControlsSupervisor(t *testing.T) {
	dir := t.TempDir()
	writeLauncher(t, dir, "sleep 5\n")

	s := New(SupervisorConfig{Name: "facade", WorkDir: dir, StopTimeout: 2 * time.Second},
		WithRestartPolicy(time.Minute, 5, 10*time.Millisecond))
	defer func() { _ = s.Shutdown(context.Background()) }()

	h := NewHandler(s, "/api", nil)
	assert.Equal(t, "running", post(t, h, "/api/start"))
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, "stopped", post(t, h, "/api/stop"))
	assert.Equal(t, StateStopped, s.State())
}

func TestFacadeMissingScript(t *testing.T) {
	s := New(SupervisorConfig{Name: "missing", WorkDir: t.TempDir()})
	defer func() { _ = s.Shutdown(context.Background()) }()

	require.ErrorIs(t, s.Start(), ErrScriptMissing)
	assert.Equal(t, StateError, s.State())
}

func TestDaemonRunRecordsHistoryAndRunLogs(t *testing.T) {
	dir := t.TempDir()
	writeLauncher(t, dir, "echo hello\nsleep 5\n")
	db := filepath.Join(dir, "history.db")

	cfgPath := filepath.Join(dir, "runkeeper.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
[runner]
name = "daemon-test"
work_dir = "."
autostart = true
stop_timeout = "2s"

[watchdog]
interval = "50ms"
prevent_sleep = false

[run_log]
dir = "logs"

[server]
listen = "127.0.0.1:0"

[history]
sinks = ["sqlite://%s"]
`, db)), 0o644))

	c, err := LoadConfig(cfgPath)
	require.NoError(t, err)

	d, err := NewDaemon(c, DaemonOptions{
		Registerer: prometheus.NewRegistry(),
		Gatherer:   prometheus.NewRegistry(),
		Guard:      guard.Nop{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return d.Supervisor().State() == StateRunning
	}, 3*time.Second, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.JSONEq(t, `{"status":"running"}`, rec.Body.String())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, StateStopped, d.Supervisor().State())

	runs, err := d.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	b, err := os.ReadFile(runs[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "[stdout] hello")

	sink, err := sqlite.New(db)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	n, err := sink.Count(context.Background(), "daemon-test")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewDaemonRejectsBadSink(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)
	c.RunLog.Dir = t.TempDir()
	c.History.Sinks = []string{"kafka://broker:9092"}

	_, err = NewDaemon(c, DaemonOptions{Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DSN scheme")
}

func TestFacadeSentinelErrors(t *testing.T) {
	for _, err := range []error{ErrScriptMissing, ErrSpawnFailure, ErrTerminationTimeout, ErrRestartSuppressed} {
		require.Error(t, err)
		assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), err)
	}
	assert.Equal(t, "restart suppressed", ErrRestartSuppressed.Error())
}
