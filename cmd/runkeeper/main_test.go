package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"net/http/httptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/runkeeper"
)

func TestRootHasCommands(t *testing.T) {
	root := buildRoot()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "status", "start", "stop", "restart", "logs"} {
		assert.Contains(t, names, want)
	}
	f := root.PersistentFlags().Lookup("config")
	require.NotNil(t, f)
}

func TestHelpMentionsRunkeeper(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "runkeeper")
}

func TestServeRejectsExtraArgs(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "a.toml", "b.toml"})
	assert.Error(t, root.Execute())
}

func TestServeReportsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[restart]\nmax_attempts = 0\n"), 0o644))
	err := runServeCommand(context.Background(), &ServeFlags{}, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestControlUnreachableDaemon(t *testing.T) {
	var out bytes.Buffer
	c := command{out: &out}
	err := c.Status(context.Background(), ControlFlags{APIUrl: "http://127.0.0.1:1/api", APITimeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestControlAgainstDaemonAPI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sleep")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("sleep 5\n"), 0o644))
	s := runkeeper.New(runkeeper.SupervisorConfig{Name: "cli", WorkDir: dir, StopTimeout: 2 * time.Second})
	defer func() { _ = s.Shutdown(context.Background()) }()

	srv := httptest.NewServer(runkeeper.NewHandler(s, "/api", nil))
	defer srv.Close()

	var out bytes.Buffer
	c := command{out: &out}
	f := ControlFlags{APIUrl: srv.URL + "/api", APITimeout: 2 * time.Second}

	require.NoError(t, c.Operation(context.Background(), "start", f))
	assert.Equal(t, "running", strings.TrimSpace(out.String()))

	out.Reset()
	f.Detailed = true
	require.NoError(t, c.Status(context.Background(), f))
	assert.Contains(t, out.String(), `"name": "cli"`)

	out.Reset()
	f.Detailed = false
	require.NoError(t, c.Operation(context.Background(), "stop", f))
	assert.Equal(t, "stopped", strings.TrimSpace(out.String()))

	assert.Error(t, c.Operation(context.Background(), "pause", f))
}

func TestLogsListsAndPrintsLatest(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "runkeeper.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[runner]\nname = \"svc\"\n[run_log]\ndir = \"logs\"\n"), 0o644))

	var out bytes.Buffer
	c := command{out: &out}
	require.Error(t, c.Logs(LogsFlags{ConfigPath: cfgPath, Latest: true}))

	logs := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))
	older := filepath.Join(logs, "svc-20240101-000000.000.log")
	newer := filepath.Join(logs, "svc-20240102-000000.000.log")
	require.NoError(t, os.WriteFile(older, []byte("old run\n"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("new run\n"), 0o644))

	require.NoError(t, c.Logs(LogsFlags{ConfigPath: cfgPath}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, newer, lines[0])

	out.Reset()
	require.NoError(t, c.Logs(LogsFlags{ConfigPath: cfgPath, Latest: true}))
	assert.Equal(t, "new run\n", out.String())
}
