package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/runkeeper/internal/process"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "runner", c.Runner.Name)
	assert.Equal(t, process.DefaultScript, c.Runner.Launcher)
	assert.Equal(t, 5*time.Second, c.Runner.StopTimeout)
	assert.Equal(t, time.Minute, c.Restart.Window)
	assert.Equal(t, 5, c.Restart.MaxAttempts)
	assert.Equal(t, 5*time.Second, c.Restart.Cooldown)
	assert.True(t, c.Watchdog.Enabled)
	assert.Equal(t, 5*time.Second, c.Watchdog.Interval)
	assert.Equal(t, 5, c.RunLog.Keep)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.Empty(t, c.History.Sinks)
}

func TestLoadFileOverridesAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runkeeper.toml", `
[runner]
name = "miner"
work_dir = "app"
args = ["--fast"]
stop_timeout = "2s"
autostart = true

[restart]
window = "30s"
max_attempts = 3
cooldown = "1s"

[watchdog]
interval = "250ms"
prevent_sleep = false

[log]
level = "debug"
format = "json"
file = "daemon.log"

[run_log]
dir = "/var/log/miner"
keep = 2

[server]
listen = ":9000"
base_path = "/control"

[history]
sinks = ["sqlite://history.db"]
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "miner", c.Runner.Name)
	assert.Equal(t, filepath.Join(dir, "app"), c.Runner.WorkDir)
	assert.Equal(t, []string{"--fast"}, c.Runner.Args)
	assert.Equal(t, 2*time.Second, c.Runner.StopTimeout)
	assert.True(t, c.Runner.Autostart)
	assert.Equal(t, 30*time.Second, c.Restart.Window)
	assert.Equal(t, 3, c.Restart.MaxAttempts)
	assert.Equal(t, time.Second, c.Restart.Cooldown)
	assert.Equal(t, 250*time.Millisecond, c.Watchdog.Interval)
	assert.False(t, c.Watchdog.PreventSleep)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, filepath.Join(dir, "daemon.log"), c.Log.File)
	assert.Equal(t, "/var/log/miner", c.RunLog.Dir)
	assert.Equal(t, 2, c.RunLog.Keep)
	assert.Equal(t, ":9000", c.Server.Listen)
	assert.Equal(t, "/control", c.Server.BasePath)
	assert.Equal(t, []string{"sqlite://history.db"}, c.History.Sinks)

	lc := c.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, c.Log.File, lc.File)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RUNKEEPER_RESTART_MAX_ATTEMPTS", "7")
	t.Setenv("RUNKEEPER_SERVER_LISTEN", "0.0.0.0:1234")
	t.Setenv("RUNKEEPER_WATCHDOG_ENABLED", "false")

	dir := t.TempDir()
	path := writeFile(t, dir, "c.toml", "[restart]\nmax_attempts = 2\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Restart.MaxAttempts)
	assert.Equal(t, "0.0.0.0:1234", c.Server.Listen)
	assert.False(t, c.Watchdog.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"stop timeout": "[runner]\nstop_timeout = \"0s\"\n",
		"window":       "[restart]\nwindow = \"-1s\"\n",
		"attempts":     "[restart]\nmax_attempts = 0\n",
		"cooldown":     "[restart]\ncooldown = \"-5s\"\n",
		"interval":     "[watchdog]\ninterval = \"0s\"\n",
		"level":        "[log]\nlevel = \"loud\"\n",
		"format":       "[log]\nformat = \"xml\"\n",
		"keep":         "[run_log]\nkeep = 0\n",
		"base path":    "[server]\nbase_path = \"api\"\n",
		"empty name":   "[runner]\nname = \"\"\n",
		"schedule":     "[schedule]\nrestart = \"every day\"\n",
		"time zone":    "[schedule]\nrestart = \"0 4 * * *\"\ntime_zone = \"Mars/Olympus\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.toml", data)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestZeroCooldownAllowed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "c.toml", "[restart]\ncooldown = \"0s\"\n[watchdog]\nenabled = false\ninterval = \"0s\"\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, c.Restart.Cooldown)
}

func TestRunnerEnvMerge(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OS_ONLY", "osv")
	dotenv := writeFile(t, dir, ".env", "A=1\n#comment\nB=two\nCHAIN=${OS_ONLY}-x\n")
	c := &Config{Runner: RunnerConfig{
		EnvFiles: []string{dotenv},
		Env:      []string{"B=override", "C=${A}${B}", "bad"},
	}}
	env, err := c.RunnerEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=override", "CHAIN=osv-x", "C=1override"}, env)

	c.Runner.EnvFiles = []string{filepath.Join(dir, "missing.env")}
	_, err = c.RunnerEnv()
	assert.Error(t, err)
}

func TestScheduleSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "c.toml", "[schedule]\nrestart = \"0 4 * * *\"\ntime_zone = \"UTC\"\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0 4 * * *", c.Schedule.Restart)
	assert.Equal(t, "UTC", c.Schedule.TimeZone)
}
