package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/runkeeper/internal/env"
	"github.com/loykin/runkeeper/internal/logger"
	"github.com/loykin/runkeeper/internal/policy"
	"github.com/loykin/runkeeper/internal/process"
	"github.com/loykin/runkeeper/internal/schedule"
)

// EnvPrefix is the prefix of environment overrides, e.g. RUNKEEPER_SERVER_LISTEN.
const EnvPrefix = "RUNKEEPER"

// Config represents the top-level TOML structure.
type Config struct {
	Runner   RunnerConfig   `toml:"runner" mapstructure:"runner"`
	Restart  RestartConfig  `toml:"restart" mapstructure:"restart"`
	Watchdog WatchdogConfig `toml:"watchdog" mapstructure:"watchdog"`
	Schedule ScheduleConfig `toml:"schedule" mapstructure:"schedule"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	RunLog   RunLogConfig   `toml:"run_log" mapstructure:"run_log"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
}

type RunnerConfig struct {
	Name        string        `toml:"name" mapstructure:"name"`
	WorkDir     string        `toml:"work_dir" mapstructure:"work_dir"`
	Launcher    string        `toml:"launcher" mapstructure:"launcher"`
	Args        []string      `toml:"args" mapstructure:"args"`
	Env         []string      `toml:"env" mapstructure:"env"`
	EnvFiles    []string      `toml:"env_files" mapstructure:"env_files"`
	StopTimeout time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	Autostart   bool          `toml:"autostart" mapstructure:"autostart"`
}

type RestartConfig struct {
	Window      time.Duration `toml:"window" mapstructure:"window"`
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Cooldown    time.Duration `toml:"cooldown" mapstructure:"cooldown"`
}

type WatchdogConfig struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	Interval     time.Duration `toml:"interval" mapstructure:"interval"`
	PreventSleep bool          `toml:"prevent_sleep" mapstructure:"prevent_sleep"`
}

// ScheduleConfig enables cron-driven restarts of a running runner.
type ScheduleConfig struct {
	Restart  string `toml:"restart" mapstructure:"restart"`     // cron expression; empty disables
	TimeZone string `toml:"time_zone" mapstructure:"time_zone"` // IANA name; empty means local time
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	ShowTime   bool   `toml:"show_time" mapstructure:"show_time"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type RunLogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Keep       int    `toml:"keep" mapstructure:"keep"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Sinks   []string      `toml:"sinks" mapstructure:"sinks"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("runner.name", "runner")
	v.SetDefault("runner.work_dir", ".")
	v.SetDefault("runner.launcher", process.DefaultScript)
	v.SetDefault("runner.args", []string{})
	v.SetDefault("runner.env", []string{})
	v.SetDefault("runner.env_files", []string{})
	v.SetDefault("runner.stop_timeout", "5s")
	v.SetDefault("runner.autostart", false)

	v.SetDefault("restart.window", policy.DefaultWindow.String())
	v.SetDefault("restart.max_attempts", policy.DefaultMaxAttempts)
	v.SetDefault("restart.cooldown", policy.DefaultCooldown.String())

	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.interval", "5s")
	v.SetDefault("watchdog.prevent_sleep", true)

	v.SetDefault("schedule.restart", "")
	v.SetDefault("schedule.time_zone", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.show_time", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("run_log.dir", "logs")
	v.SetDefault("run_log.keep", 5)
	v.SetDefault("run_log.max_size_mb", 10)
	v.SetDefault("run_log.max_backups", 3)
	v.SetDefault("run_log.compress", false)

	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.listen", "")

	v.SetDefault("history.sinks", []string{})
	v.SetDefault("history.timeout", "5s")
}

// Load reads the TOML file at path (optional) on top of the defaults and
// applies RUNKEEPER_* environment overrides. Relative paths in the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base := ""
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		base = filepath.Dir(path)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if base != "" {
		c.Runner.WorkDir = resolve(base, c.Runner.WorkDir)
		c.RunLog.Dir = resolve(base, c.RunLog.Dir)
		if c.Log.File != "" {
			c.Log.File = resolve(base, c.Log.File)
		}
		for i, f := range c.Runner.EnvFiles {
			c.Runner.EnvFiles[i] = resolve(base, f)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate rejects non-positive durations and limits.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Runner.Name) == "" {
		errs = append(errs, errors.New("runner.name must not be empty"))
	}
	if strings.TrimSpace(c.Runner.Launcher) == "" {
		errs = append(errs, errors.New("runner.launcher must not be empty"))
	}
	if c.Runner.StopTimeout <= 0 {
		errs = append(errs, errors.New("runner.stop_timeout must be positive"))
	}
	if c.Restart.Window <= 0 {
		errs = append(errs, errors.New("restart.window must be positive"))
	}
	if c.Restart.MaxAttempts <= 0 {
		errs = append(errs, errors.New("restart.max_attempts must be positive"))
	}
	if c.Restart.Cooldown < 0 {
		errs = append(errs, errors.New("restart.cooldown must not be negative"))
	}
	if c.Watchdog.Enabled && c.Watchdog.Interval <= 0 {
		errs = append(errs, errors.New("watchdog.interval must be positive"))
	}
	if c.Schedule.Restart != "" {
		if err := schedule.Validate(c.Schedule.Restart, c.Schedule.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.RunLog.Keep <= 0 {
		errs = append(errs, errors.New("run_log.keep must be positive"))
	}
	if c.RunLog.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("run_log.max_size_mb must be positive"))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path must start with '/', got %q", c.Server.BasePath))
	}
	if c.History.Timeout <= 0 {
		errs = append(errs, errors.New("history.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// LoggerConfig maps the [log] section onto the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Color:      c.Log.Color,
		ShowTime:   c.Log.ShowTime,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// RunnerEnv merges env_files in order and then the env list; later entries
// win. ${VAR} references are expanded against the merged set, then the OS.
func (c *Config) RunnerEnv() ([]string, error) {
	e := env.New()
	for _, p := range c.Runner.EnvFiles {
		if err := e.LoadFile(p); err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
	}
	e.SetPairs(c.Runner.Env)
	return e.List(), nil
}
