package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/loykin/runkeeper"
	"github.com/loykin/runkeeper/pkg/client"
)

type command struct {
	out io.Writer
}

func (c command) apiClient(ctx context.Context, f ControlFlags) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	cl := client.New(cfg)
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'runkeeper serve'", cfg.BaseURL)
	}
	return cl, nil
}

// Status prints the runner state, or the full snapshot with --detailed.
func (c command) Status(ctx context.Context, f ControlFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	if f.Detailed {
		d, err := cl.Detail(ctx)
		if err != nil {
			return err
		}
		c.printJSON(d)
		return nil
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, st)
	return nil
}

// Operation runs start, stop or restart on the daemon and prints the resulting state.
func (c command) Operation(ctx context.Context, op string, f ControlFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	var st string
	switch op {
	case "start":
		st, err = cl.Start(ctx)
	case "stop":
		st, err = cl.Stop(ctx)
	case "restart":
		st, err = cl.Restart(ctx)
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, st)
	return nil
}

// Logs lists run log files from the configured directory without a daemon.
func (c command) Logs(f LogsFlags) error {
	cfg, err := runkeeper.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	runs, err := runkeeper.RunLogs(cfg)
	if err != nil {
		return err
	}
	if !f.Latest {
		for _, r := range runs {
			_, _ = fmt.Fprintln(c.out, r)
		}
		return nil
	}
	if len(runs) == 0 {
		return errors.New("no run logs found")
	}
	fh, err := os.Open(runs[0])
	if err != nil {
		return err
	}
	defer func() { _ = fh.Close() }()
	_, err = io.Copy(c.out, fh)
	return err
}

func (c command) printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(c.out, string(b))
}
