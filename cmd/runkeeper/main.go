package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	controlFlags := &ControlFlags{}
	logsFlags := &LogsFlags{}

	c := command{out: os.Stdout}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(c, controlFlags),
		createOperationCommand(c, controlFlags, "start", "Start the runner"),
		createOperationCommand(c, controlFlags, "stop", "Stop the runner and disable automatic restarts"),
		createOperationCommand(c, controlFlags, "restart", "Stop and start the runner"),
		createLogsCommand(c, globalFlags, logsFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "runkeeper",
		Short: "Keep a single launcher script running",
		Long: `Runkeeper supervises one launcher script: it restarts it when it exits,
stops restarting when it crash-loops, and exposes a small HTTP control API.

Examples:
  runkeeper serve runkeeper.toml     # Start daemon
  runkeeper status
  runkeeper restart --api-url=http://remote:8765/api`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// addAPIFlags registers the remote daemon connection flags on cmd.
func addAPIFlags(cmd *cobra.Command, flags *ControlFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8765/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func createStatusCommand(c command, flags *ControlFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the runner state",
		Long: `Show the runner state reported by the daemon.

Examples:
  runkeeper status
  runkeeper status --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Detailed, "detailed", false, "print pid, restarts and last exit")
	addAPIFlags(cmd, flags)
	return cmd
}

// createOperationCommand creates one of start, stop or restart.
func createOperationCommand(c command, flags *ControlFlags, op, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Operation(cmd.Context(), op, *flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervisor daemon",
		Long: `Run the supervisor daemon in the foreground until SIGINT or SIGTERM.
The config file may be given with --config or as the only argument; without
one, defaults and RUNKEEPER_* environment variables are used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(cmd.Context(), serveFlags, args)
		},
	}
	return cmd
}

func createLogsCommand(c command, globalFlags *GlobalFlags, logsFlags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List the kept run logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logsFlags.ConfigPath = globalFlags.ConfigPath
			return c.Logs(*logsFlags)
		},
	}
	cmd.Flags().BoolVar(&logsFlags.Latest, "latest", false, "print the newest run log")
	return cmd
}
