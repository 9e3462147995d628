package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/navi/internal/config"
	"github.com/pders01/navi/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the per-project daemon",
	Long: `Manage the per-project daemon.

Each project directory gets its own daemon holding a warm connection
to the navigation backend. Commands start it on demand, so explicit
management is only needed to inspect or recycle it.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon for the current project",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon for the current project",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's state",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon for the current project",
	Args:  cobra.NoArgs,
	RunE:  runDaemonRestart,
}

// daemonRunCmd is the detached server process spawned by the
// supervisor. It is hidden because users interact through start/stop.
var daemonRunCmd = &cobra.Command{
	Use:    "run",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runDaemonRun,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonRunCmd)
	rootCmd.AddCommand(daemonCmd)
}

func projectSupervisor() (*daemon.Supervisor, error) {
	workdir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return daemon.NewSupervisor(config.DaemonSettings(workdir))
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	sup, err := projectSupervisor()
	if err != nil {
		return err
	}
	if _, err := sup.EnsureRunning(cmd.Context()); err != nil {
		return err
	}
	return printDaemonStatus(sup.Status(cmd.Context()))
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	sup, err := projectSupervisor()
	if err != nil {
		return err
	}
	if err := sup.Stop(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	sup, err := projectSupervisor()
	if err != nil {
		return err
	}
	return printDaemonStatus(sup.Status(cmd.Context()))
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	sup, err := projectSupervisor()
	if err != nil {
		return err
	}
	if _, err := sup.Restart(cmd.Context()); err != nil {
		return err
	}
	return printDaemonStatus(sup.Status(cmd.Context()))
}

func printDaemonStatus(st daemon.Status) error {
	if jsonOut {
		return printJSON(st)
	}
	switch st.State {
	case daemon.StateRunning:
		fmt.Printf("running (pid %d, %s, idle %s)\n", st.PID, st.Addr, st.IdleFor.Round(time.Second))
	case daemon.StateStarting:
		fmt.Printf("starting (pid %d)\n", st.PID)
	default:
		fmt.Println("stopped")
	}
	return nil
}

func runDaemonRun(cmd *cobra.Command, args []string) error {
	workdir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	settings := config.DaemonSettings(workdir)
	paths, err := daemon.StatePaths(workdir)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := daemon.NewServer(settings, paths, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		// A concurrent start winning the lock race is not a failure.
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return nil
		}
		return err
	}
	return nil
}
