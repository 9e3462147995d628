package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// startupPollInterval is how often EnsureRunning re-probes a starting
// daemon.
const startupPollInterval = 100 * time.Millisecond

// State is the supervisor's view of the daemon lifecycle.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// StartupTimeoutError means the daemon did not become healthy within the
// configured startup window.
type StartupTimeoutError struct {
	Addr   string
	Waited time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("daemon at %s did not become healthy within %s", e.Addr, e.Waited)
}

// Status describes the daemon as observed from outside.
type Status struct {
	State        State         `json:"state"`
	PID          int           `json:"pid,omitempty"`
	Addr         string        `json:"addr,omitempty"`
	StartedAt    time.Time     `json:"started_at,omitzero"`
	LastActivity time.Time     `json:"last_activity,omitzero"`
	IdleFor      time.Duration `json:"idle_for,omitempty"`
}

// Supervisor manages the lifecycle of the per-project daemon from the
// CLI side. It owns no daemon state itself: the truth lives in the health
// probe, the pid file, and the project lock, so a crashed daemon is never
// reported as running past one failed probe.
type Supervisor struct {
	settings Settings
	paths    Paths

	// spawnFn launches the daemon process. Tests swap it to start an
	// in-process server instead of forking the test binary.
	spawnFn func() error
}

// NewSupervisor creates a supervisor for the given settings.
func NewSupervisor(settings Settings) (*Supervisor, error) {
	paths, err := StatePaths(settings.Workdir)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{settings: settings, paths: paths}
	s.spawnFn = s.spawn
	return s, nil
}

// Client returns a daemon client for the supervised address.
func (s *Supervisor) Client() *Client {
	return NewClient(s.settings.Addr(), s.settings.ProbeTimeout)
}

// EnsureRunning makes sure a healthy daemon exists and returns a client
// for it. Concurrent callers across processes serialize on an advisory
// startup lock: the first caller spawns, the rest block until it is
// healthy and then reuse it.
func (s *Supervisor) EnsureRunning(ctx context.Context) (*Client, error) {
	client := s.Client()
	if client.Healthy(ctx) {
		return client, nil
	}

	if err := s.paths.Ensure(); err != nil {
		return nil, err
	}
	startLock := NewFileLock(s.paths.StartLock)
	if err := startLock.Acquire(); err != nil {
		return nil, fmt.Errorf("acquiring startup lock: %w", err)
	}
	defer func() { _ = startLock.Release() }()

	// Another caller may have finished startup while this one waited on
	// the lock.
	if client.Healthy(ctx) {
		return client, nil
	}

	if pid, ok := s.paths.ReadPid(); ok && !pidAlive(pid) {
		// Stale marker from a daemon that died without cleanup.
		s.paths.Clear()
	}

	if pid, ok := s.paths.ReadPid(); !ok || !pidAlive(pid) {
		if err := s.spawnFn(); err != nil {
			return nil, err
		}
	}

	if err := s.waitHealthy(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Stop shuts the daemon down gracefully. It is idempotent: a stopped
// daemon is a no-op, not an error.
func (s *Supervisor) Stop(ctx context.Context) error {
	client := s.Client()
	if client.Healthy(ctx) {
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
		return s.waitStopped(ctx, client)
	}

	// Not answering the probe, but a process may still exist.
	if pid, ok := s.paths.ReadPid(); ok && pidAlive(pid) {
		if err := terminate(pid); err != nil {
			return fmt.Errorf("signaling daemon pid %d: %w", pid, err)
		}
	}
	s.paths.Clear()
	return nil
}

// Restart stops then starts the daemon.
func (s *Supervisor) Restart(ctx context.Context) (*Client, error) {
	if err := s.Stop(ctx); err != nil {
		return nil, err
	}
	return s.EnsureRunning(ctx)
}

// Status reports the current state, pid, and idle time.
func (s *Supervisor) Status(ctx context.Context) Status {
	client := s.Client()
	if st, err := client.Status(ctx); err == nil {
		return Status{
			State:        StateRunning,
			PID:          st.PID,
			Addr:         st.Addr,
			StartedAt:    st.StartedAt,
			LastActivity: st.LastActivity,
			IdleFor:      time.Duration(st.IdleSeconds * float64(time.Second)),
		}
	}
	if pid, ok := s.paths.ReadPid(); ok && pidAlive(pid) {
		return Status{State: StateStarting, PID: pid, Addr: s.settings.Addr()}
	}
	return Status{State: StateStopped}
}

// spawn launches a detached `navi daemon run` bound to the project
// directory, with its output redirected to the daemon log.
func (s *Supervisor) spawn() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	logFile, err := os.OpenFile(s.paths.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "daemon", "run")
	cmd.Dir = s.settings.Workdir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}
	// The daemon outlives this process; do not wait on it.
	return cmd.Process.Release()
}

func (s *Supervisor) waitHealthy(ctx context.Context, client *Client) error {
	deadline := time.Now().Add(s.settings.StartupTimeout)
	for time.Now().Before(deadline) {
		if client.Healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupPollInterval):
		}
	}
	return &StartupTimeoutError{Addr: s.settings.Addr(), Waited: s.settings.StartupTimeout}
}

func (s *Supervisor) waitStopped(ctx context.Context, client *Client) error {
	deadline := time.Now().Add(shutdownGrace)
	for time.Now().Before(deadline) {
		if !client.Healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupPollInterval):
		}
	}
	return fmt.Errorf("daemon at %s did not stop within %s", s.settings.Addr(), shutdownGrace)
}

// pidAlive checks whether a process with the given pid exists.
func pidAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}
