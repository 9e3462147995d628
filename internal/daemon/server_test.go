package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pders01/navi/internal/proto"
	"github.com/pders01/navi/internal/testutil"
)

func testSettings(t *testing.T, idle time.Duration) Settings {
	t.Helper()
	testutil.StateDir(t)
	return Settings{
		Workdir:      t.TempDir(),
		Host:         "127.0.0.1",
		Port:         0,
		BackendURL:   "http://127.0.0.1:1/mcp",
		IdleTimeout:  idle,
		ProbeTimeout: 250 * time.Millisecond,
	}
}

// startServer runs a daemon on an ephemeral port and returns it with its
// resolved address and a channel carrying Run's return value.
func startServer(t *testing.T, settings Settings) (*Server, string, <-chan error) {
	t.Helper()

	paths, err := StatePaths(settings.Workdir)
	if err != nil {
		t.Fatalf("state paths: %v", err)
	}
	srv := NewServer(settings, paths, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not bind a listener")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv, srv.Addr(), done
}

func TestServerHealthAndStatus(t *testing.T) {
	ctx := context.Background()
	settings := testSettings(t, time.Minute)
	_, addr, _ := startServer(t, settings)

	client := NewClient(addr, settings.ProbeTimeout)
	if !client.Healthy(ctx) {
		t.Fatal("daemon not healthy after startup")
	}

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.PID <= 0 {
		t.Errorf("status pid = %d", st.PID)
	}
	if st.Addr != addr {
		t.Errorf("status addr = %q, want %q", st.Addr, addr)
	}
	if st.BackendURL != settings.BackendURL {
		t.Errorf("status backend = %q, want %q", st.BackendURL, settings.BackendURL)
	}
}

func TestServerWritesAndClearsState(t *testing.T) {
	ctx := context.Background()
	settings := testSettings(t, time.Minute)
	_, addr, done := startServer(t, settings)

	paths, err := StatePaths(settings.Workdir)
	if err != nil {
		t.Fatalf("state paths: %v", err)
	}
	meta, ok := paths.ReadMeta()
	if !ok {
		t.Fatal("no meta file while daemon runs")
	}
	if meta.Addr != addr {
		t.Errorf("meta addr = %q, want %q", meta.Addr, addr)
	}

	client := NewClient(addr, settings.ProbeTimeout)
	if err := client.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not exit after shutdown request")
	}

	if _, ok := paths.ReadMeta(); ok {
		t.Error("meta file survived shutdown")
	}
}

func TestServerDispatchesCommands(t *testing.T) {
	ctx := context.Background()
	settings := testSettings(t, time.Minute)
	_, addr, _ := startServer(t, settings)

	client := NewClient(addr, settings.ProbeTimeout)

	// An unknown command fails inside the dispatcher, before any backend
	// connection is attempted, so it exercises the full HTTP round trip
	// without a live backend.
	res, err := client.Command(ctx, proto.NewCommand("frobnicate", nil))
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if res.OK {
		t.Fatal("unknown command reported success")
	}
	if res.Error.Kind != proto.KindUnknownCommand {
		t.Errorf("kind = %q, want %q", res.Error.Kind, proto.KindUnknownCommand)
	}
}

func TestServerIdleShutdown(t *testing.T) {
	settings := testSettings(t, 200*time.Millisecond)
	_, _, done := startServer(t, settings)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not exit on idle timeout")
	}
}

func TestServerSingleInstancePerProject(t *testing.T) {
	settings := testSettings(t, time.Minute)
	_, _, _ = startServer(t, settings)

	paths, err := StatePaths(settings.Workdir)
	if err != nil {
		t.Fatalf("state paths: %v", err)
	}
	second := NewServer(settings, paths, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := second.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second run = %v, want ErrAlreadyRunning", err)
	}
}

func TestIdleCheckInterval(t *testing.T) {
	tests := []struct {
		name     string
		idle     time.Duration
		expected time.Duration
	}{
		{name: "clamped low", idle: 10 * time.Millisecond, expected: 25 * time.Millisecond},
		{name: "quarter of timeout", idle: 2 * time.Minute, expected: 30 * time.Second},
		{name: "clamped high", idle: time.Hour, expected: 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idleCheckInterval(tt.idle); got != tt.expected {
				t.Errorf("idleCheckInterval(%v) = %v, want %v", tt.idle, got, tt.expected)
			}
		})
	}
}
