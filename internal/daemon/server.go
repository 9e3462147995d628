// Package daemon implements the per-project warm process: a loopback HTTP
// server holding the backend connection, plus the supervisor that manages
// its lifecycle from the CLI side.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pders01/navi/internal/backend"
	"github.com/pders01/navi/internal/dispatch"
	"github.com/pders01/navi/internal/memstore"
	"github.com/pders01/navi/internal/proto"
)

// ErrAlreadyRunning means another daemon holds the project lock. Treated
// as success by `daemon run`: the goal state is achieved.
var ErrAlreadyRunning = errors.New("daemon already running for this project")

const shutdownGrace = 5 * time.Second

// Settings carries everything a daemon (or its supervisor) needs to know.
type Settings struct {
	Workdir         string
	Host            string
	Port            int
	BackendURL      string
	CallTimeout     time.Duration
	ActivateTimeout time.Duration
	IdleTimeout     time.Duration
	StartupTimeout  time.Duration
	ProbeTimeout    time.Duration
}

// Addr returns the daemon listen address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Server is the daemon process body: one backend connection, one
// dispatcher, an HTTP API, and an idle watcher.
type Server struct {
	settings Settings
	paths    Paths
	log      *slog.Logger

	backend    *backend.Client
	dispatcher *dispatch.Dispatcher

	mu           sync.Mutex
	addr         string
	startedAt    time.Time
	lastActivity time.Time

	shutdownCh chan struct{}
	once       sync.Once
}

// NewServer assembles a daemon for the given settings.
func NewServer(settings Settings, paths Paths, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	bc := backend.New(settings.BackendURL,
		backend.WithTimeouts(settings.CallTimeout, settings.ActivateTimeout),
	)
	s := &Server{
		settings:   settings,
		paths:      paths,
		log:        log,
		backend:    bc,
		shutdownCh: make(chan struct{}),
	}
	store := memstore.New(bc)
	s.dispatcher = dispatch.New(bc, store, dispatch.WithActivityFunc(s.touch))
	return s
}

// Run starts the daemon and blocks until shutdown. It acquires the
// per-project lock, publishes pid and meta files, serves the HTTP API, and
// exits on context cancellation, an explicit shutdown request, or idle
// timeout expiry. Marker files are removed on the way out.
func (s *Server) Run(ctx context.Context) error {
	if err := s.paths.Ensure(); err != nil {
		return err
	}

	lock := NewFileLock(s.paths.LockFile)
	if err := lock.TryAcquire(); err != nil {
		if errors.Is(err, ErrLockHeld) {
			return ErrAlreadyRunning
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	listener, err := net.Listen("tcp", s.settings.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.settings.Addr(), err)
	}

	// Port 0 selects an ephemeral port (used by tests); record the
	// resolved address, not the requested one.
	actualAddr := listener.Addr().String()

	now := time.Now()
	s.mu.Lock()
	s.addr = actualAddr
	s.startedAt = now
	s.lastActivity = now
	s.mu.Unlock()

	meta := Meta{
		PID:       os.Getpid(),
		Addr:      actualAddr,
		Workdir:   s.settings.Workdir,
		StartedAt: now,
	}
	if err := s.paths.WriteMeta(meta); err != nil {
		_ = listener.Close()
		return err
	}
	defer s.paths.Clear()

	srv := &http.Server{Handler: s.routes()}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.log.Info("daemon listening",
		"addr", actualAddr,
		"pid", meta.PID,
		"backend", s.settings.BackendURL,
		"idle_timeout", s.settings.IdleTimeout,
	)

	idle := time.NewTicker(idleCheckInterval(s.settings.IdleTimeout))
	defer idle.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			s.log.Info("daemon stopping", "reason", "signal")
			break loop
		case <-s.shutdownCh:
			s.log.Info("daemon stopping", "reason", "shutdown request")
			break loop
		case err := <-errCh:
			runErr = fmt.Errorf("daemon server: %w", err)
			break loop
		case <-idle.C:
			if s.idleFor() >= s.settings.IdleTimeout {
				s.log.Info("daemon stopping", "reason", "idle timeout", "idle", s.idleFor())
				break loop
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", "error", err)
	}
	if err := s.backend.Close(); err != nil {
		s.log.Warn("backend close", "error", err)
	}
	return runErr
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/status", s.handleStatus)
	r.Post("/v1/command", s.handleCommand)
	r.Post("/v1/shutdown", s.handleShutdown)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	st := ServerStatus{
		PID:          os.Getpid(),
		Addr:         s.addr,
		BackendURL:   s.settings.BackendURL,
		StartedAt:    s.startedAt,
		LastActivity: s.lastActivity,
		IdleSeconds:  time.Since(s.lastActivity).Seconds(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd proto.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, fmt.Sprintf("malformed command: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	res := s.dispatcher.Dispatch(r.Context(), cmd)
	if res.OK {
		s.log.Info("command", "name", cmd.Name, "id", cmd.ID, "elapsed", time.Since(start))
	} else {
		s.log.Warn("command failed", "name", cmd.Name, "id", cmd.ID, "kind", res.Error.Kind, "error", res.Error.Message)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	s.once.Do(func() { close(s.shutdownCh) })
}

// Addr returns the resolved listen address, or "" before Run has bound
// the listener.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// idleCheckInterval keeps the watcher responsive for short test timeouts
// without waking a long-lived daemon too often.
func idleCheckInterval(idleTimeout time.Duration) time.Duration {
	interval := idleTimeout / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < 25*time.Millisecond {
		interval = 25 * time.Millisecond
	}
	return interval
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
