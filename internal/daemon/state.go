package daemon

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Paths locates the transient operational state for one project directory.
// Everything lives under a per-project subdirectory keyed by a hash of the
// working directory, so each project gets at most one daemon.
type Paths struct {
	Dir      string
	PidFile  string
	LockFile string
	// StartLock serializes concurrent EnsureRunning callers during
	// startup; it is separate from LockFile, which the daemon process
	// itself holds for its whole lifetime.
	StartLock string
	MetaFile  string
	LogFile   string
}

// StatePaths derives the state file locations for a working directory.
// The base defaults to ~/.local/state/navi and can be overridden for tests
// via the NAVI_STATE_DIR environment variable.
func StatePaths(workdir string) (Paths, error) {
	base := os.Getenv("NAVI_STATE_DIR")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolving home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "state", "navi")
	}

	sum := sha256.Sum256([]byte(workdir))
	dir := filepath.Join(base, fmt.Sprintf("%x", sum[:8]))
	return Paths{
		Dir:       dir,
		PidFile:   filepath.Join(dir, "daemon.pid"),
		LockFile:  filepath.Join(dir, "daemon.lock"),
		StartLock: filepath.Join(dir, "start.lock"),
		MetaFile:  filepath.Join(dir, "daemon.json"),
		LogFile:   filepath.Join(dir, "daemon.log"),
	}, nil
}

// Ensure creates the state directory.
func (p Paths) Ensure() error {
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// Meta records the identity of a running daemon for status queries.
type Meta struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	Workdir   string    `json:"workdir"`
	StartedAt time.Time `json:"started_at"`
}

// WriteMeta persists the daemon identity (and the pid file alongside it).
func (p Paths) WriteMeta(m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding daemon meta: %w", err)
	}
	if err := os.WriteFile(p.MetaFile, data, 0o600); err != nil {
		return fmt.Errorf("writing daemon meta: %w", err)
	}
	if err := os.WriteFile(p.PidFile, []byte(strconv.Itoa(m.PID)+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// ReadMeta loads the daemon identity, if present.
func (p Paths) ReadMeta() (Meta, bool) {
	data, err := os.ReadFile(p.MetaFile)
	if err != nil {
		return Meta{}, false
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, false
	}
	return m, true
}

// ReadPid returns the recorded daemon pid, if any.
func (p Paths) ReadPid() (int, bool) {
	data, err := os.ReadFile(p.PidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Clear removes the transient marker files. Called on clean shutdown and
// when stale state is detected.
func (p Paths) Clear() {
	_ = os.Remove(p.PidFile)
	_ = os.Remove(p.MetaFile)
}
