package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pders01/navi/internal/proto"
)

// ServerStatus is the daemon's answer on /v1/status.
type ServerStatus struct {
	PID          int       `json:"pid"`
	Addr         string    `json:"addr"`
	BackendURL   string    `json:"backend_url"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	IdleSeconds  float64   `json:"idle_seconds"`
}

// Client talks to a running daemon over its loopback HTTP API.
type Client struct {
	baseURL      string
	http         *http.Client
	probeTimeout time.Duration
}

// NewClient creates a daemon client for the given listen address.
func NewClient(addr string, probeTimeout time.Duration) *Client {
	if probeTimeout <= 0 {
		probeTimeout = 750 * time.Millisecond
	}
	return &Client{
		baseURL:      "http://" + addr,
		http:         &http.Client{},
		probeTimeout: probeTimeout,
	}
}

// Healthy reports whether the daemon answers its health probe. The probe
// is deliberately short: a dead daemon should be detected in well under a
// second so the caller can restart it.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Status fetches the daemon's runtime status.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon status: unexpected HTTP %d", resp.StatusCode)
	}
	var st ServerStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding daemon status: %w", err)
	}
	return &st, nil
}

// Command sends a command for dispatch and returns the result. Command
// failures ride inside the Result; a returned error means the daemon
// itself was unreachable or misbehaved.
func (c *Client) Command(ctx context.Context, cmd proto.Command) (*proto.Result, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/command", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending command to daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("daemon returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var res proto.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding daemon result: %w", err)
	}
	return &res, nil
}

// Shutdown asks the daemon to exit gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon shutdown: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon shutdown: unexpected HTTP %d", resp.StatusCode)
	}
	return nil
}
