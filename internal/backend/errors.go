package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// TransportError means the backend could not be reached or did not answer
// in time. It is distinct from ToolError: the request never produced an
// application-level response.
type TransportError struct {
	Reason string // "connect", "timeout", "protocol"
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend transport (%s): %v", e.Reason, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ToolError means the backend answered and reported an application error
// for the invoked tool.
type ToolError struct {
	Tool    string
	Message string
	Hint    string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// UnknownToolError means the tool name is not on the backend's manifest.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

// classify splits an error returned by the MCP layer into a transport
// failure or a remote application failure. Context expiry and network
// errors are transport; everything else came from the backend itself.
func classify(tool string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Reason: "timeout", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &TransportError{Reason: "canceled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		reason := "connect"
		if netErr.Timeout() {
			reason = "timeout"
		}
		return &TransportError{Reason: reason, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Reason: "connect", Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &TransportError{Reason: "connect", Err: err}
	}
	return &ToolError{Tool: tool, Message: err.Error()}
}
