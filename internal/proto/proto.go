// Package proto defines the wire types exchanged between the navi CLI and
// the per-project daemon. Both sides marshal these as JSON over the loopback
// HTTP API, so every field needs a stable tag.
package proto

import (
	"fmt"

	"github.com/google/uuid"
)

// Error kinds carried in Result.Error.Kind. These are stable strings:
// the CLI matches on them to decide exit behavior and hints.
const (
	KindUnknownCommand   = "unknown_command"
	KindMissingParameter = "missing_parameter"
	KindInvalidParameter = "invalid_parameter"
	KindUnknownTool      = "unknown_tool"
	KindTransportError   = "transport_error"
	KindToolError        = "tool_error"
	KindNotFound         = "not_found"
	KindAlreadyExists    = "already_exists"
	KindPatternNotFound  = "pattern_not_found"
	KindArchiveCollision = "archive_collision"
	KindStartupTimeout   = "startup_timeout"
	KindInternal         = "internal"
)

// Command is a single request from the CLI to the dispatcher.
type Command struct {
	// ID correlates a request with its result in the daemon log.
	ID string `json:"id"`
	// Name is one of the registered command names (e.g. "find-symbol",
	// "memory.write").
	Name string `json:"name"`
	// Params holds the command's keyword parameters. Values are the JSON
	// scalar types: string, float64, bool.
	Params map[string]any `json:"params,omitempty"`
	// RawBody carries free-text payloads (memory content, code bodies)
	// that should not go through parameter validation.
	RawBody string `json:"raw_body,omitempty"`
}

// NewCommand builds a Command with a fresh request ID.
func NewCommand(name string, params map[string]any) Command {
	return Command{ID: uuid.NewString(), Name: name, Params: params}
}

// Error is the wire form of a failed operation. Kind is one of the Kind*
// constants; Op and Subject say which operation was attempted on what, so
// no failure ever surfaces without context.
type Error struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Op != "" && e.Subject != "" {
		return fmt.Sprintf("%s: %s %q: %s", e.Kind, e.Op, e.Subject, e.Message)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Result is the dispatcher's answer to a Command. Exactly one of Data or
// Error is populated. Warning is set for operations that succeeded with a
// caveat the caller must see (e.g. a residual source after a partial move).
type Result struct {
	ID        string  `json:"id"`
	OK        bool    `json:"ok"`
	Data      any     `json:"data,omitempty"`
	Warning   string  `json:"warning,omitempty"`
	Error     *Error  `json:"error,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// Success builds an OK result for a command.
func Success(cmd Command, data any, elapsedMS float64) *Result {
	return &Result{ID: cmd.ID, OK: true, Data: data, ElapsedMS: elapsedMS}
}

// Failure builds an error result for a command.
func Failure(cmd Command, err *Error, elapsedMS float64) *Result {
	return &Result{ID: cmd.ID, OK: false, Error: err, ElapsedMS: elapsedMS}
}
