package memstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pders01/navi/internal/backend"
)

// NotFoundError means no memory exists at the given path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory %q not found", e.Path)
}

// AlreadyExistsError means the destination of a move is already populated.
// Moves never overwrite.
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("memory %q already exists", e.Path)
}

// PatternNotFoundError means a literal edit had nothing to substitute.
type PatternNotFoundError struct {
	Path    string
	Pattern string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("pattern %q not found in memory %q", e.Pattern, e.Path)
}

// ArchiveCollisionError means the numeric-suffix search for a unique
// archive destination hit its cap without finding a free name.
type ArchiveCollisionError struct {
	Path     string
	Attempts int
}

func (e *ArchiveCollisionError) Error() string {
	return fmt.Sprintf("no free archive name for %q after %d attempts", e.Path, e.Attempts)
}

// InvalidPathError reports a malformed memory path.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid memory path %q: %s", e.Path, e.Reason)
}

// InvalidPatternError reports an uncompilable regex in an edit.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// isBackendNotFound recognizes the backend's "no such memory" answer. The
// remote store signals absence through tool error text, not a typed code,
// so the match is on the message.
func isBackendNotFound(err error) bool {
	var te *backend.ToolError
	if !errors.As(err, &te) {
		return false
	}
	msg := strings.ToLower(te.Message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
