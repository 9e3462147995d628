// Package dispatch maps the stable command surface onto backend and memory
// store operations.
//
// It is the single entry point for command execution: the daemon routes
// every HTTP request through a Dispatcher, and `--no-daemon` invocations
// run one in-process. Validation happens before any remote call, and
// outbound backend calls are serialized — the remote server is not safe
// for concurrent requests, so at most one call is in flight per process.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pders01/navi/internal/backend"
	"github.com/pders01/navi/internal/memstore"
	"github.com/pders01/navi/internal/proto"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithActivityFunc registers a hook called after every successful dispatch.
// The daemon feeds its idle-timeout clock with it.
func WithActivityFunc(fn func()) Option {
	return func(d *Dispatcher) { d.onActivity = fn }
}

// Dispatcher validates and routes commands.
type Dispatcher struct {
	backend    backend.Invoker
	store      *memstore.Store
	onActivity func()

	// mu serializes every backend-touching section: one in-flight remote
	// call at a time, queued FIFO by lock acquisition.
	mu sync.Mutex
}

// New creates a Dispatcher over a backend and its memory store.
func New(inv backend.Invoker, store *memstore.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{backend: inv, store: store}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes a single command and always returns a Result; errors
// are folded into the result rather than returned.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd proto.Command) *proto.Result {
	start := time.Now()
	elapsed := func() float64 { return float64(time.Since(start).Microseconds()) / 1000 }

	spec, ok := registry[cmd.Name]
	if !ok {
		return proto.Failure(cmd, &proto.Error{
			Kind:    proto.KindUnknownCommand,
			Op:      cmd.Name,
			Message: fmt.Sprintf("unknown command %q", cmd.Name),
		}, elapsed())
	}

	p, perr := validate(spec, cmd.Params)
	if perr != nil {
		perr.Op = cmd.Name
		return proto.Failure(cmd, perr, elapsed())
	}

	d.mu.Lock()
	data, warning, err := spec.handler(ctx, d, cmd, p)
	d.mu.Unlock()

	if err != nil {
		return proto.Failure(cmd, toProtoError(cmd.Name, err), elapsed())
	}
	if d.onActivity != nil {
		d.onActivity()
	}
	res := proto.Success(cmd, data, elapsed())
	res.Warning = warning
	return res
}

// toProtoError folds the typed error taxonomy into wire kinds. Wrapped
// errors are unwrapped with errors.As, so fmt.Errorf chains keep their
// classification.
func toProtoError(op string, err error) *proto.Error {
	var pe *proto.Error
	if errors.As(err, &pe) {
		if pe.Op == "" {
			pe.Op = op
		}
		return pe
	}

	var (
		unknownTool *backend.UnknownToolError
		transport   *backend.TransportError
		toolErr     *backend.ToolError
		notFound    *memstore.NotFoundError
		exists      *memstore.AlreadyExistsError
		noPattern   *memstore.PatternNotFoundError
		collision   *memstore.ArchiveCollisionError
		badPath     *memstore.InvalidPathError
		badPattern  *memstore.InvalidPatternError
	)
	switch {
	case errors.As(err, &unknownTool):
		return &proto.Error{Kind: proto.KindUnknownTool, Op: op, Subject: unknownTool.Tool, Message: err.Error()}
	case errors.As(err, &transport):
		return &proto.Error{Kind: proto.KindTransportError, Op: op, Message: err.Error()}
	case errors.As(err, &toolErr):
		return &proto.Error{Kind: proto.KindToolError, Op: op, Subject: toolErr.Tool, Message: toolErr.Message, Hint: toolErr.Hint}
	case errors.As(err, &notFound):
		return &proto.Error{Kind: proto.KindNotFound, Op: op, Subject: notFound.Path, Message: err.Error()}
	case errors.As(err, &exists):
		return &proto.Error{Kind: proto.KindAlreadyExists, Op: op, Subject: exists.Path, Message: err.Error()}
	case errors.As(err, &noPattern):
		return &proto.Error{Kind: proto.KindPatternNotFound, Op: op, Subject: noPattern.Path, Message: err.Error()}
	case errors.As(err, &collision):
		return &proto.Error{Kind: proto.KindArchiveCollision, Op: op, Subject: collision.Path, Message: err.Error()}
	case errors.As(err, &badPath):
		return &proto.Error{Kind: proto.KindInvalidParameter, Op: op, Subject: badPath.Path, Message: err.Error()}
	case errors.As(err, &badPattern):
		return &proto.Error{Kind: proto.KindInvalidParameter, Op: op, Message: err.Error()}
	default:
		return &proto.Error{Kind: proto.KindInternal, Op: op, Message: err.Error()}
	}
}
