package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pders01/navi/internal/backend"
	"github.com/pders01/navi/internal/memstore"
	"github.com/pders01/navi/internal/proto"
	"github.com/pders01/navi/internal/testutil"
)

func testDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *testutil.FakeBackend) {
	t.Helper()
	fake := testutil.NewFakeBackend()
	bc := fake.Client(t)
	return New(bc, memstore.New(bc), opts...), fake
}

func TestDispatchUnknownCommand(t *testing.T) {
	ctx := context.Background()
	d, _ := testDispatcher(t)

	res := d.Dispatch(ctx, proto.NewCommand("frobnicate", nil))
	if res.OK {
		t.Fatal("unknown command succeeded")
	}
	if res.Error.Kind != proto.KindUnknownCommand {
		t.Errorf("kind = %q, want %q", res.Error.Kind, proto.KindUnknownCommand)
	}
}

func TestDispatchParameterValidation(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		params   map[string]any
		wantKind string
	}{
		{
			name:     "missing required",
			command:  "find-symbol",
			params:   nil,
			wantKind: proto.KindMissingParameter,
		},
		{
			name:     "unknown parameter",
			command:  "find-symbol",
			params:   map[string]any{"pattern": "x", "bogus": true},
			wantKind: proto.KindInvalidParameter,
		},
		{
			name:     "wrong type",
			command:  "find-symbol",
			params:   map[string]any{"pattern": 42},
			wantKind: proto.KindInvalidParameter,
		},
		{
			name:     "fractional int",
			command:  "find-symbol",
			params:   map[string]any{"pattern": "x", "depth": 1.5},
			wantKind: proto.KindInvalidParameter,
		},
		{
			name:     "unknown symbol kind",
			command:  "find-symbol",
			params:   map[string]any{"pattern": "x", "kind": "gadget"},
			wantKind: proto.KindInvalidParameter,
		},
		{
			name:     "invalid edit mode",
			command:  "memory.edit",
			params:   map[string]any{"path": "p", "find": "a", "replace": "b", "mode": "fuzzy"},
			wantKind: proto.KindInvalidParameter,
		},
	}

	ctx := context.Background()
	d, _ := testDispatcher(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Dispatch(ctx, proto.NewCommand(tt.command, tt.params))
			if res.OK {
				t.Fatal("invalid command succeeded")
			}
			if res.Error.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q (%s)", res.Error.Kind, tt.wantKind, res.Error.Message)
			}
		})
	}
}

func TestDispatchIntCoercion(t *testing.T) {
	ctx := context.Background()
	d, fake := testDispatcher(t)

	// JSON decoding delivers numbers as float64; integral values must
	// reach the backend as ints.
	res := d.Dispatch(ctx, proto.NewCommand("find-symbol", map[string]any{
		"pattern": "Customer",
		"depth":   2.0,
	}))
	if !res.OK {
		t.Fatalf("dispatch failed: %v", res.Error)
	}
	calls := fake.CallsTo(backend.ToolFindSymbol)
	if len(calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(calls))
	}
	if _, ok := calls[0].Args["depth"]; !ok {
		t.Errorf("depth not forwarded: %v", calls[0].Args)
	}
}

func TestDispatchFindSymbolKindFilter(t *testing.T) {
	ctx := context.Background()
	d, fake := testDispatcher(t)

	res := d.Dispatch(ctx, proto.NewCommand("find-symbol", map[string]any{
		"pattern": "Customer",
		"kind":    "class",
	}))
	if !res.OK {
		t.Fatalf("dispatch failed: %v", res.Error)
	}
	calls := fake.CallsTo(backend.ToolFindSymbol)
	if len(calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(calls))
	}
	if _, ok := calls[0].Args["include_kinds"]; !ok {
		t.Errorf("include_kinds not forwarded for kind filter: %v", calls[0].Args)
	}
}

func TestDispatchFindReferencesTruncation(t *testing.T) {
	var refs []string
	for i := 0; i < 12; i++ {
		refs = append(refs, fmt.Sprintf(`{"file": "f%d.go"}`, i))
	}
	payload := "[" + strings.Join(refs, ",") + "]"

	tests := []struct {
		name     string
		params   map[string]any
		expected int
	}{
		{
			name:     "truncated by default",
			params:   map[string]any{"symbol": "x", "file": "f.go"},
			expected: 10,
		},
		{
			name:     "all requested",
			params:   map[string]any{"symbol": "x", "file": "f.go", "all": true},
			expected: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d, fake := testDispatcher(t)
			fake.Responses[backend.ToolFindReferences] = payload

			res := d.Dispatch(ctx, proto.NewCommand("find-references", tt.params))
			if !res.OK {
				t.Fatalf("dispatch failed: %v", res.Error)
			}
			items, ok := res.Data.([]any)
			if !ok {
				t.Fatalf("data = %#v, want slice", res.Data)
			}
			if len(items) != tt.expected {
				t.Errorf("references = %d, want %d", len(items), tt.expected)
			}
			if tt.expected < 12 && res.Warning == "" {
				t.Error("truncated result must carry a warning")
			}
		})
	}
}

func TestDispatchFindReferencesTruncatesTextByLine(t *testing.T) {
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, fmt.Sprintf("src/f%d.go:10: Customer/getName", i))
	}

	ctx := context.Background()
	d, fake := testDispatcher(t)
	fake.Responses[backend.ToolFindReferences] = strings.Join(lines, "\n")

	res := d.Dispatch(ctx, proto.NewCommand("find-references", map[string]any{
		"symbol": "x",
		"file":   "f.go",
	}))
	if !res.OK {
		t.Fatalf("dispatch failed: %v", res.Error)
	}
	text, ok := res.Data.(string)
	if !ok {
		t.Fatalf("data = %#v, want string", res.Data)
	}
	if got := len(strings.Split(text, "\n")); got != 10 {
		t.Errorf("lines = %d, want 10", got)
	}
	if res.Warning == "" {
		t.Error("truncated result must carry a warning")
	}

	// With all set the text passes through untouched.
	res = d.Dispatch(ctx, proto.NewCommand("find-references", map[string]any{
		"symbol": "x",
		"file":   "f.go",
		"all":    true,
	}))
	if !res.OK {
		t.Fatalf("dispatch failed: %v", res.Error)
	}
	if got := len(strings.Split(res.Data.(string), "\n")); got != 12 {
		t.Errorf("lines with all = %d, want 12", got)
	}
}

func TestDispatchMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	d, _ := testDispatcher(t)

	write := proto.NewCommand("memory.write", map[string]any{"path": "notes/today"})
	write.RawBody = "remember this"
	if res := d.Dispatch(ctx, write); !res.OK {
		t.Fatalf("write failed: %v", res.Error)
	}

	res := d.Dispatch(ctx, proto.NewCommand("memory.read", map[string]any{"path": "notes/today"}))
	if !res.OK {
		t.Fatalf("read failed: %v", res.Error)
	}
	content, ok := res.Data.(string)
	if !ok {
		t.Fatalf("data = %#v, want string", res.Data)
	}
	if memstore.StripMarker(content) != "remember this" {
		t.Errorf("content = %q", content)
	}
}

func TestDispatchMemoryReadNotFound(t *testing.T) {
	ctx := context.Background()
	d, _ := testDispatcher(t)

	res := d.Dispatch(ctx, proto.NewCommand("memory.read", map[string]any{"path": "missing"}))
	if res.OK {
		t.Fatal("read of missing memory succeeded")
	}
	if res.Error.Kind != proto.KindNotFound {
		t.Errorf("kind = %q, want %q", res.Error.Kind, proto.KindNotFound)
	}
	if res.Error.Subject != "missing" {
		t.Errorf("subject = %q, want %q", res.Error.Subject, "missing")
	}
}

func TestDispatchMemoryListEmpty(t *testing.T) {
	ctx := context.Background()
	d, _ := testDispatcher(t)

	res := d.Dispatch(ctx, proto.NewCommand("memory.list", nil))
	if !res.OK {
		t.Fatalf("list failed: %v", res.Error)
	}
	paths, ok := res.Data.([]string)
	if !ok {
		t.Fatalf("data = %#v, want []string", res.Data)
	}
	if paths == nil {
		t.Error("empty list must be [], not null")
	}
}

func TestDispatchMoveWarningSurfaces(t *testing.T) {
	ctx := context.Background()
	d, fake := testDispatcher(t)

	write := proto.NewCommand("memory.write", map[string]any{"path": "src", "timestamp": false})
	write.RawBody = "content"
	if res := d.Dispatch(ctx, write); !res.OK {
		t.Fatalf("write failed: %v", res.Error)
	}

	fake.FailWith[backend.ToolDeleteMemory] = "storage unavailable"
	res := d.Dispatch(ctx, proto.NewCommand("memory.move", map[string]any{
		"source": "src",
		"dest":   "dst",
	}))
	if !res.OK {
		t.Fatalf("move failed: %v", res.Error)
	}
	if res.Warning == "" {
		t.Error("partial move must carry a warning")
	}
}

func TestDispatchActivityHook(t *testing.T) {
	ctx := context.Background()
	var touches int
	d, _ := testDispatcher(t, WithActivityFunc(func() { touches++ }))

	if res := d.Dispatch(ctx, proto.NewCommand("memory.list", nil)); !res.OK {
		t.Fatalf("list failed: %v", res.Error)
	}
	if touches != 1 {
		t.Errorf("touches = %d after success, want 1", touches)
	}

	d.Dispatch(ctx, proto.NewCommand("nope", nil))
	if touches != 1 {
		t.Errorf("touches = %d after failure, want still 1", touches)
	}
}

// serialInvoker counts backend calls that overlap in time. The remote
// backend is not safe for concurrent requests, so any overlap is a bug.
type serialInvoker struct {
	inflight int32
	overlaps int32
}

func (s *serialInvoker) Invoke(_ context.Context, tool string, _ map[string]any) (*backend.Result, error) {
	if atomic.AddInt32(&s.inflight, 1) > 1 {
		atomic.AddInt32(&s.overlaps, 1)
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(&s.inflight, -1)
	return &backend.Result{Tool: tool, Text: "{}", Data: map[string]any{}}, nil
}

func (s *serialInvoker) ListTools(context.Context) ([]backend.ToolInfo, error) {
	return nil, nil
}

func TestDispatchSerializesBackendCalls(t *testing.T) {
	ctx := context.Background()
	inv := &serialInvoker{}
	d := New(inv, memstore.New(inv))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := d.Dispatch(ctx, proto.NewCommand("status", nil)); !res.OK {
				t.Errorf("dispatch failed: %v", res.Error)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&inv.overlaps); n != 0 {
		t.Errorf("observed %d overlapping backend calls, want 0", n)
	}
}

func TestDispatchResultCorrelation(t *testing.T) {
	ctx := context.Background()
	d, _ := testDispatcher(t)

	cmd := proto.NewCommand("status", nil)
	res := d.Dispatch(ctx, cmd)
	if res.ID != cmd.ID {
		t.Errorf("result ID = %q, want command ID %q", res.ID, cmd.ID)
	}
}
