// Package testutil provides an in-process fake of the navigation backend
// so tests can exercise the full MCP client path without a live server.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pders01/navi/internal/backend"
)

// Call records a single tool invocation against the fake backend.
type Call struct {
	Tool string
	Args map[string]any
}

// FakeBackend mimics a Serena-compatible MCP server: a flat in-memory
// memory store plus canned navigation responses. The zero value is not
// usable; construct with NewFakeBackend.
type FakeBackend struct {
	mu sync.Mutex

	// Memories is the flat name -> content store behind the memory tools.
	Memories map[string]string
	// Responses overrides the text payload returned by a navigation tool.
	Responses map[string]string
	// FailWith makes a tool return the given text as a tool error.
	FailWith map[string]string

	calls []Call
}

// NewFakeBackend returns an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Memories:  make(map[string]string),
		Responses: make(map[string]string),
		FailWith:  make(map[string]string),
	}
}

// Client connects a backend.Client to the fake over the in-process
// transport. The session is closed on test cleanup.
func (f *FakeBackend) Client(t *testing.T) *backend.Client {
	t.Helper()
	mc, err := mcpclient.NewInProcessClient(f.Server())
	if err != nil {
		t.Fatalf("creating in-process client: %v", err)
	}
	bc := backend.New("", backend.WithMCPClient(mc))
	t.Cleanup(func() { _ = bc.Close() })
	return bc
}

// Calls returns every recorded invocation in order.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded invocations of one tool.
func (f *FakeBackend) CallsTo(tool string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

// Server builds the MCP server exposing the Serena-shaped tool set.
func (f *FakeBackend) Server() *server.MCPServer {
	s := server.NewMCPServer(
		"fake-serena",
		"0.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(backend.ToolReadMemory,
		mcp.WithDescription("Read a memory file"),
		mcp.WithString("memory_file_name", mcp.Required()),
	), f.handle(backend.ToolReadMemory, f.readMemory))

	s.AddTool(mcp.NewTool(backend.ToolWriteMemory,
		mcp.WithDescription("Write a memory file"),
		mcp.WithString("memory_file_name", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
	), f.handle(backend.ToolWriteMemory, f.writeMemory))

	s.AddTool(mcp.NewTool(backend.ToolDeleteMemory,
		mcp.WithDescription("Delete a memory file"),
		mcp.WithString("memory_file_name", mcp.Required()),
	), f.handle(backend.ToolDeleteMemory, f.deleteMemory))

	s.AddTool(mcp.NewTool(backend.ToolListMemories,
		mcp.WithDescription("List memory files"),
	), f.handle(backend.ToolListMemories, f.listMemories))

	s.AddTool(mcp.NewTool(backend.ToolSearchMemory,
		mcp.WithDescription("Search memory contents"),
		mcp.WithString("pattern", mcp.Required()),
	), f.handle(backend.ToolSearchMemory, f.searchMemories))

	s.AddTool(mcp.NewTool(backend.ToolMemoryStats,
		mcp.WithDescription("Memory store statistics"),
	), f.handle(backend.ToolMemoryStats, f.memoryStats))

	for _, tool := range []string{
		backend.ToolFindSymbol,
		backend.ToolFindReferences,
		backend.ToolSymbolsOverview,
		backend.ToolSearchPattern,
		backend.ToolCurrentConfig,
		backend.ToolActivateProject,
	} {
		s.AddTool(mcp.NewTool(tool, mcp.WithDescription("Navigation tool")),
			f.handle(tool, f.canned(tool)))
	}

	return s
}

type toolFunc func(req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// handle wraps a tool implementation with call recording and the
// FailWith override.
func (f *FakeBackend) handle(tool string, fn toolFunc) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f.mu.Lock()
		f.calls = append(f.calls, Call{Tool: tool, Args: req.GetArguments()})
		msg, fail := f.FailWith[tool]
		f.mu.Unlock()
		if fail {
			return mcp.NewToolResultError(msg), nil
		}
		return fn(req)
	}
}

func (f *FakeBackend) readMemory(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("memory_file_name", "")
	f.mu.Lock()
	content, ok := f.Memories[name]
	f.mu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Memory file %s not found", name)), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (f *FakeBackend) writeMemory(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("memory_file_name", "")
	f.mu.Lock()
	f.Memories[name] = req.GetString("content", "")
	f.mu.Unlock()
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s written", name)), nil
}

func (f *FakeBackend) deleteMemory(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("memory_file_name", "")
	f.mu.Lock()
	_, ok := f.Memories[name]
	delete(f.Memories, name)
	f.mu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Memory file %s not found", name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s deleted", name)), nil
}

func (f *FakeBackend) listMemories(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	names := make([]string, 0, len(f.Memories))
	for name := range f.Memories {
		names = append(names, name)
	}
	f.mu.Unlock()
	sort.Strings(names)
	return jsonResult(names)
}

func (f *FakeBackend) searchMemories(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	re, err := regexp.Compile(req.GetString("pattern", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	f.mu.Lock()
	var matches []string
	for name, content := range f.Memories {
		if re.MatchString(content) {
			matches = append(matches, name)
		}
	}
	f.mu.Unlock()
	sort.Strings(matches)
	if matches == nil {
		matches = []string{}
	}
	return jsonResult(map[string]any{"matches": matches})
}

func (f *FakeBackend) memoryStats(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	count := len(f.Memories)
	var bytes int
	for _, content := range f.Memories {
		bytes += len(content)
	}
	f.mu.Unlock()
	return jsonResult(map[string]any{"count": count, "total_bytes": bytes})
}

// canned serves a navigation tool from the Responses override, falling
// back to a plausible empty payload.
func (f *FakeBackend) canned(tool string) toolFunc {
	return func(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f.mu.Lock()
		text, ok := f.Responses[tool]
		f.mu.Unlock()
		if ok {
			return mcp.NewToolResultText(text), nil
		}
		switch tool {
		case backend.ToolCurrentConfig:
			return mcp.NewToolResultText(`{"active_project": null}`), nil
		case backend.ToolActivateProject:
			return mcp.NewToolResultText("Activated project."), nil
		default:
			return mcp.NewToolResultText("[]"), nil
		}
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

// StateDir points the daemon's state root at a fresh temp directory for
// the duration of a test.
func StateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("NAVI_STATE_DIR", dir)
	return dir
}
