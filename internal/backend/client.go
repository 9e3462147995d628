// Package backend implements the MCP client for a Serena-compatible
// semantic code-navigation server.
//
// The client holds a single long-lived session: the MCP handshake runs once
// on first use, the tool manifest is fetched and cached alongside it, and
// every subsequent Invoke reuses the same connection. The client performs no
// retries; retry policy belongs to callers.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// DefaultURL is the conventional local Serena MCP endpoint.
	DefaultURL = "http://localhost:9121/mcp"

	// DefaultCallTimeout bounds navigation queries.
	DefaultCallTimeout = 30 * time.Second
	// DefaultActivateTimeout bounds project activation, which may trigger
	// indexing on the backend and runs much longer than a query.
	DefaultActivateTimeout = 120 * time.Second

	clientName = "navi"
)

// Version is set at build time via ldflags.
var Version = "dev"

// tooLongMarker is the backend's truncation sentinel. It arrives as regular
// text content, not as an error, so it has to be recognized here.
const tooLongMarker = "The answer is too long"

// ToolInfo is one entry of the backend's tool manifest.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result is a successful tool invocation. Text holds the joined text
// content; Data holds the decoded JSON value when the text parses as JSON,
// otherwise the text itself.
type Result struct {
	Tool string
	Text string
	Data any
}

// Invoker is the surface consumed by the dispatcher and the memory store.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (*Result, error)
	ListTools(ctx context.Context) ([]ToolInfo, error)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the per-call timeouts.
func WithTimeouts(call, activate time.Duration) Option {
	return func(c *Client) {
		if call > 0 {
			c.callTimeout = call
		}
		if activate > 0 {
			c.activateTimeout = activate
		}
	}
}

// WithMCPClient injects a pre-built MCP client (used by tests to connect
// the in-process transport). The URL is ignored when this is set.
func WithMCPClient(mc *mcpclient.Client) Option {
	return func(c *Client) { c.mcp = mc }
}

// Client is a stateless-between-calls MCP client: the only state it keeps
// is the open session and the cached tool manifest.
type Client struct {
	url             string
	callTimeout     time.Duration
	activateTimeout time.Duration

	mu       sync.Mutex
	mcp      *mcpclient.Client
	manifest map[string]ToolInfo
	ready    bool
}

// New creates a client for the given MCP endpoint. The connection is
// established lazily on first use.
func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:             url,
		callTimeout:     DefaultCallTimeout,
		activateTimeout: DefaultActivateTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensure performs the MCP handshake and manifest fetch exactly once.
// Callers must hold c.mu.
func (c *Client) ensure(ctx context.Context) error {
	if c.ready {
		return nil
	}

	if c.mcp == nil {
		mc, err := mcpclient.NewStreamableHttpClient(c.url,
			transport.WithHTTPTimeout(c.activateTimeout),
		)
		if err != nil {
			return &TransportError{Reason: "connect", Err: err}
		}
		c.mcp = mc
	}

	if err := c.mcp.Start(ctx); err != nil {
		return classifyTransport(err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: Version}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	if _, err := c.mcp.Initialize(ctx, initReq); err != nil {
		return classifyTransport(err)
	}

	tools, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return classifyTransport(err)
	}
	c.manifest = make(map[string]ToolInfo, len(tools.Tools))
	for _, t := range tools.Tools {
		c.manifest[t.Name] = ToolInfo{Name: t.Name, Description: t.Description}
	}

	c.ready = true
	return nil
}

// classifyTransport treats any handshake failure as transport-level: no
// application call was in flight yet.
func classifyTransport(err error) error {
	if te, ok := classify("", err).(*TransportError); ok {
		return te
	}
	return &TransportError{Reason: "protocol", Err: err}
}

// Invoke calls a named tool with keyword arguments. Unknown tool names fail
// before any call is made; transport failures and backend-reported errors
// come back as *TransportError and *ToolError respectively.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	if _, ok := c.manifest[tool]; !ok {
		return nil, &UnknownToolError{Tool: tool}
	}

	timeout := c.callTimeout
	if tool == ToolActivateProject {
		timeout = c.activateTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := c.mcp.CallTool(callCtx, req)
	if err != nil {
		return nil, classify(tool, err)
	}

	text := joinText(res.Content)
	if res.IsError {
		return nil, &ToolError{Tool: tool, Message: text}
	}
	if strings.HasPrefix(text, tooLongMarker) {
		return nil, &ToolError{
			Tool:    tool,
			Message: "too many results",
			Hint:    "restrict the search with a path filter",
		}
	}

	return &Result{Tool: tool, Text: text, Data: decode(text)}, nil
}

// ListTools returns the cached tool manifest, connecting first if needed.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	tools := make([]ToolInfo, 0, len(c.manifest))
	for _, t := range c.manifest {
		tools = append(tools, t)
	}
	sortTools(tools)
	return tools, nil
}

// Close shuts down the underlying session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mcp == nil {
		return nil
	}
	err := c.mcp.Close()
	c.mcp = nil
	c.ready = false
	if err != nil {
		return fmt.Errorf("closing backend session: %w", err)
	}
	return nil
}

func joinText(content []mcp.Content) string {
	var parts []string
	for _, cnt := range content {
		if tc, ok := mcp.AsTextContent(cnt); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// decode parses text content as JSON when it looks like JSON; many backend
// tools return JSON-encoded payloads inside a text block.
func decode(text string) any {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 {
		return text
	}
	if trimmed[0] != '{' && trimmed[0] != '[' && trimmed[0] != '"' {
		return text
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return text
	}
	return v
}

func sortTools(tools []ToolInfo) {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
}
