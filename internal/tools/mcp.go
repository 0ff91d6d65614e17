package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

const (
	clientName    = "query-router"
	clientVersion = "1.0.0"
)

// mcpClient is the subset of *client.Client a session needs.
type mcpClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPDialer opens MCP sessions over SSE.
type MCPDialer struct {
	HTTPClient *http.Client
	Logger     *zap.Logger

	newClient func(url string, headers map[string]string, hc *http.Client) (mcpClient, error)
}

func NewMCPDialer(httpClient *http.Client, logger *zap.Logger) *MCPDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPDialer{HTTPClient: httpClient, Logger: logger, newClient: newSSEClient}
}

func newSSEClient(url string, headers map[string]string, hc *http.Client) (mcpClient, error) {
	opts := []transport.ClientOption{client.WithHeaders(headers)}
	if hc != nil {
		opts = append(opts, client.WithHTTPClient(hc))
	}
	c, err := client.NewSSEMCPClient(url, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Open connects, starts the SSE stream and performs the protocol handshake.
// The returned session is bound to ctx: cancelling ctx tears the stream down.
func (d *MCPDialer) Open(ctx context.Context, ep Endpoint) (Session, error) {
	c, err := d.newClient(ep.URL, ep.Headers, d.HTTPClient)
	if err != nil {
		return nil, &ConnectionError{Endpoint: ep.URL, Err: err}
	}

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, &ConnectionError{Endpoint: ep.URL, Err: err}
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, &HandshakeError{Endpoint: ep.URL, Err: err}
	}

	d.Logger.Debug("Tool session opened",
		zap.String("endpoint", ep.URL),
		zap.String("session", ep.SessionName),
	)
	return &mcpSession{c: c, endpoint: ep.URL}, nil
}

type mcpSession struct {
	c        mcpClient
	endpoint string
}

func (s *mcpSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	res, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := inputSchema(t)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out, nil
}

func inputSchema(t mcp.Tool) (json.RawMessage, error) {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema, nil
	}
	s := mcp.ToolArgumentsSchema(t.InputSchema)
	if s.Type == "" {
		s.Type = "object"
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	return b, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		return CallResult{}, fmt.Errorf("call tool %s: %w", name, err)
	}
	return CallResult{Text: contentText(res.Content), IsError: res.IsError}, nil
}

// contentText concatenates the text parts of a tool result.
func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (s *mcpSession) Close() error {
	return s.c.Close()
}
