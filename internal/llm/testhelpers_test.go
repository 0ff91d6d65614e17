package llm

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/queryrouter/internal/tools"
)

type stubSession struct {
	calls *int32
}

func (s stubSession) ListTools(ctx context.Context) ([]tools.ToolInfo, error) {
	return []tools.ToolInfo{{
		Name:        "run_query",
		Description: "Execute SQL",
		InputSchema: []byte(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
	}}, nil
}

func (s stubSession) CallTool(ctx context.Context, name string, args map[string]any) (tools.CallResult, error) {
	atomic.AddInt32(s.calls, 1)
	if args["query"] == "" || args["query"] == nil {
		return tools.CallResult{Text: "missing query", IsError: true}, nil
	}
	return tools.CallResult{Text: "| id | name |\n| 1 | ada |"}, nil
}

func (s stubSession) Close() error { return nil }

type stubDialer struct{ calls int32 }

func (d *stubDialer) Open(ctx context.Context, ep tools.Endpoint) (tools.Session, error) {
	return stubSession{calls: &d.calls}, nil
}

func provisionStub(t *testing.T) (*tools.ToolSet, *stubDialer) {
	t.Helper()
	d := &stubDialer{}
	set, err := tools.Provision(context.Background(), d, tools.Endpoint{URL: "http://tools/sse"}, nil)
	require.NoError(t, err)
	return set, d
}
