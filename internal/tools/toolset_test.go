package tools

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSession struct {
	tools   []ToolInfo
	listErr error
	closes  *int32
	called  []string
}

func (s *fakeSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	s.called = append(s.called, name)
	return CallResult{Text: "rows: 3"}, nil
}

func (s *fakeSession) Close() error {
	atomic.AddInt32(s.closes, 1)
	return nil
}

type fakeDialer struct {
	tools   []ToolInfo
	listErr error
	openErr error
	opens   int32
	closes  int32
}

func (d *fakeDialer) Open(ctx context.Context, ep Endpoint) (Session, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	atomic.AddInt32(&d.opens, 1)
	return &fakeSession{tools: d.tools, listErr: d.listErr, closes: &d.closes}, nil
}

var sqlTools = []ToolInfo{
	{Name: "run_query", Description: "Run a SQL query", InputSchema: []byte(`{"type":"object"}`)},
	{Name: "list_tables", Description: "List tables"},
}

func TestProvisionClosesSessionOnce(t *testing.T) {
	d := &fakeDialer{tools: sqlTools}
	set, err := Provision(context.Background(), d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"list_tables", "run_query"}, set.Names())
	assert.EqualValues(t, 1, d.opens)
	assert.EqualValues(t, 1, d.closes)
}

func TestProvisionClosesSessionWhenListingFails(t *testing.T) {
	d := &fakeDialer{listErr: errors.New("stream reset")}
	set, err := Provision(context.Background(), d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, set)

	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.EqualValues(t, 1, d.closes)
}

func TestProvisionOpenFailureOpensNothing(t *testing.T) {
	d := &fakeDialer{openErr: &ConnectionError{Endpoint: "http://tools/sse", Err: errors.New("refused")}}
	_, err := Provision(context.Background(), d, Endpoint{URL: "http://tools/sse"}, zaptest.NewLogger(t))

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.EqualValues(t, 0, d.closes)
}

func TestProvisionIsIdempotent(t *testing.T) {
	d := &fakeDialer{tools: sqlTools}
	ep := Endpoint{URL: "http://tools/sse"}
	first, err := Provision(context.Background(), d, ep, nil)
	require.NoError(t, err)
	second, err := Provision(context.Background(), d, ep, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Names(), second.Names())
}

func TestEmptyToolSetIsValid(t *testing.T) {
	d := &fakeDialer{}
	set, err := Provision(context.Background(), d, Endpoint{URL: "http://tools/sse"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestToolSetKeepsFirstDuplicate(t *testing.T) {
	set := NewToolSet([]ToolDescriptor{
		{Name: "run_query", Description: "first"},
		{Name: "run_query", Description: "second"},
		{Name: "describe", Description: "other"},
	})
	assert.Equal(t, 2, set.Len())
	d, ok := set.Get("run_query")
	require.True(t, ok)
	assert.Equal(t, "first", d.Description)
	assert.Equal(t, "run_query", set.List()[0].Name)
}

func TestInvokeUsesFreshSession(t *testing.T) {
	d := &fakeDialer{tools: sqlTools}
	set, err := Provision(context.Background(), d, Endpoint{URL: "http://tools/sse"}, nil)
	require.NoError(t, err)

	tool, ok := set.Get("run_query")
	require.True(t, ok)
	res, err := tool.Invoke(context.Background(), map[string]any{"query": "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, "rows: 3", res.Text)

	assert.EqualValues(t, 2, d.opens)
	assert.EqualValues(t, 2, d.closes)
}

func TestNilToolSetAccessors(t *testing.T) {
	var set *ToolSet
	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.List())
	_, ok := set.Get("x")
	assert.False(t, ok)
}
