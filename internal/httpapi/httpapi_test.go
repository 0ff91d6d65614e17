package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/circuitbreaker"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/router"
	"github.com/Kocoro-lab/queryrouter/internal/tools"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

type fakeRunner struct {
	mu       sync.Mutex
	starts   []string
	ids      []string
	result   workflows.RouteResult
	startErr error
	awaitErr error
	block    chan struct{}

	// attach mimics Temporal's workflow id reuse: a start with a known id
	// returns the existing run and Await answers that run's query.
	attach bool
	byID   map[string]string
}

func (f *fakeRunner) Start(ctx context.Context, query string) (router.Handle, error) {
	return f.StartWithID(ctx, constants.WorkflowIDPrefix+"generated", query, "test")
}

func (f *fakeRunner) StartWithID(_ context.Context, id, query, _ string) (router.Handle, error) {
	if strings.TrimSpace(query) == "" {
		return router.Handle{}, router.ErrInvalidInput
	}
	if f.startErr != nil {
		return router.Handle{}, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attach {
		if f.byID == nil {
			f.byID = map[string]string{}
		}
		if _, ok := f.byID[id]; ok {
			return router.Handle{WorkflowID: id, RunID: "r1"}, nil
		}
		f.byID[id] = query
	}
	f.starts = append(f.starts, query)
	f.ids = append(f.ids, id)
	return router.Handle{WorkflowID: id, RunID: "r1"}, nil
}

func (f *fakeRunner) Await(ctx context.Context, h router.Handle) (workflows.RouteResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return workflows.RouteResult{}, ctx.Err()
		}
	}
	if f.attach {
		f.mu.Lock()
		defer f.mu.Unlock()
		return workflows.RouteResult{Result: "answer to " + f.byID[h.WorkflowID]}, f.awaitErr
	}
	return f.result, f.awaitErr
}

func (f *fakeRunner) State(_ context.Context, h router.Handle) (workflows.RunState, error) {
	return workflows.RunState{RunID: h.WorkflowID, Status: workflows.StatusCompleted}, nil
}

func (f *fakeRunner) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func postRoute(t *testing.T, h http.Handler, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouteReturnsResult(t *testing.T) {
	runner := &fakeRunner{result: workflows.RouteResult{Result: "| id | name |", Category: "database", Path: "db", TokensUsed: 42}}
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, zaptest.NewLogger(t)), nil, nil)

	rec := postRoute(t, h, `{"query":"Show me the users who are not customers anymore"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "| id | name |", resp.Result)
	assert.Equal(t, "db", resp.Path)
	assert.Equal(t, "database", resp.Category)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.True(t, strings.HasPrefix(resp.WorkflowID, constants.WorkflowIDPrefix))
}

func TestRouteAsyncReturnsHandle(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, zaptest.NewLogger(t)), nil, nil)

	rec := postRoute(t, h, `{"query":"q","async":true}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)
}

func TestRouteRejectsBadInput(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, zaptest.NewLogger(t)), nil, nil)

	assert.Equal(t, http.StatusBadRequest, postRoute(t, h, `{not json`, "").Code)

	rec := postRoute(t, h, `{"query":"   "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), activities.ErrTypeInvalidInput)
	assert.Zero(t, runner.startCount())
}

func TestRouteMethodNotAllowed(t *testing.T) {
	h := NewHandler(NewRouteHandler(&fakeRunner{}, nil, time.Second, zaptest.NewLogger(t)), nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/route", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouteMapsWorkflowErrors(t *testing.T) {
	cases := map[string]struct {
		err  *router.WorkflowError
		code int
	}{
		"tools":   {&router.WorkflowError{Step: constants.ExecuteQueryActivity, CauseType: activities.ErrTypeToolsUnavailable}, http.StatusServiceUnavailable},
		"timeout": {&router.WorkflowError{Step: constants.RouteQueryActivity, CauseType: activities.ErrTypeBackend, Timeout: true}, http.StatusGatewayTimeout},
		"backend": {&router.WorkflowError{Step: constants.AnswerDirectlyActivity, CauseType: activities.ErrTypeBackend}, http.StatusBadGateway},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{awaitErr: tc.err}
			h := NewHandler(NewRouteHandler(runner, nil, time.Second, zaptest.NewLogger(t)), nil, nil)
			rec := postRoute(t, h, `{"query":"q"}`, "")
			assert.Equal(t, tc.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.err.Step, resp.Step)
			assert.Equal(t, tc.err.CauseType, resp.Cause)
		})
	}
}

func TestRouteAwaitTimeoutReturnsHandle(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	h := NewHandler(NewRouteHandler(runner, nil, 20*time.Millisecond, zaptest.NewLogger(t)), nil, nil)

	rec := postRoute(t, h, `{"query":"q"}`, "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), constants.WorkflowIDPrefix)
}

func TestRunStateEndpoint(t *testing.T) {
	h := NewHandler(NewRouteHandler(&fakeRunner{}, nil, time.Second, zaptest.NewLogger(t)), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/route-abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "route-abc")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *circuitbreaker.RedisWrapper) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
}

func TestIdempotentRouteRunsOnce(t *testing.T) {
	_, store := newRedisStore(t)
	runner := &fakeRunner{result: workflows.RouteResult{Result: "answer"}}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), nil, NewIdempotencyMiddleware(store, time.Hour, time.Minute, logger))

	first := postRoute(t, h, `{"query":"q"}`, "key-1")
	second := postRoute(t, h, `{"query":"q"}`, "key-1")

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Cached"))
	assert.Equal(t, 1, runner.startCount())
	assert.Equal(t, workflowIDForKey("key-1", "q"), runner.ids[0])
}

func TestIdempotencyKeyWithDifferentBodyIsNewRequest(t *testing.T) {
	_, store := newRedisStore(t)
	runner := &fakeRunner{result: workflows.RouteResult{Result: "answer"}}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), nil, NewIdempotencyMiddleware(store, time.Hour, time.Minute, logger))

	postRoute(t, h, `{"query":"a"}`, "key-1")
	postRoute(t, h, `{"query":"b"}`, "key-1")
	assert.Equal(t, 2, runner.startCount())
}

func TestReusedKeyWithNewQueryGetsItsOwnRun(t *testing.T) {
	_, store := newRedisStore(t)
	runner := &fakeRunner{attach: true}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), nil, NewIdempotencyMiddleware(store, time.Hour, time.Minute, logger))

	first := postRoute(t, h, `{"query":"a"}`, "key-1")
	second := postRoute(t, h, `{"query":"b"}`, "key-1")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b RouteResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, "answer to a", a.Result)
	assert.Equal(t, "answer to b", b.Result)
	assert.NotEqual(t, a.WorkflowID, b.WorkflowID)
}

func TestRetriedKeyAttachesWithoutCache(t *testing.T) {
	runner := &fakeRunner{attach: true}
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, zaptest.NewLogger(t)), nil, nil)

	first := postRoute(t, h, `{"query":"a"}`, "key-1")
	second := postRoute(t, h, `{"query":"a"}`, "key-1")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, runner.startCount())
}

func TestIdempotencyFailuresAreNotCached(t *testing.T) {
	_, store := newRedisStore(t)
	runner := &fakeRunner{awaitErr: &router.WorkflowError{CauseType: activities.ErrTypeBackend}}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), nil, NewIdempotencyMiddleware(store, time.Hour, time.Minute, logger))

	assert.Equal(t, http.StatusBadGateway, postRoute(t, h, `{"query":"q"}`, "k").Code)
	assert.Equal(t, http.StatusBadGateway, postRoute(t, h, `{"query":"q"}`, "k").Code)
	assert.Equal(t, 2, runner.startCount())
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	s, store := newRedisStore(t)
	runner := &fakeRunner{result: workflows.RouteResult{Result: "answer"}}
	logger := zaptest.NewLogger(t)
	im := NewIdempotencyMiddleware(store, time.Hour, time.Minute, logger)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), nil, im)

	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(`{"query":"q"}`))
	key, err := im.cacheKey(req, "busy")
	require.NoError(t, err)
	require.NoError(t, s.Set(key+":lock", "1"))

	rec := postRoute(t, h, `{"query":"q"}`, "busy")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, runner.startCount())
}

func TestIdempotencyFailsOpenWhenRedisDown(t *testing.T) {
	s, store := newRedisStore(t)
	s.Close()
	runner := &fakeRunner{result: workflows.RouteResult{Result: "answer"}}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), nil, NewIdempotencyMiddleware(store, time.Hour, time.Minute, logger))

	rec := postRoute(t, h, `{"query":"q"}`, "k")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.startCount())
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	runner := &fakeRunner{result: workflows.RouteResult{Result: "answer"}}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), NewRateLimiter(0.001, 1, logger), nil)

	assert.Equal(t, http.StatusOK, postRoute(t, h, `{"query":"q"}`, "").Code)
	rec := postRoute(t, h, `{"query":"q"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, runner.startCount())
}

func TestRateLimiterDisabled(t *testing.T) {
	runner := &fakeRunner{}
	logger := zaptest.NewLogger(t)
	h := NewHandler(NewRouteHandler(runner, nil, time.Second, logger), NewRateLimiter(0, 0, logger), nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, postRoute(t, h, `{"query":"q"}`, "").Code)
	}
}

type listSession struct{ names []string }

func (s *listSession) ListTools(context.Context) ([]tools.ToolInfo, error) {
	out := make([]tools.ToolInfo, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, tools.ToolInfo{Name: n})
	}
	return out, nil
}

func (s *listSession) CallTool(context.Context, string, map[string]any) (tools.CallResult, error) {
	return tools.CallResult{}, nil
}

func (s *listSession) Close() error { return nil }

type listDialer struct {
	names []string
	err   error
}

func (d *listDialer) Open(context.Context, tools.Endpoint) (tools.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &listSession{names: d.names}, nil
}

func TestToolsRefresh(t *testing.T) {
	logger := zaptest.NewLogger(t)
	d := &listDialer{names: []string{"run_query", "list_tables"}}
	holder := tools.NewHolder(d, tools.Endpoint{URL: "http://tools/sse"}, logger)
	h := NewHandler(NewRouteHandler(&fakeRunner{}, holder, time.Second, logger), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tools/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	d.err = &tools.ConnectionError{Endpoint: "http://tools/sse", Err: errors.New("connection refused")}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tools/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The previous set stays bound.
	ts, err := holder.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Len())
}

func TestInstrumentContinuesInboundTrace(t *testing.T) {
	var seen oteltrace.SpanContext
	h := instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = oteltrace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/route", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", seen.TraceID().String())
}
