// Package httpapi exposes routing runs over HTTP.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/router"
	"github.com/Kocoro-lab/queryrouter/internal/tools"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

const maxBodyBytes = 64 << 10

// Runner starts and awaits routing runs.
type Runner interface {
	Start(ctx context.Context, query string) (router.Handle, error)
	StartWithID(ctx context.Context, workflowID, query, source string) (router.Handle, error)
	Await(ctx context.Context, h router.Handle) (workflows.RouteResult, error)
	State(ctx context.Context, h router.Handle) (workflows.RunState, error)
}

// ToolRefresher re-runs tool discovery.
type ToolRefresher interface {
	Refresh(ctx context.Context) (*tools.ToolSet, error)
}

type RouteRequest struct {
	Query string `json:"query"`
	// Async returns the run handle immediately instead of waiting for the result.
	Async bool `json:"async,omitempty"`
}

type RouteResponse struct {
	WorkflowID  string `json:"workflow_id"`
	RunID       string `json:"run_id"`
	Result      string `json:"result,omitempty"`
	Category    string `json:"category,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Path        string `json:"path,omitempty"`
	TokensUsed  int    `json:"tokens_used,omitempty"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Step       string `json:"step,omitempty"`
	Cause      string `json:"cause,omitempty"`
	Timeout    bool   `json:"timeout,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// RouteHandler serves the route and tool endpoints.
type RouteHandler struct {
	runner     Runner
	tools      ToolRefresher
	runTimeout time.Duration
	logger     *zap.Logger
}

func NewRouteHandler(runner Runner, refresher ToolRefresher, runTimeout time.Duration, logger *zap.Logger) *RouteHandler {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteHandler{runner: runner, tools: refresher, runTimeout: runTimeout, logger: logger}
}

func (h *RouteHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/route", h.handleRoute)
	mux.HandleFunc("GET /v1/runs/{id}", h.handleRunState)
	if h.tools != nil {
		mux.HandleFunc("POST /v1/tools/refresh", h.handleToolsRefresh)
	}
}

// handleRoute: POST /v1/route {"query": "...", "async": false}
func (h *RouteHandler) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	var (
		handle router.Handle
		err    error
	)
	if key := r.Header.Get(IdempotencyHeader); key != "" {
		handle, err = h.runner.StartWithID(r.Context(), workflowIDForKey(key, req.Query), req.Query, "http")
	} else {
		handle, err = h.runner.Start(r.Context(), req.Query)
	}
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	if req.Async {
		writeJSON(w, http.StatusAccepted, RouteResponse{WorkflowID: handle.WorkflowID, RunID: handle.RunID})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runTimeout)
	defer cancel()
	res, err := h.runner.Await(ctx, handle)
	if err != nil {
		h.writeError(w, err, handle.WorkflowID)
		return
	}
	writeJSON(w, http.StatusOK, RouteResponse{
		WorkflowID:  handle.WorkflowID,
		RunID:       handle.RunID,
		Result:      res.Result,
		Category:    string(res.Category),
		Explanation: res.Explanation,
		Path:        res.Path,
		TokensUsed:  res.TokensUsed,
	})
}

// handleRunState: GET /v1/runs/{id}?run_id=
func (h *RouteHandler) handleRunState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !strings.HasPrefix(id, constants.WorkflowIDPrefix) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown run"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	st, err := h.runner.State(ctx, router.Handle{WorkflowID: id, RunID: r.URL.Query().Get("run_id")})
	if err != nil {
		h.logger.Warn("Run state query failed", zap.String("workflow_id", id), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "run state unavailable", WorkflowID: id})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleToolsRefresh: POST /v1/tools/refresh
func (h *RouteHandler) handleToolsRefresh(w http.ResponseWriter, r *http.Request) {
	ts, err := h.tools.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("Tool refresh failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Cause: activities.ErrTypeToolsUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": ts.Len(), "tools": ts.Names()})
}

func (h *RouteHandler) writeError(w http.ResponseWriter, err error, workflowID string) {
	if errors.Is(err, router.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "query must not be empty", Cause: activities.ErrTypeInvalidInput})
		return
	}
	var we *router.WorkflowError
	if errors.As(err, &we) {
		writeJSON(w, statusForWorkflowError(we), ErrorResponse{
			Error:      we.Message,
			Step:       we.Step,
			Cause:      we.CauseType,
			Timeout:    we.Timeout,
			WorkflowID: workflowID,
		})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// The run keeps going; the caller can poll its state.
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "run did not finish in time", Timeout: true, WorkflowID: workflowID})
		return
	}
	h.logger.Error("Route request failed", zap.String("workflow_id", workflowID), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", WorkflowID: workflowID})
}

func statusForWorkflowError(we *router.WorkflowError) int {
	switch {
	case we.CauseType == activities.ErrTypeInvalidInput:
		return http.StatusBadRequest
	case we.CauseType == activities.ErrTypeToolsUnavailable:
		return http.StatusServiceUnavailable
	case we.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// workflowIDForKey maps an idempotency key and query onto a stable run id so
// retried requests attach to the same run even when the response cache is
// down. A key reused with another query gets its own run.
func workflowIDForKey(key, query string) string {
	sum := sha256.Sum256([]byte(key + "\x00" + query))
	return constants.WorkflowIDPrefix + "idem-" + hex.EncodeToString(sum[:])[:24]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
