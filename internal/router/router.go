// Package router is the client-side entry point: it starts routing runs on
// Temporal and waits for their results.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/util"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

// ErrInvalidInput is returned by Start for an empty query; no run is started.
var ErrInvalidInput = errors.New("InvalidInputError: query must not be empty")

// Handle identifies a started run.
type Handle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

type Options struct {
	TaskQueue        string
	ExecutionTimeout time.Duration
	Run              workflows.RunOptions
}

type Router struct {
	client client.Client
	opts   Options
	logger *zap.Logger
}

func New(c client.Client, opts Options, logger *zap.Logger) *Router {
	if opts.TaskQueue == "" {
		opts.TaskQueue = constants.DefaultTaskQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{client: c, opts: opts, logger: logger}
}

// Start begins a run for query under a fresh workflow id.
func (r *Router) Start(ctx context.Context, query string) (Handle, error) {
	return r.start(ctx, constants.WorkflowIDPrefix+uuid.NewString(), query, "api")
}

// StartWithID begins a run under a caller-chosen id. If a run with that id is
// already open, its handle is returned instead of starting another.
func (r *Router) StartWithID(ctx context.Context, workflowID, query, source string) (Handle, error) {
	return r.start(ctx, workflowID, query, source)
}

func (r *Router) start(ctx context.Context, workflowID, query, source string) (Handle, error) {
	if strings.TrimSpace(query) == "" {
		return Handle{}, ErrInvalidInput
	}
	opts := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                r.opts.TaskQueue,
		WorkflowExecutionTimeout: r.opts.ExecutionTimeout,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		Memo:                     map[string]interface{}{"source": source},
	}
	run, err := r.client.ExecuteWorkflow(ctx, opts, constants.QueryRouterWorkflow, workflows.RouteInput{
		Query:   query,
		Options: r.opts.Run,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			r.logger.Info("Run already started, attaching", zap.String("workflow_id", workflowID))
			return Handle{WorkflowID: workflowID, RunID: started.RunId}, nil
		}
		return Handle{}, fmt.Errorf("start workflow: %w", err)
	}
	metrics.WorkflowsStarted.WithLabelValues(source).Inc()
	r.logger.Info("Started routing run",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("task_queue", r.opts.TaskQueue),
		zap.String("query", util.Preview(query, 120)),
	)
	return Handle{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// Await blocks until the run finishes. Run failures come back as *WorkflowError.
func (r *Router) Await(ctx context.Context, h Handle) (workflows.RouteResult, error) {
	var res workflows.RouteResult
	if err := r.client.GetWorkflow(ctx, h.WorkflowID, h.RunID).Get(ctx, &res); err != nil {
		return workflows.RouteResult{}, decodeError(err)
	}
	return res, nil
}

// Run starts a run and waits for its result text.
func (r *Router) Run(ctx context.Context, query string) (string, error) {
	h, err := r.Start(ctx, query)
	if err != nil {
		return "", err
	}
	res, err := r.Await(ctx, h)
	if err != nil {
		return "", err
	}
	return res.Result, nil
}

// State queries the controller's view of a run.
func (r *Router) State(ctx context.Context, h Handle) (workflows.RunState, error) {
	val, err := r.client.QueryWorkflow(ctx, h.WorkflowID, h.RunID, constants.RunStateQuery)
	if err != nil {
		return workflows.RunState{}, fmt.Errorf("query run state: %w", err)
	}
	var st workflows.RunState
	if err := val.Get(&st); err != nil {
		return workflows.RunState{}, fmt.Errorf("decode run state: %w", err)
	}
	return st, nil
}
