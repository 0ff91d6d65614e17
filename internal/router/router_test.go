package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

func TestStartRejectsEmptyQuery(t *testing.T) {
	c := &mocks.Client{}
	r := New(c, Options{}, zaptest.NewLogger(t))

	_, err := r.Start(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	c.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartUsesPrefixedIDAndQueue(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("route-abc")
	run.On("GetRunID").Return("run-1")

	var opts client.StartWorkflowOptions
	var input workflows.RouteInput
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, constants.QueryRouterWorkflow, mock.AnythingOfType("workflows.RouteInput")).
		Run(func(args mock.Arguments) {
			opts = args.Get(1).(client.StartWorkflowOptions)
			input = args.Get(3).(workflows.RouteInput)
		}).Return(run, nil)

	r := New(c, Options{TaskQueue: "q1", ExecutionTimeout: time.Minute, Run: workflows.RunOptions{MaxAttempts: 2}}, nil)
	h, err := r.Start(context.Background(), "Show me the users")
	require.NoError(t, err)
	assert.Equal(t, Handle{WorkflowID: "route-abc", RunID: "run-1"}, h)
	assert.True(t, strings.HasPrefix(opts.ID, constants.WorkflowIDPrefix))
	assert.Equal(t, "q1", opts.TaskQueue)
	assert.Equal(t, time.Minute, opts.WorkflowExecutionTimeout)
	assert.Equal(t, "Show me the users", input.Query)
	assert.EqualValues(t, 2, input.Options.MaxAttempts)
}

func TestStartWithIDAttachesToRunningWorkflow(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "req", "run-9"))

	r := New(c, Options{}, nil)
	h, err := r.StartWithID(context.Background(), "route-key", "q", "http")
	require.NoError(t, err)
	assert.Equal(t, Handle{WorkflowID: "route-key", RunID: "run-9"}, h)
}

func TestRunReturnsResultText(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("route-1")
	run.On("GetRunID").Return("r1")
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(1).(*workflows.RouteResult) = workflows.RouteResult{Result: "| id |", Path: "db"}
	}).Return(nil)
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(run, nil)
	c.On("GetWorkflow", mock.Anything, "route-1", "r1").Return(run)

	out, err := New(c, Options{}, nil).Run(context.Background(), "Show me the users")
	require.NoError(t, err)
	assert.Equal(t, "| id |", out)
}

func TestAwaitDecodesWorkflowError(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	failure := temporal.NewNonRetryableApplicationError("step ExecuteQuery failed", workflows.ErrTypeWorkflow, nil,
		workflows.WorkflowErrorDetails{Step: constants.ExecuteQueryActivity, CauseType: activities.ErrTypeToolsUnavailable, Message: "tool set is unavailable"})
	run.On("Get", mock.Anything, mock.Anything).Return(failure)
	c.On("GetWorkflow", mock.Anything, "route-1", "").Return(run)

	_, err := New(c, Options{}, nil).Await(context.Background(), Handle{WorkflowID: "route-1"})
	var we *WorkflowError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, constants.ExecuteQueryActivity, we.Step)
	assert.Equal(t, activities.ErrTypeToolsUnavailable, we.CauseType)
	assert.Contains(t, we.Error(), "ExecuteQuery")
}

func TestDecodeErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection refused")
	assert.Same(t, plain, decodeError(plain))

	var we *WorkflowError
	require.ErrorAs(t, decodeError(temporal.NewCanceledError()), &we)
	assert.Equal(t, workflows.CauseCanceled, we.CauseType)

	require.ErrorAs(t, decodeError(temporal.NewTimeoutError(0, nil)), &we)
	assert.True(t, we.Timeout)
}
