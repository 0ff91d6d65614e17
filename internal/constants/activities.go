package constants

// Activity names used for workflow registration and execution.
// Using constants eliminates magic strings and ensures consistency.
const (
	// Classification
	RouteQueryActivity = "RouteQuery"

	// Database path
	BuildQueryActivity   = "BuildQuery"
	ExecuteQueryActivity = "ExecuteQuery"

	// Generic path
	AnswerDirectlyActivity = "AnswerDirectly"
)

// Workflow names and handles
const (
	QueryRouterWorkflow = "QueryRouterWorkflow"

	// RunStateQuery returns the controller's view of a run (state, decision, invocations)
	RunStateQuery = "run_state"

	// DefaultTaskQueue is the queue the worker polls when none is configured
	DefaultTaskQueue = "query-router"

	// WorkflowIDPrefix prefixes every run id handed out by the router client
	WorkflowIDPrefix = "route-"
)
