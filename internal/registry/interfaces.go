package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// WorkflowRegisterer is the subset of worker.Worker used to register workflows.
// The Temporal test environment satisfies it too.
type WorkflowRegisterer interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
}

// ActivityRegisterer is the subset of worker.Worker used to register activities.
type ActivityRegisterer interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Registerer registers both.
type Registerer interface {
	WorkflowRegisterer
	ActivityRegisterer
}
