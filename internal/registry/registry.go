package registry

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

// RouterRegistry wires the routing workflow and its activities onto a worker.
type RouterRegistry struct {
	controller *workflows.Controller
	acts       *activities.Activities
	logger     *zap.Logger
}

// NewRouterRegistry creates a registry. A nil controller registers the default one.
func NewRouterRegistry(controller *workflows.Controller, acts *activities.Activities, logger *zap.Logger) *RouterRegistry {
	if controller == nil {
		controller = workflows.NewController()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouterRegistry{controller: controller, acts: acts, logger: logger}
}

// RegisterWorkflows registers the routing workflow under its stable name
func (r *RouterRegistry) RegisterWorkflows(w WorkflowRegisterer) {
	w.RegisterWorkflowWithOptions(r.controller.Run, workflow.RegisterOptions{Name: constants.QueryRouterWorkflow})
	r.logger.Info("Registered workflows", zap.String("workflow", constants.QueryRouterWorkflow))
}

// RegisterActivities registers the classifier and path activities
func (r *RouterRegistry) RegisterActivities(w ActivityRegisterer) {
	w.RegisterActivityWithOptions(r.acts.RouteQuery, activity.RegisterOptions{Name: constants.RouteQueryActivity})
	w.RegisterActivityWithOptions(r.acts.BuildQuery, activity.RegisterOptions{Name: constants.BuildQueryActivity})
	w.RegisterActivityWithOptions(r.acts.ExecuteQuery, activity.RegisterOptions{Name: constants.ExecuteQueryActivity})
	w.RegisterActivityWithOptions(r.acts.AnswerDirectly, activity.RegisterOptions{Name: constants.AnswerDirectlyActivity})
	r.logger.Info("Registered activities", zap.Int("count", 4))
}

// Register registers everything.
func (r *RouterRegistry) Register(w Registerer) {
	r.RegisterWorkflows(w)
	r.RegisterActivities(w)
}
