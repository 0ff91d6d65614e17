package workflows

import (
	"time"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
)

// RouteInput represents the input to QueryRouterWorkflow
type RouteInput struct {
	Query   string     `json:"query"`
	Options RunOptions `json:"options"`
}

// RunOptions are the per-run execution knobs. They travel in the workflow
// input so replays see the values the run started with.
type RunOptions struct {
	ClassifyTimeout time.Duration `json:"classify_timeout,omitempty"`
	StepTimeout     time.Duration `json:"step_timeout,omitempty"`
	MaxAttempts     int32         `json:"max_attempts,omitempty"`
}

const (
	defaultClassifyTimeout = 60 * time.Second
	defaultStepTimeout     = 2 * time.Minute
)

func (o RunOptions) withDefaults() RunOptions {
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = defaultClassifyTimeout
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = defaultStepTimeout
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	return o
}

// RouteResult represents the result of a routed run
type RouteResult struct {
	Result      string              `json:"result"`
	Category    activities.Category `json:"category"`
	Explanation string              `json:"explanation"`
	Path        string              `json:"path"`
	Steps       []string            `json:"steps"`
	TokensUsed  int                 `json:"tokens_used"`
}
