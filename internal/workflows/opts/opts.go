package opts

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// StepRetryPolicy allows maxAttempts attempts per step; nonRetryable error
// types fail the step on the first attempt.
func StepRetryPolicy(maxAttempts int32, nonRetryable []string) *temporal.RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        30 * time.Second,
		MaximumAttempts:        maxAttempts,
		NonRetryableErrorTypes: nonRetryable,
	}
}

// StepActivityOptions returns standardized activity options for a routing step.
// A nil policy means a single attempt; a zero timeout means two minutes.
func StepActivityOptions(timeout time.Duration, policy *temporal.RetryPolicy) workflow.ActivityOptions {
	if policy == nil {
		policy = StepRetryPolicy(1, nil)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         policy,
	}
}
