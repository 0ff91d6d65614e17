package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_workflows_started_total",
			Help: "Total number of routing workflows started",
		},
		[]string{"source"},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_workflows_completed_total",
			Help: "Total number of routing workflows that reached a terminal state",
		},
		[]string{"category", "status"},
	)

	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queryrouter_workflow_duration_seconds",
			Help:    "End-to-end routing workflow duration observed by the client",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// Classification metrics
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_routing_decisions_total",
			Help: "Classifier decisions by category",
		},
		[]string{"category"},
	)

	// Step metrics
	StepExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_step_executions_total",
			Help: "Step activity executions by outcome",
		},
		[]string{"step", "status"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queryrouter_step_duration_seconds",
			Help:    "Step activity duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	TokensUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queryrouter_step_tokens_used",
			Help:    "Number of tokens consumed per step",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"step"},
	)

	// Inference backend metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_llm_requests_total",
			Help: "Inference backend requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	LLMToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_llm_tool_calls_total",
			Help: "Tool calls requested by the model",
		},
		[]string{"tool", "status"},
	)

	// Tool session metrics
	ToolProvisioning = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_tool_provisioning_total",
			Help: "Tool session provisioning attempts by outcome",
		},
		[]string{"status"},
	)

	ToolsAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queryrouter_tools_available",
			Help: "Number of tools currently discovered on the tool server",
		},
	)

	// HTTP API metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryrouter_http_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	IdempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queryrouter_idempotency_cache_hits_total",
			Help: "Requests answered from the idempotency cache",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queryrouter_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// RecordStep records one step activity attempt.
func RecordStep(step, status string, d time.Duration, tokens int) {
	StepExecutions.WithLabelValues(step, status).Inc()
	StepDuration.WithLabelValues(step).Observe(d.Seconds())
	if tokens > 0 {
		TokensUsed.WithLabelValues(step).Observe(float64(tokens))
	}
}

// RecordWorkflow records a terminal workflow outcome as seen by a client.
func RecordWorkflow(category, status string, d time.Duration) {
	if category == "" {
		category = "unknown"
	}
	WorkflowsCompleted.WithLabelValues(category, status).Inc()
	WorkflowDuration.WithLabelValues(status).Observe(d.Seconds())
}
