package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/Kocoro-lab/queryrouter/internal/circuitbreaker"
	"github.com/Kocoro-lab/queryrouter/internal/tools"
)

const slowThreshold = 100 * time.Millisecond

// TemporalChecker pings the Temporal frontend. The worker cannot make
// progress without it, so it is critical.
type TemporalChecker struct {
	client  client.Client
	timeout time.Duration
}

func NewTemporalChecker(c client.Client) *TemporalChecker {
	return &TemporalChecker{client: c, timeout: 5 * time.Second}
}

func (t *TemporalChecker) Name() string           { return "temporal" }
func (t *TemporalChecker) IsCritical() bool       { return true }
func (t *TemporalChecker) Timeout() time.Duration { return t.timeout }

func (t *TemporalChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	latency := time.Since(start)
	if err != nil {
		var unavailable *serviceerror.Unavailable
		res := CheckResult{Status: StatusDegraded, Message: "Temporal responding with errors", Error: err.Error()}
		if errors.As(err, &unavailable) || errors.Is(err, context.DeadlineExceeded) {
			res.Status = StatusUnhealthy
			res.Message = "Temporal frontend unavailable"
		}
		return res
	}
	return latencyResult("Temporal", latency, nil)
}

// Pinger is anything that can report reachability, e.g. *schema.Postgres.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps a Pinger.
type PingChecker struct {
	name     string
	pinger   Pinger
	critical bool
	timeout  time.Duration
}

func NewPingChecker(name string, p Pinger, critical bool) *PingChecker {
	return &PingChecker{name: name, pinger: p, critical: critical, timeout: 5 * time.Second}
}

func (p *PingChecker) Name() string           { return p.name }
func (p *PingChecker) IsCritical() bool       { return p.critical }
func (p *PingChecker) Timeout() time.Duration { return p.timeout }

func (p *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := p.pinger.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: p.name + " ping failed", Error: err.Error()}
	}
	return latencyResult(p.name, time.Since(start), nil)
}

// ToolsChecker reports the bound tool set. Only the database path needs
// tools, so failure degrades the worker without making it unready.
type ToolsChecker struct {
	holder *tools.Holder
}

func NewToolsChecker(h *tools.Holder) *ToolsChecker { return &ToolsChecker{holder: h} }

func (t *ToolsChecker) Name() string           { return "tools" }
func (t *ToolsChecker) IsCritical() bool       { return false }
func (t *ToolsChecker) Timeout() time.Duration { return time.Second }

func (t *ToolsChecker) Check(context.Context) CheckResult {
	st := t.holder.Status()
	details := map[string]interface{}{"endpoint": t.holder.Endpoint().URL}
	switch {
	case !st.Provisioned:
		return CheckResult{Status: StatusUnknown, Message: "Tool discovery has not run", Details: details}
	case !st.Available:
		details["provisioned_at"] = st.ProvisionedAt
		return CheckResult{Status: StatusUnhealthy, Message: "Tool set unavailable", Error: st.Error, Details: details}
	}
	details["tools"] = st.Count
	details["provisioned_at"] = st.ProvisionedAt
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d tools bound", st.Count), Details: details}
}

// BreakerChecker reports every registered circuit breaker; an open breaker
// means a backend is being shed.
type BreakerChecker struct {
	collector *circuitbreaker.MetricsCollector
}

func NewBreakerChecker(c *circuitbreaker.MetricsCollector) *BreakerChecker {
	if c == nil {
		c = circuitbreaker.GlobalMetricsCollector
	}
	return &BreakerChecker{collector: c}
}

func (b *BreakerChecker) Name() string           { return "circuit_breakers" }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(context.Context) CheckResult {
	snap := b.collector.Snapshot()
	details := make(map[string]interface{}, len(snap))
	open := 0
	for key, state := range snap {
		details[key] = state.String()
		if state == circuitbreaker.StateOpen {
			open++
		}
	}
	if open > 0 {
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("%d circuit breaker(s) open", open), Details: details}
	}
	return CheckResult{Status: StatusHealthy, Message: "All circuit breakers closed", Details: details}
}

func latencyResult(name string, latency time.Duration, details map[string]interface{}) CheckResult {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["latency_ms"] = latency.Milliseconds()
	if latency > slowThreshold {
		return CheckResult{Status: StatusDegraded, Message: name + " responding but with high latency", Details: details}
	}
	return CheckResult{Status: StatusHealthy, Message: name + " healthy", Details: details}
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
