package activities

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

// stepRecorder times one activity execution and reports it to Prometheus and
// the tracer.
type stepRecorder struct {
	step  string
	start time.Time
	span  trace.Span
}

func startStep(ctx context.Context, step, runID string) (context.Context, *stepRecorder) {
	ctx, span := tracing.StartStepSpan(ctx, step, runID)
	return ctx, &stepRecorder{step: step, start: time.Now(), span: span}
}

// finish records the outcome. Pass the error the activity is about to return.
func (r *stepRecorder) finish(tokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
		r.span.RecordError(err)
	}
	metrics.RecordStep(r.step, status, time.Since(r.start), tokens)
	r.span.End()
}
