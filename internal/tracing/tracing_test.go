package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	// No provider: spans are non-recording and carry no traceparent.
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.Empty(t, W3CTraceparent(ctx))
}

func TestTraceparentRoundTrip(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	tracer = tp.Tracer("test")

	ctx, span := StartStepSpan(context.Background(), "BuildQuery", "route-1")
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "http://llm.local", nil)
	InjectTraceparent(ctx, req)
	span.End()

	header := req.Header.Get("traceparent")
	traceID, spanID, flags, ok := ParseTraceparent(header)
	require.True(t, ok, header)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), spanID)
	assert.Equal(t, byte(1), flags)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "step BuildQuery", ended[0].Name())
}

func TestParseTraceparentRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "01-abc-def-01", "00-short-span-01", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-zz", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-001"} {
		_, _, _, ok := ParseTraceparent(in)
		assert.False(t, ok, in)
	}
}

func TestParseTraceparentFlags(t *testing.T) {
	_, _, flags, ok := ParseTraceparent("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.True(t, ok)
	assert.Equal(t, byte(0x01), flags)

	_, _, flags, ok = ParseTraceparent("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-00")
	require.True(t, ok)
	assert.Equal(t, byte(0x00), flags)
}

func TestContextWithTraceparent(t *testing.T) {
	ctx := ContextWithTraceparent(context.Background(), "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	sc := oteltrace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.True(t, sc.IsSampled())
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", sc.TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", sc.SpanID().String())

	bare := context.Background()
	assert.Equal(t, bare, ContextWithTraceparent(bare, "garbage"))
}
