package httpapi

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
)

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument traces each request under the caller's traceparent, if any, and
// counts requests by matched route pattern and status code.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.ContextWithTraceparent(r.Context(), r.Header.Get("traceparent"))
		ctx, span := tracing.StartHTTPSpan(ctx, r.Method, r.URL.String())
		defer span.End()
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		span.SetAttributes(attribute.Int("http.response.status_code", rec.code))
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

// NewHandler assembles the API: metrics, then rate limiting, then idempotency
// around the route mux. idem may be nil when no Redis is configured.
func NewHandler(routes *RouteHandler, limiter *RateLimiter, idem *IdempotencyMiddleware) http.Handler {
	mux := http.NewServeMux()
	routes.RegisterRoutes(mux)

	var h http.Handler = mux
	if idem != nil {
		h = idem.Middleware(h)
	}
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return instrument(h)
}
