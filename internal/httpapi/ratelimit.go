package httpapi

import (
	"fmt"
	"math"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
)

// RateLimiter is a process-wide token bucket in front of the route API.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimiter allows rps requests per second with the given burst. A
// non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{logger: logger}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), logger: logger}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", float64(rl.limiter.Limit())))
		if !rl.limiter.Allow() {
			metrics.RateLimited.Inc()
			rl.logger.Warn("Rate limit exceeded", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			retry := int(math.Ceil(1 / float64(rl.limiter.Limit())))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
