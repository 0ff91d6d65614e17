package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/metrics"
)

// IdempotencyHeader carries the client's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore is the Redis surface the middleware needs. *circuitbreaker.RedisWrapper satisfies it.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyMiddleware replays cached 2xx responses for repeated keys and
// rejects a repeat while the first request is still in flight.
type IdempotencyMiddleware struct {
	store   IdempotencyStore
	logger  *zap.Logger
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyMiddleware(store IdempotencyStore, ttl, lockTTL time.Duration, logger *zap.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &IdempotencyMiddleware{store: store, logger: logger, ttl: ttl, lockTTL: lockTTL}
}

// IdempotencyResult is the cached form of a response.
type IdempotencyResult struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Timestamp  time.Time           `json:"timestamp"`
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if r.Method != http.MethodPost || key == "" || im.store == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		cacheKey, err := im.cacheKey(r, key)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable request body"})
			return
		}

		cached, err := im.getCachedResult(ctx, cacheKey)
		switch {
		case err == nil:
			metrics.IdempotencyHits.Inc()
			im.logger.Debug("Returning cached idempotent response",
				zap.String("idempotency_key", key),
				zap.String("path", r.URL.Path),
			)
			for k, values := range cached.Headers {
				for _, v := range values {
					w.Header().Add(k, v)
				}
			}
			w.Header().Set("X-Idempotency-Cached", "true")
			w.Header().Set("X-Idempotency-Key", key)
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		case !errors.Is(err, redis.Nil):
			// Cache unavailable: serve uncached, the stable workflow id still dedupes the run.
			im.logger.Warn("Idempotency cache unavailable", zap.String("idempotency_key", key), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		lockKey := cacheKey + ":lock"
		acquired, err := im.store.SetNX(ctx, lockKey, "1", im.lockTTL).Result()
		if err == nil && !acquired {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "a request with this idempotency key is in progress"})
			return
		}
		if err == nil {
			defer im.store.Del(context.WithoutCancel(ctx), lockKey)
		}

		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		if recorder.statusCode < 200 || recorder.statusCode >= 300 {
			return
		}
		result := &IdempotencyResult{
			StatusCode: recorder.statusCode,
			Headers:    recorder.Header(),
			Body:       recorder.body.Bytes(),
			Timestamp:  time.Now(),
		}
		if err := im.cacheResult(context.WithoutCancel(ctx), cacheKey, result); err != nil {
			im.logger.Error("Failed to cache idempotent response",
				zap.Error(err),
				zap.String("idempotency_key", key),
			)
		}
	})
}

// cacheKey hashes the key, path and body so a reused key with a different
// payload is treated as a new request.
func (im *IdempotencyMiddleware) cacheKey(r *http.Request, key string) (string, error) {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte(r.URL.Path))
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return "", err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}
	return fmt.Sprintf("idempotency:%s", hex.EncodeToString(h.Sum(nil))[:16]), nil
}

func (im *IdempotencyMiddleware) getCachedResult(ctx context.Context, key string) (*IdempotencyResult, error) {
	data, err := im.store.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var result IdempotencyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (im *IdempotencyMiddleware) cacheResult(ctx context.Context, key string, result *IdempotencyResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return im.store.Set(ctx, key, data, im.ttl).Err()
}
