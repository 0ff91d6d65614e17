package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisBreakerName    = "redis"
	redisBreakerService = "idempotency"
)

// RedisWrapper wraps the Redis commands used by the HTTP API with a circuit breaker
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	config := GetRedisConfig().ToConfig()
	// A cache miss is a healthy answer.
	config.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, redis.Nil) }
	cb := NewCircuitBreaker(redisBreakerName, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(redisBreakerName, redisBreakerService, cb)

	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.run(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	if result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Get wraps Redis Get with circuit breaker
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	err := rw.run(ctx, func() error {
		result = rw.client.Get(ctx, key)
		return result.Err()
	})
	if result == nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Set wraps Redis Set with circuit breaker
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.run(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	if result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SetNX wraps Redis SetNX with circuit breaker
func (rw *RedisWrapper) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	var result *redis.BoolCmd
	err := rw.run(ctx, func() error {
		result = rw.client.SetNX(ctx, key, value, expiration)
		return result.Err()
	})
	if result == nil {
		result = redis.NewBoolCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Del wraps Redis Del with circuit breaker
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.run(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})
	if result == nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) run(ctx context.Context, fn func() error) error {
	err := rw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest(redisBreakerName, redisBreakerService, rw.cb.State(), rw.cb.isSuccessful(err))
	return err
}

// Close closes the underlying client
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen reports whether calls are currently short-circuited
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
