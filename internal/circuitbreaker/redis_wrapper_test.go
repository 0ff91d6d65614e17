package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := wrapper.Ping(ctx).Err(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := wrapper.Set(ctx, "test:key", "test:value", time.Minute).Err(); err != nil {
		t.Errorf("Set failed: %v", err)
	}
	if v := wrapper.Get(ctx, "test:key").Val(); v != "test:value" {
		t.Errorf("Expected 'test:value', got '%s'", v)
	}

	ok, err := wrapper.SetNX(ctx, "test:key", "other", time.Minute).Result()
	if err != nil || ok {
		t.Errorf("Expected SetNX on an existing key to be a no-op, got ok=%v err=%v", ok, err)
	}

	if n := wrapper.Del(ctx, "test:key").Val(); n != 1 {
		t.Errorf("Expected 1 key deleted, got %d", n)
	}
}

func TestRedisWrapper_MissesDoNotTrip(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := wrapper.Get(ctx, "missing").Err(); !errors.Is(err, redis.Nil) {
			t.Fatalf("Expected redis.Nil, got %v", err)
		}
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Expected cache misses to keep the breaker closed")
	}
}

func TestRedisWrapper_OpensWhenServerDown(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	s.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	threshold := int(GetRedisConfig().FailureThreshold)
	for i := 0; i < threshold; i++ {
		_ = wrapper.Get(ctx, "k").Err()
	}
	if !wrapper.IsCircuitBreakerOpen() {
		t.Fatal("Expected breaker to be open")
	}
	if err := wrapper.Get(ctx, "k").Err(); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
}
