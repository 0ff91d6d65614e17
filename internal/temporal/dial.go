package temporal

import (
	"context"
	"net"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// DialOptions controls how long Dial keeps retrying an unreachable frontend.
type DialOptions struct {
	HostPort  string
	Namespace string
	// MaxAttempts bounds SDK dial attempts; zero retries until ctx is done.
	MaxAttempts int
	MaxDelay    time.Duration
}

// Dial waits for the Temporal frontend TCP endpoint and then dials the SDK client,
// backing off linearly up to MaxDelay between attempts.
func Dial(ctx context.Context, opts DialOptions, logger *zap.Logger) (client.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 15 * time.Second
	}

	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", opts.HostPort, 2*time.Second)
		if err == nil {
			_ = c.Close()
			break
		}
		logger.Warn("Waiting for Temporal TCP endpoint", zap.String("host", opts.HostPort), zap.Int("attempt", i))
		if err := sleep(ctx, time.Second); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; opts.MaxAttempts == 0 || attempt <= opts.MaxAttempts; attempt++ {
		c, err := client.Dial(client.Options{
			HostPort:  opts.HostPort,
			Namespace: opts.Namespace,
			Logger:    NewZapAdapter(logger),
		})
		if err == nil {
			return c, nil
		}
		lastErr = err
		delay := time.Duration(attempt) * time.Second
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("host", opts.HostPort),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
