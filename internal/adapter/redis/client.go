// Package redis provides the optional Redis-backed message dedup store and
// the client plumbing it needs (hooks for metrics and circuit breaking).
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

var startupPing = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     4 * time.Second,
}

// NewClient parses redisURL, installs the metrics and circuit breaker hooks
// and waits for Redis to answer a PING. redisMetrics may be nil.
func NewClient(ctx context.Context, redisURL string, redisMetrics *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewMetricsHook(redisMetrics))
	rdb.AddHook(NewCircuitBreakerHook(DefaultCircuitBreakerConfig, redisMetrics))

	policy := startupPing
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	err = retry.DoVoid(ctx, policy, classifyPingError, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}

// Auth and protocol errors will not fix themselves.
func classifyPingError(err error) retry.Action {
	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		return retry.Stop
	}
	return retry.Retry
}
