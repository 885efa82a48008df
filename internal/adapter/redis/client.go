package redis

import (
	"context"
	"fmt"

	"github.com/pscheid92/ledsync/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to redisURL (e.g. "redis://localhost:6379/0") with the
// metrics and circuit breaker hooks installed, and verifies the connection.
// storageMetrics may be nil.
func NewClient(ctx context.Context, redisURL string, storageMetrics *metrics.StorageMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewMetricsHook(storageMetrics))
	rdb.AddHook(NewCircuitBreakerHook(storageMetrics))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
