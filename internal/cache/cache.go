package cache

import (
	"context"
	"time"

	"balcao/backend/internal/domain"
)

// StatsCache holds recently computed sales statistics. Stats windows end at
// "now", so entries are only ever stored with a short TTL; serving a
// slightly stale snapshot is acceptable for these informational endpoints.
type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.SalesStats, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesStats, ttl time.Duration) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.SalesStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.SalesStats, _ time.Duration) error {
	return nil
}
