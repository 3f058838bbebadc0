package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	goredis "github.com/redis/go-redis/v9"
)

const defaultDashboardTTL = 30 * time.Second

var (
	dashboardKeyPrefix   = namespacedKey("dashboard")
	dashboardGenerationK = namespacedKey("dashboard", "generation")
)

// DashboardCache stores computed dashboards per filter. Entries are keyed by a
// generation counter that every successful write bumps, so a write makes every
// cached dashboard unreachable at once.
type DashboardCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDashboardCache(client *goredis.Client, ttl time.Duration) (*DashboardCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultDashboardTTL
	}
	return &DashboardCache{client: client, ttl: ttl}, nil
}

// GetOrCompute returns the cached dashboard for filter or computes and stores it.
// hit reports whether the value came from Redis.
func (c *DashboardCache) GetOrCompute(
	ctx context.Context,
	filter domain.LeadFilter,
	compute func(ctx context.Context) (kpi.Dashboard, error),
) (dashboard kpi.Dashboard, hit bool, err error) {
	generation, err := c.client.Get(ctx, dashboardGenerationK).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return kpi.Dashboard{}, false, fmt.Errorf("failed to read dashboard generation: %w", err)
	}

	key := dashboardKey(generation, filter)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &dashboard); jsonErr == nil {
			return dashboard, true, nil
		}
	case !errors.Is(err, goredis.Nil):
		return kpi.Dashboard{}, false, fmt.Errorf("failed to read cached dashboard: %w", err)
	}

	dashboard, err = compute(ctx)
	if err != nil {
		return kpi.Dashboard{}, false, err
	}

	payload, err := json.Marshal(dashboard)
	if err != nil {
		return dashboard, false, fmt.Errorf("failed to encode dashboard: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return dashboard, false, fmt.Errorf("failed to cache dashboard: %w", err)
	}
	return dashboard, false, nil
}

// Invalidate retires every cached dashboard.
func (c *DashboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, dashboardGenerationK).Err(); err != nil {
		return fmt.Errorf("failed to invalidate dashboards: %w", err)
	}
	return nil
}

func dashboardKey(generation int64, filter domain.LeadFilter) string {
	return fmt.Sprintf("%s:%d:%s:%s",
		dashboardKeyPrefix,
		generation,
		url.QueryEscape(filter.Project),
		url.QueryEscape(filter.LeadType),
	)
}
