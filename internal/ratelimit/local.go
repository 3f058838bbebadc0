package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter paces agents inside one process. Workers fall back to it when
// Redis is not configured; with several worker processes each one gets the full
// budget.
type LocalRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters sync.Map
}

func NewLocalRateLimiter(perSecond int) *LocalRateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &LocalRateLimiter{limit: rate.Limit(perSecond), burst: perSecond}
}

func (l *LocalRateLimiter) Allow(_ context.Context, agent string) (bool, error) {
	limiter, err := l.forAgent(agent)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, agent string) error {
	limiter, err := l.forAgent(agent)
	if err != nil {
		return err
	}
	return limiter.Wait(ctx)
}

func (l *LocalRateLimiter) forAgent(agent string) (*rate.Limiter, error) {
	key := strings.ToLower(strings.TrimSpace(agent))
	if key == "" {
		return nil, fmt.Errorf("agent is required")
	}

	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter), nil
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	return limiter.(*rate.Limiter), nil
}
