package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/relance-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec = 5
	agentWindow        = time.Second
	maxWaitStep        = 250 * time.Millisecond
)

// reserveScript keeps one sorted set per agent holding the reminders handed out in
// the last window, scored by time in milliseconds. It admits the caller when the
// window has room and otherwise returns how many milliseconds remain until the
// oldest entry leaves it.
//
// KEYS[1] agent window; ARGV: now ms, window ms, limit, unique member.
var reserveScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return 0
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
  wait = 1
end
return wait
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter paces reminders per agent over a sliding one-second window
// shared by every worker, so an agent's dialer never rings more than limitPerSec
// times in any second.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limitPerSec, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow takes a slot for agent when one is free.
func (r *RedisRateLimiter) Allow(ctx context.Context, agent string) (bool, error) {
	wait, err := r.reserve(ctx, agent)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// Wait blocks until a slot for agent frees up and takes it.
func (r *RedisRateLimiter) Wait(ctx context.Context, agent string) error {
	for {
		wait, err := r.reserve(ctx, agent)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := r.sleep(ctx, min(wait, maxWaitStep)); err != nil {
			return err
		}
	}
}

// reserve returns zero when a slot was taken, otherwise the time until one frees.
func (r *RedisRateLimiter) reserve(ctx context.Context, agent string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := agentWindowKey(agent)
	if err != nil {
		return 0, err
	}

	waitMs, err := reserveScript.Run(ctx, r.client, []string{key},
		r.now().UnixMilli(),
		agentWindow.Milliseconds(),
		r.limitPerSec,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate agent rate limit: %w", err)
	}

	return time.Duration(waitMs) * time.Millisecond, nil
}

// agentWindowKey folds case and surrounding spaces so "Luisa" and " luisa " share
// one window.
func agentWindowKey(agent string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(agent))
	if normalized == "" {
		return "", fmt.Errorf("agent is required")
	}
	return namespacedKey("ratelimit", "agent", normalized), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
