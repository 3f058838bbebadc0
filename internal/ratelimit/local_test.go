package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalRateLimiterBurstPerAgent(t *testing.T) {
	t.Parallel()

	limiter := NewLocalRateLimiter(2)
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		allowed, err := limiter.Allow(ctx, "Luisa")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if allowed != want {
			t.Fatalf("Allow() #%d = %v, want %v", i+1, allowed, want)
		}
	}

	allowed, err := limiter.Allow(ctx, "Patrick")
	if err != nil || !allowed {
		t.Fatalf("Allow(Patrick) = %v, %v; want a fresh budget", allowed, err)
	}

	allowed, err = limiter.Allow(ctx, " LUISA ")
	if err != nil {
		t.Fatalf("Allow(LUISA) error = %v", err)
	}
	if allowed {
		t.Fatal("agent names must share one budget regardless of case")
	}
}

func TestLocalRateLimiterWait(t *testing.T) {
	t.Parallel()

	limiter := NewLocalRateLimiter(1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "Luisa"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(short, "Luisa"); err == nil {
		t.Fatal("Wait() expected an error when the deadline is shorter than the next slot")
	}

	if err := limiter.Wait(ctx, ""); err == nil {
		t.Fatal("Wait() expected error for empty agent")
	}
	if _, err := limiter.Allow(ctx, "   "); err == nil {
		t.Fatal("Allow() expected error for blank agent")
	}
}

func TestNewLocalRateLimiterDefaultsToOnePerSecond(t *testing.T) {
	t.Parallel()

	limiter := NewLocalRateLimiter(0)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "Luisa"); !ok {
		t.Fatal("first Allow() should pass")
	}
	if ok, _ := limiter.Allow(ctx, "Luisa"); ok {
		t.Fatal("second Allow() within a second should be refused")
	}
}
