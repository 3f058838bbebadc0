// Package ratelimit paces dialer reminders per agent.
package ratelimit

import "context"

// RateLimiter is shared by every reminder worker. Agent names are compared
// case-insensitively.
type RateLimiter interface {
	// Allow takes a slot for agent without blocking and reports whether one was free.
	Allow(ctx context.Context, agent string) (bool, error)
	// Wait blocks until agent has a free slot or ctx ends.
	Wait(ctx context.Context, agent string) error
}
