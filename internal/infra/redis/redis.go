// Package redis holds the Redis-backed dashboard cache and agent rate limiter.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// keyNamespace prefixes every key this service writes, so the instance can be
// shared with other applications.
const keyNamespace = "relance"

const (
	pingTimeout  = 5 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
)

func namespacedKey(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}

// NewRedis connects as clientName and checks the server answers. Short socket
// timeouts keep a slow Redis from stalling requests, since both users degrade
// gracefully without it.
func NewRedis(ctx context.Context, url, clientName string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = clientName
	}
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}
