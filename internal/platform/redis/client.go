// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis opens the client behind ratelimit.RedisLimiter.

Gatekeeper stores nothing else here: each guarded request runs one Lua
script that increments a fixed-window counter and reads its TTL. Without
REDIS_URL the governor counts in process memory instead.

The governor fails open, so a slow Redis would delay every guarded request
rather than reject it. Timeouts are therefore kept short.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout  = 2 * time.Second
	readTimeout  = 500 * time.Millisecond
	writeTimeout = 500 * time.Millisecond
	pingTimeout  = 2 * time.Second

	// One script call per guarded request; the pool only has to cover the
	// bcrypt-bound sign-in concurrency.
	poolSize     = 10
	minIdleConns = 2
)

// NewClient parses redisURL, pings once and returns the counter client.
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.PoolSize = poolSize
	options.MinIdleConns = minIdleConns
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("rate_limit_backend_connected",
		slog.String("backend", "redis"),
		slog.String("addr", options.Addr),
	)

	return client, nil
}

// Ping is the readiness check for the shared rate-limit backend.
func Ping(context stdctx.Context, client *redis.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}
