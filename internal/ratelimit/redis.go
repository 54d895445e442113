// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowScript increments the counter, opens the window on the first hit
// and returns {count, remaining window in ms}. A key that lost its TTL gets a
// fresh one instead of living forever.
var redisWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter implements a fixed-window rate limiter backed by Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow records a hit for key in Redis.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || window <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}

	values, err := redisWindowScript.Run(ctx, l.client, []string{l.buildKey(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit_redis_eval_failed: %w", err)
	}
	if len(values) != 2 {
		return Result{}, errors.New("ratelimit_redis_unexpected_reply")
	}

	count, ttl := int(values[0]), time.Duration(values[1])*time.Millisecond
	return buildResult(count, limit, now.Add(ttl)), nil
}

func (l *RedisLimiter) buildKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}
