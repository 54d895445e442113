// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/ratelimit"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() || os.Getenv("SKIP_DOCKER") == "1" {
		t.Skip("docker integration tests disabled")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	}))
	return client
}

/*
TestRedisLimiter_SharedWindow exercises the script against a real server.
*/
func TestRedisLimiter_SharedWindow(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	now := time.Now()

	// Two limiters over one server behave like two processes sharing counters.
	first := ratelimit.NewRedisLimiter(client, constants.RedisPrefixRateLimit)
	second := ratelimit.NewRedisLimiter(client, constants.RedisPrefixRateLimit)

	result, err := first.Allow(ctx, "10.0.0.1:/api/auth/login", 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Count)

	result, err = second.Allow(ctx, "10.0.0.1:/api/auth/login", 2, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = first.Allow(ctx, "10.0.0.1:/api/auth/login", 2, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 3, result.Count)
	assert.LessOrEqual(t, result.RetryAfter(now), 60)

	ttl, err := client.PTTL(ctx, constants.RedisPrefixRateLimit+":10.0.0.1:/api/auth/login").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

/*
TestRedisLimiter_WindowExpires opens a fresh window once the key expires.
*/
func TestRedisLimiter_WindowExpires(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	limiter := ratelimit.NewRedisLimiter(client, "test")

	_, err := limiter.Allow(ctx, "k", 1, 200*time.Millisecond, time.Now())
	require.NoError(t, err)
	blocked, err := limiter.Allow(ctx, "k", 1, 200*time.Millisecond, time.Now())
	require.NoError(t, err)
	require.False(t, blocked.Allowed)

	time.Sleep(400 * time.Millisecond)

	fresh, err := limiter.Allow(ctx, "k", 1, 200*time.Millisecond, time.Now())
	require.NoError(t, err)
	assert.True(t, fresh.Allowed)
	assert.Equal(t, 1, fresh.Count)
}
