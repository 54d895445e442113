// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/taibuivan/gatekeeper/internal/platform/redis"
)

/*
TestNewClient_RejectsInvalidURL fails before dialing.
*/
func TestNewClient_RejectsInvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := redisstore.NewClient(context.Background(), "http://not-redis", logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid URL")
}

/*
TestNewClient_UnreachableFailsFast keeps startup from hanging on a dead backend.
*/
func TestNewClient_UnreachableFailsFast(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	started := time.Now()
	_, err = redisstore.NewClient(context.Background(), "redis://"+addr, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping failed")
	assert.Less(t, time.Since(started), 5*time.Second)
}
