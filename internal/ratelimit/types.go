// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit implements the fixed-window rate governor that guards the
credential endpoints.

Each key (client address plus endpoint path) owns one window. The first hit
opens a window of the configured length with count 1; later hits inside the
window increment the count; a hit after the window elapsed opens a fresh one.
A request is rejected once the count exceeds the budget.

Backends:

  - MemoryLimiter: process-local table, swept periodically.
  - RedisLimiter: shared counters for multi-process deployments.

Both satisfy [Limiter] and are injected into [Governor]; nothing in this package
is global.
*/
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Count     int
	Remaining int
	Reset     time.Time
}

// RetryAfter returns the whole seconds until Reset, never less than one.
func (result Result) RetryAfter(now time.Time) int {
	seconds := int(math.Ceil(result.Reset.Sub(now).Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter provides rate limit checks.
//
// Allow records one hit for key and reports whether it fits in a budget of
// limit hits per window. The increment and the comparison are one atomic step.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

func buildResult(count, limit int, reset time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Count:     count,
		Remaining: remaining,
		Reset:     reset,
	}
}
