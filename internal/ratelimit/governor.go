// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
)

// Policy is the budget applied to every guarded endpoint.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// Governor applies a [Policy] through a [Limiter].
//
// Routes opt in explicitly by wrapping their handler with [Governor.Guard];
// unwrapped routes are never counted.
type Governor struct {
	limiter Limiter
	policy  Policy
	now     func() time.Time
}

// NewGovernor creates a Governor.
func NewGovernor(limiter Limiter, policy Policy) *Governor {
	return &Governor{limiter: limiter, policy: policy, now: time.Now}
}

// WithClock replaces the time source. Tests only.
func (governor *Governor) WithClock(now func() time.Time) *Governor {
	governor.now = now
	return governor
}

// Key derives the counter key for a request: resolved client address and the
// endpoint name the route declared. The raw URL path never reaches the key, so
// path spellings that route to the same handler share one window.
func Key(request *http.Request, endpoint string) string {
	return middleware.RealIP(request) + ":" + endpoint
}

/*
Guard returns middleware counting requests against the (client, endpoint) window.

Response headers:
  - X-RateLimit-Limit: the budget.
  - X-RateLimit-Remaining: hits left in the window.
  - X-RateLimit-Reset: window end as Unix seconds.
  - Retry-After: seconds until the window resets (rejections only).

A limiter backend failure is logged and the request is let through.
*/
func (governor *Governor) Guard(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			now := governor.now()

			result, err := governor.limiter.Allow(request.Context(), Key(request, endpoint), governor.policy.MaxAttempts, governor.policy.Window, now)
			if err != nil {
				ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "rate_limit_backend_failed",
					slog.String("endpoint", endpoint),
					slog.Any("error", err),
				)
				next.ServeHTTP(writer, request)
				return
			}

			header := writer.Header()
			header.Set(constants.HeaderRateLimitLimit, strconv.Itoa(governor.policy.MaxAttempts))
			header.Set(constants.HeaderRateLimitRemain, strconv.Itoa(result.Remaining))
			header.Set(constants.HeaderRateLimitReset, strconv.FormatInt(ceilUnix(result.Reset), 10))

			if !result.Allowed {
				respond.Error(writer, request, apperr.RateLimited(result.RetryAfter(now)))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

func ceilUnix(moment time.Time) int64 {
	seconds := moment.Unix()
	if moment.Nanosecond() > 0 {
		seconds++
	}
	return seconds
}
