// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ctxutil carries the per-request values gatekeeper threads from the
middleware chain down to the identity service.

Values:

  - Request ID: set by middleware.RequestID, echoed in logs and 5xx bodies.
  - Logger: the request-scoped slog logger; the service logs sign-ups, links
    and mail failures through it, including from detached delivery goroutines.
  - Client IP: resolved once by middleware.ClientIP; rate budgets key on it.
  - Session claims: set by middleware.Authenticate, read by /me and /account.
*/
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/gatekeeper/internal/platform/ctxkey"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
)

// # Request Tracing

// WithRequestID attaches the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID returns the correlation id, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger attaches the request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger returns the request logger, falling back to [slog.Default] so
// service code called from tests or background work always has one.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok || logger == nil {
		return slog.Default()
	}
	return logger
}

// # Client Address

// WithClientIP stores the resolved client address used by rate budgets and logs.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyClientIP, ip)
}

// GetClientIP returns the stored client address, or "" before resolution.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxkey.KeyClientIP).(string)
	return ip
}

// # Session

// WithAuthUser attaches verified session claims.
func WithAuthUser(ctx context.Context, claims *sec.SessionClaims) context.Context {
	return context.WithValue(ctx, ctxkey.KeyUser, claims)
}

// GetAuthUser returns the session claims, or nil for anonymous requests.
func GetAuthUser(ctx context.Context) *sec.SessionClaims {
	claims, ok := ctx.Value(ctxkey.KeyUser).(*sec.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
