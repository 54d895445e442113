// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Flood Guard: Token bucket sizing for the coarse per-IP throttle.
  - Security: Token issuer and cookie configuration.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "gatekeeper-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Flood Guard

const (
	// DefaultThrottleRPS is the sustained requests per second allowed per IP.
	DefaultThrottleRPS = 50.0

	// DefaultThrottleBurst is the maximum burst allowed per IP.
	DefaultThrottleBurst = 100

	// ThrottleCleanupInterval is how often idle IP buckets are removed from memory.
	ThrottleCleanupInterval = 1 * time.Minute

	// ThrottleClientTTL is how long a client must be idle before its bucket is deleted.
	ThrottleClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in session tokens.
	AuthIssuer = "gatekeeper"

	// SessionCookieName is the cookie carrying the signed session token.
	SessionCookieName = "token"

	// SessionCookiePath scopes the session cookie to the whole site.
	SessionCookiePath = "/"

	// OAuthStateCookieName carries the anti-forgery state during a provider handshake.
	OAuthStateCookieName = "oauth_state"

	// OAuthStateCookiePath scopes the state cookie to the handshake routes.
	OAuthStateCookiePath = "/api/auth/oauth"

	// OAuthStateTTL bounds how long a handshake may take.
	OAuthStateTTL = 10 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID      = "X-Request-ID"
	HeaderXRealIP         = "X-Real-IP"
	HeaderXForwardedFor   = "X-Forwarded-For"
	HeaderOrigin          = "Origin"
	HeaderAuthorization   = "Authorization"
	HeaderContentType     = "Content-Type"
	HeaderRetryAfter      = "Retry-After"
	HeaderRateLimitLimit  = "X-RateLimit-Limit"
	HeaderRateLimitRemain = "X-RateLimit-Remaining"
	HeaderRateLimitReset  = "X-RateLimit-Reset"

	ContentTypeJSON = "application/json; charset=utf-8"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldChecks  = "checks"
)

// # Redis Prefixes

const (
	// RedisPrefixRateLimit namespaces fixed-window counters.
	RedisPrefixRateLimit = "gatekeeper:ratelimit"
)
