// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"
	"strings"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
)

// SessionVerifier defines the interface needed to verify session tokens in middleware.
type SessionVerifier interface {
	Verify(token string) (*sec.SessionClaims, error)
}

// Authenticate resolves the caller's session, if any.
//
// # Flow
//  1. An 'Authorization: Bearer <token>' header wins. A malformed or invalid
//     bearer token is rejected with 401.
//  2. Otherwise the session cookie is read. An invalid cookie is ignored and the
//     request proceeds as anonymous, so a stale cookie never blocks sign-in.
//  3. Verified [*sec.SessionClaims] are injected into the request context.
func Authenticate(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Bearer header ──────────────────────────────────────────────
			if authHeader := request.Header.Get(constants.HeaderAuthorization); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
					return
				}

				claims, err := verifier.Verify(strings.TrimSpace(parts[1]))
				if err != nil {
					respond.Error(writer, request, apperr.Unauthorized("Invalid or expired session"))
					return
				}

				next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthUser(request.Context(), claims)))
				return
			}

			// ── 2. Session cookie ─────────────────────────────────────────────
			if cookie, err := request.Cookie(constants.SessionCookieName); err == nil && cookie.Value != "" {
				if claims, err := verifier.Verify(cookie.Value); err == nil {
					next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthUser(request.Context(), claims)))
					return
				}
			}

			// ── 3. Anonymous ──────────────────────────────────────────────────
			next.ServeHTTP(writer, request)
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetAuthUser(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}
