// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	"github.com/taibuivan/gatekeeper/internal/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration, time.Time) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

func newGuardedRouter(governor *ratelimit.Governor) http.Handler {
	return newProxiedRouter(governor, nil)
}

// newProxiedRouter mirrors the server layout: client resolution and path
// cleaning at the root, the guarded routes under a mounted auth subrouter.
func newProxiedRouter(governor *ratelimit.Governor, trust *middleware.ProxyTrust) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.ClientIP(trust))
	router.Use(chimw.CleanPath)

	ok := func(writer http.ResponseWriter, _ *http.Request) { writer.WriteHeader(http.StatusOK) }
	router.With(governor.Guard("login")).Post("/login", ok)
	router.Get("/providers", ok)
	router.Route("/api/auth", func(r chi.Router) {
		r.With(governor.Guard("login")).Post("/login", ok)
	})
	return router
}

func hit(handler http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	return hitVia(handler, method, path, ip, "")
}

func hitVia(handler http.Handler, method, path, ip, forwardedFor string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, nil)
	request.RemoteAddr = ip + ":40000"
	if forwardedFor != "" {
		request.Header.Set(constants.HeaderXForwardedFor, forwardedFor)
		request.Header.Set(constants.HeaderXRealIP, forwardedFor)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

/*
TestGovernor_RejectsAfterBudget verifies the N+1 rejection, its headers, and recovery after the window.
*/
func TestGovernor_RejectsAfterBudget(t *testing.T) {
	now := epoch
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryLimiter(), ratelimit.Policy{MaxAttempts: 2, Window: 15 * time.Minute}).
		WithClock(func() time.Time { return now })
	router := newGuardedRouter(governor)

	first := hit(router, http.MethodPost, "/login", "10.0.0.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(epoch.Add(15*time.Minute).Unix(), 10), first.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusOK, hit(router, http.MethodPost, "/login", "10.0.0.1").Code)

	now = epoch.Add(5 * time.Minute)
	rejected := hit(router, http.MethodPost, "/login", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "600", rejected.Header().Get("Retry-After"))
	assert.Equal(t, "0", rejected.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rejected.Body.String(), "RATE_LIMITED")

	now = epoch.Add(16 * time.Minute)
	assert.Equal(t, http.StatusOK, hit(router, http.MethodPost, "/login", "10.0.0.1").Code)
}

/*
TestGovernor_UnguardedRoutesAreNotCounted leaves undeclared endpoints alone.
*/
func TestGovernor_UnguardedRoutesAreNotCounted(t *testing.T) {
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryLimiter(), ratelimit.Policy{MaxAttempts: 1, Window: time.Minute})
	router := newGuardedRouter(governor)

	for i := 0; i < 5; i++ {
		recorder := hit(router, http.MethodGet, "/providers", "10.0.0.1")
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Empty(t, recorder.Header().Get("X-RateLimit-Limit"))
	}
}

/*
TestGovernor_FailsOpen lets traffic through when the backend errors.
*/
func TestGovernor_FailsOpen(t *testing.T) {
	governor := ratelimit.NewGovernor(failingLimiter{}, ratelimit.Policy{MaxAttempts: 1, Window: time.Minute})
	router := newGuardedRouter(governor)

	assert.Equal(t, http.StatusOK, hit(router, http.MethodPost, "/login", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(router, http.MethodPost, "/login", "10.0.0.1").Code)
}

/*
TestGovernor_ForwardedHeadersFromUntrustedPeerShareOneWindow keeps rotating
X-Forwarded-For values from buying a fresh budget.
*/
func TestGovernor_ForwardedHeadersFromUntrustedPeerShareOneWindow(t *testing.T) {
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryLimiter(), ratelimit.Policy{MaxAttempts: 2, Window: time.Minute})
	router := newProxiedRouter(governor, nil)

	assert.Equal(t, http.StatusOK, hitVia(router, http.MethodPost, "/login", "192.0.2.10", "203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, hitVia(router, http.MethodPost, "/login", "192.0.2.10", "203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, hitVia(router, http.MethodPost, "/login", "192.0.2.10", "203.0.113.3").Code)
	assert.Equal(t, http.StatusTooManyRequests, hitVia(router, http.MethodPost, "/login", "192.0.2.10", "").Code)
}

/*
TestGovernor_TrustedProxySeparatesClients budgets each forwarded client on its own.
*/
func TestGovernor_TrustedProxySeparatesClients(t *testing.T) {
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryLimiter(), ratelimit.Policy{MaxAttempts: 1, Window: time.Minute})
	trust := middleware.NewProxyTrust([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})
	router := newProxiedRouter(governor, trust)

	assert.Equal(t, http.StatusOK, hitVia(router, http.MethodPost, "/login", "10.0.0.2", "203.0.113.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hitVia(router, http.MethodPost, "/login", "10.0.0.2", "203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, hitVia(router, http.MethodPost, "/login", "10.0.0.2", "203.0.113.2").Code)
}

/*
TestGovernor_PathSpellingsShareOneWindow counts every spelling that routes to
the same endpoint against one budget.
*/
func TestGovernor_PathSpellingsShareOneWindow(t *testing.T) {
	governor := ratelimit.NewGovernor(ratelimit.NewMemoryLimiter(), ratelimit.Policy{MaxAttempts: 2, Window: time.Minute})
	router := newProxiedRouter(governor, nil)

	spellings := []string{
		"/api/auth/login",
		"/api/auth//login",
		"/api/auth/./login",
		"/api/auth/login/",
		"/api/auth/x/../login",
	}

	codes := make([]int, 0, len(spellings))
	for _, path := range spellings {
		codes = append(codes, hit(router, http.MethodPost, path, "192.0.2.10").Code)
	}

	assert.Equal(t, []int{
		http.StatusOK,
		http.StatusOK,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)
}

/*
TestKey_UsesEndpointName ignores the raw path entirely.
*/
func TestKey_UsesEndpointName(t *testing.T) {
	request := httptest.NewRequest(http.MethodPost, "/api/auth//login", nil)
	request.RemoteAddr = "192.0.2.10:1234"

	assert.Equal(t, "192.0.2.10:login", ratelimit.Key(request, "login"))
}
