// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
)

type stubVerifier struct {
	valid map[string]*sec.SessionClaims
}

func (verifier stubVerifier) Verify(token string) (*sec.SessionClaims, error) {
	if claims, ok := verifier.valid[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid")
}

// whoami echoes the authenticated user id or "anonymous".
var whoami = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
	if claims := ctxutil.GetAuthUser(request.Context()); claims != nil {
		_, _ = writer.Write([]byte(claims.UserID))
		return
	}
	_, _ = writer.Write([]byte("anonymous"))
})

/*
TestAuthenticate_Sources covers bearer, cookie and anonymous resolution.
*/
func TestAuthenticate_Sources(t *testing.T) {
	verifier := stubVerifier{valid: map[string]*sec.SessionClaims{
		"good": {UserID: "u-1"},
	}}
	handler := middleware.Authenticate(verifier)(whoami)

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"anonymous", func(*http.Request) {}, http.StatusOK, "anonymous"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "u-1"},
		{"bearer_invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
		{"bearer_malformed", func(r *http.Request) { r.Header.Set("Authorization", "good") }, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "good"})
		}, http.StatusOK, "u-1"},
		{"cookie_stale", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "stale"})
		}, http.StatusOK, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(request)
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.status, recorder.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, recorder.Body.String())
			}
		})
	}
}

/*
TestRequireAuth_RejectsAnonymous returns 401 without claims in context.
*/
func TestRequireAuth_RejectsAnonymous(t *testing.T) {
	recorder := httptest.NewRecorder()
	middleware.RequireAuth(whoami).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestThrottle_BurstPerIP exhausts one IP's bucket without affecting another.
*/
func TestThrottle_BurstPerIP(t *testing.T) {
	throttle := middleware.NewThrottle(0.0001, 2)
	handler := throttle.Middleware(whoami)

	send := func(ip string) int {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = ip + ":40000"
		request.Header.Set(constants.HeaderXRealIP, "198.51.100.1")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
}
