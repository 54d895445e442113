// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/cookie"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	"github.com/taibuivan/gatekeeper/internal/ratelimit"
	"github.com/taibuivan/gatekeeper/internal/users/identity"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

type sessionBody struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func newTestRouter(t *testing.T, f *fixture) http.Handler {
	t.Helper()

	governor := ratelimit.NewGovernor(ratelimit.NewMemoryLimiter(), ratelimit.Policy{
		MaxAttempts: 3,
		Window:      15 * time.Minute,
	}).WithClock(f.clock.Now)

	handler := identity.NewHandler(f.service, identity.HandlerOptions{
		Cookies:   cookie.Jar{},
		Guard:     governor.Guard,
		Providers: []string{"github"},
	})

	router := chi.NewRouter()
	router.Use(middleware.Authenticate(f.tokens))
	router.Mount("/api/auth", handler.Routes())
	return router
}

func call(t *testing.T, router http.Handler, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	request := httptest.NewRequest(method, path, &payload)
	request.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	for _, c := range cookies {
		request.AddCookie(c)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	var decoded envelope
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func sessionCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range recorder.Result().Cookies() {
		if c.Name == constants.SessionCookieName {
			return c
		}
	}
	return nil
}

/*
TestHandler_SessionLifecycle walks register, me, logout and account deletion.
*/
func TestHandler_SessionLifecycle(t *testing.T) {
	f := newFixture(t, allFeatures)
	router := newTestRouter(t, f)

	recorder, body := call(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var session sessionBody
	require.NoError(t, json.Unmarshal(body.Data, &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "alice", session.User.Username)
	assert.NotContains(t, recorder.Body.String(), "password")

	issued := sessionCookie(recorder)
	require.NotNil(t, issued)
	assert.Equal(t, session.Token, issued.Value)
	assert.True(t, issued.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, issued.SameSite)

	recorder, body = call(t, router, http.MethodGet, "/api/auth/me", nil, issued)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, string(body.Data), session.User.ID)

	recorder, body = call(t, router, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, apperr.CodeUnauthorized, body.Code)

	recorder, _ = call(t, router, http.MethodPost, "/api/auth/logout", nil, issued)
	require.Equal(t, http.StatusOK, recorder.Code)
	cleared := sessionCookie(recorder)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	recorder, _ = call(t, router, http.MethodDelete, "/api/auth/account", nil, issued)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	// The token still verifies but the account behind it is gone.
	recorder, _ = call(t, router, http.MethodGet, "/api/auth/me", nil, issued)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHandler_Login checks both identifier field names and the failure envelope.
*/
func TestHandler_Login(t *testing.T) {
	f := newFixture(t, allFeatures)
	router := newTestRouter(t, f)
	f.register(t, "alice", "alice@example.com", "correct-horse")

	recorder, _ := call(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"login": "alice@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NotNil(t, sessionCookie(recorder))

	recorder, body := call(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, apperr.CodeUnauthorized, body.Code)
	assert.Equal(t, "Invalid credentials", body.Error)
	assert.Nil(t, sessionCookie(recorder))
}

/*
TestHandler_EmailCodeFlow issues and redeems a code over HTTP.
*/
func TestHandler_EmailCodeFlow(t *testing.T) {
	f := newFixture(t, allFeatures)
	router := newTestRouter(t, f)

	recorder, body := call(t, router, http.MethodPost, "/api/auth/send-code", map[string]string{"email": "new@example.com"})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"sent":true}`, string(body.Data))

	code := f.lastCode(t, "new@example.com")

	recorder, body = call(t, router, http.MethodPost, "/api/auth/verify-code", map[string]string{
		"email": "new@example.com", "code": code,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, apperr.CodeBadRequest, body.Code)

	recorder, _ = call(t, router, http.MethodPost, "/api/auth/verify-code", map[string]string{
		"email": "new@example.com", "code": code, "username": "newbie",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotNil(t, sessionCookie(recorder))
}

/*
TestHandler_PasswordRecovery runs forgot and reset over HTTP.
*/
func TestHandler_PasswordRecovery(t *testing.T) {
	f := newFixture(t, allFeatures)
	router := newTestRouter(t, f)
	f.register(t, "dave", "dave@example.com", "old-password")

	for _, email := range []string{"dave@example.com", "ghost@example.com"} {
		recorder, body := call(t, router, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email})
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, string(body.Data), `"sent":true`)
	}

	token := f.lastResetToken(t, "dave@example.com")

	recorder, _ := call(t, router, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": token, "password": "new-password",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, body := call(t, router, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": token, "password": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Invalid or expired reset token", body.Error)
}

/*
TestHandler_RateLimit rejects the fourth guarded attempt inside the window.
*/
func TestHandler_RateLimit(t *testing.T) {
	f := newFixture(t, allFeatures)
	router := newTestRouter(t, f)
	credentials := map[string]string{"login": "nobody", "password": "whatever-pw"}

	for i := 0; i < 3; i++ {
		recorder, _ := call(t, router, http.MethodPost, "/api/auth/login", credentials)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	}

	recorder, body := call(t, router, http.MethodPost, "/api/auth/login", credentials)
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, apperr.CodeRateLimited, body.Code)
	assert.NotEmpty(t, recorder.Header().Get(constants.HeaderRetryAfter))

	// Unguarded routes keep answering.
	recorder, _ = call(t, router, http.MethodGet, "/api/auth/providers", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	f.clock.Advance(16 * time.Minute)
	recorder, _ = call(t, router, http.MethodPost, "/api/auth/login", credentials)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHandler_Providers reports the enabled sign-in methods.
*/
func TestHandler_Providers(t *testing.T) {
	f := newFixture(t, identity.Features{PasswordEnabled: true})
	router := newTestRouter(t, f)

	recorder, body := call(t, router, http.MethodGet, "/api/auth/providers", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t,
		`{"password":true,"emailCode":false,"google":false,"github":true,"microsoft":false}`,
		string(body.Data),
	)
}

/*
TestHandler_DisabledStrategy answers 403.
*/
func TestHandler_DisabledStrategy(t *testing.T) {
	f := newFixture(t, identity.Features{PasswordEnabled: true})
	router := newTestRouter(t, f)

	recorder, body := call(t, router, http.MethodPost, "/api/auth/send-code", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, apperr.CodeForbidden, body.Code)
}
