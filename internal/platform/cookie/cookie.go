// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package cookie writes the session and handshake cookies used by the auth handlers.
//
// All cookies are HttpOnly and SameSite=Lax. Secure is set outside development.
package cookie

import (
	"net/http"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
)

// Jar carries the attributes shared by every cookie the API sets.
type Jar struct {
	Secure bool
}

// SetSession stores the signed session token until expiresAt.
func (jar Jar) SetSession(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    token,
		Path:     constants.SessionCookiePath,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		Secure:   jar.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession removes the session cookie. The token itself stays valid until expiry.
func (jar Jar) ClearSession(writer http.ResponseWriter) {
	jar.clear(writer, constants.SessionCookieName, constants.SessionCookiePath)
}

// SetOAuthState stores the handshake state for the provider callback.
func (jar Jar) SetOAuthState(writer http.ResponseWriter, state string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.OAuthStateCookieName,
		Value:    state,
		Path:     constants.OAuthStateCookiePath,
		MaxAge:   int(constants.OAuthStateTTL.Seconds()),
		Secure:   jar.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// OAuthState returns the stored handshake state, or "" when absent.
func (jar Jar) OAuthState(request *http.Request) string {
	stored, err := request.Cookie(constants.OAuthStateCookieName)
	if err != nil {
		return ""
	}
	return stored.Value
}

// ClearOAuthState removes the handshake state cookie.
func (jar Jar) ClearOAuthState(writer http.ResponseWriter) {
	jar.clear(writer, constants.OAuthStateCookieName, constants.OAuthStateCookiePath)
}

func (jar Jar) clear(writer http.ResponseWriter, name, path string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Secure:   jar.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
