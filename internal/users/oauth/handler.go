// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package oauth

import (
	"crypto/subtle"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/cookie"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/gatekeeper/internal/platform/request"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/users/identity"
)

const (
	stateBytes         = 16
	defaultFailMessage = "OAuth failed"
)

// Handler serves the provider handshake under /api/auth/oauth.
type Handler struct {
	service   *identity.Service
	providers map[string]*Provider
	cookies   cookie.Jar
	appURL    string
}

// NewHandler constructs a [Handler] for the enabled providers.
func NewHandler(service *identity.Service, providers []*Provider, cookies cookie.Jar, appURL string) *Handler {
	registry := make(map[string]*Provider, len(providers))
	for _, provider := range providers {
		registry[provider.Name()] = provider
	}
	return &Handler{
		service:   service,
		providers: registry,
		cookies:   cookies,
		appURL:    strings.TrimRight(appURL, "/"),
	}
}

// Names lists the enabled providers in a stable order.
func (handler *Handler) Names() []string {
	return slices.Sorted(maps.Keys(handler.providers))
}

// Routes returns a [chi.Router] configured with the handshake routes.
//
// # Endpoints
//   - GET /{provider}          : Redirect to the consent page
//   - GET /{provider}/callback : Complete the handshake and sign in
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/{provider}", handler.start)
	router.Get("/{provider}/callback", handler.callback)
	return router
}

func (handler *Handler) provider(request *http.Request) (*Provider, bool) {
	provider, ok := handler.providers[strings.ToLower(requestutil.Param(request, "provider"))]
	return provider, ok
}

// start sets the anti-forgery state cookie and redirects to the provider.
func (handler *Handler) start(writer http.ResponseWriter, request *http.Request) {
	provider, ok := handler.provider(request)
	if !ok {
		respond.Error(writer, request, apperr.NotFound("Provider"))
		return
	}

	state, err := sec.GenerateSecureToken(stateBytes)
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	handler.cookies.SetOAuthState(writer, state)
	http.Redirect(writer, request, provider.AuthCodeURL(state), http.StatusFound)
}

/*
callback completes the handshake.

GET /api/auth/oauth/{provider}/callback

Response:
  - 302: ${APP_URL}/dashboard with the session cookie set
  - 302: ${APP_URL}/login?error=<message> on any failure
*/
func (handler *Handler) callback(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	logger := ctxutil.GetLogger(ctx)

	provider, ok := handler.provider(request)
	if !ok {
		respond.Error(writer, request, apperr.NotFound("Provider"))
		return
	}

	expected := handler.cookies.OAuthState(request)
	handler.cookies.ClearOAuthState(writer)

	query := request.URL.Query()
	if providerError := query.Get("error"); providerError != "" {
		message := query.Get("error_description")
		if message == "" {
			message = providerError
		}
		logger.WarnContext(ctx, "oauth_provider_denied",
			slog.String("provider", provider.Name()),
			slog.String("error", providerError),
		)
		handler.fail(writer, request, message)
		return
	}

	state := query.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		logger.WarnContext(ctx, "oauth_state_mismatch", slog.String("provider", provider.Name()))
		handler.fail(writer, request, "Invalid OAuth state")
		return
	}

	code := query.Get("code")
	if code == "" {
		handler.fail(writer, request, "Missing authorization code")
		return
	}

	profile, err := provider.Exchange(ctx, code)
	if err != nil {
		logger.WarnContext(ctx, "oauth_exchange_failed",
			slog.String("provider", provider.Name()),
			slog.Any("error", err),
		)
		handler.fail(writer, request, defaultFailMessage)
		return
	}

	user, err := handler.service.ResolveOAuth(ctx, profile)
	if err != nil {
		handler.failWith(writer, request, err)
		return
	}

	session, err := handler.service.IssueSession(user)
	if err != nil {
		handler.failWith(writer, request, err)
		return
	}

	handler.cookies.SetSession(writer, session.Token, session.ExpiresAt)
	http.Redirect(writer, request, handler.appURL+"/dashboard", http.StatusFound)
}

// failWith redirects with the client-safe message of err.
func (handler *Handler) failWith(writer http.ResponseWriter, request *http.Request, err error) {
	message := defaultFailMessage
	if appError := apperr.As(err); appError != nil {
		message = appError.Message
		if appError.HTTPStatus >= http.StatusInternalServerError {
			ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "oauth_resolve_failed",
				slog.Any("cause", appError.Cause),
			)
		}
	}
	handler.fail(writer, request, message)
}

func (handler *Handler) fail(writer http.ResponseWriter, request *http.Request, message string) {
	http.Redirect(writer, request, handler.appURL+"/login?error="+url.QueryEscape(message), http.StatusFound)
}
