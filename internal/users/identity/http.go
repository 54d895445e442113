// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeeper/internal/platform/cookie"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeeper/internal/platform/request"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
)

// # Definitions & Constructors

// HandlerOptions carries the delivery-layer collaborators.
type HandlerOptions struct {
	// Cookies writes the session cookie.
	Cookies cookie.Jar

	// Guard wraps the brute-force sensitive endpoints, each under its own
	// endpoint name. Nil disables it.
	Guard func(endpoint string) func(http.Handler) http.Handler

	// Providers lists the enabled OAuth providers for GET /providers.
	Providers []string
}

// Handler implements the /api/auth JSON endpoints.
//
// # Scope
//
// Registration, the three sign-in strategies, password recovery, the current
// session and account deletion. The OAuth handshake lives in package oauth.
type Handler struct {
	service   *Service
	cookies   cookie.Jar
	guard     func(endpoint string) func(http.Handler) http.Handler
	providers []string
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, options HandlerOptions) *Handler {
	guard := options.Guard
	if guard == nil {
		guard = func(string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler { return next }
		}
	}
	return &Handler{
		service:   service,
		cookies:   options.Cookies,
		guard:     guard,
		providers: options.Providers,
	}
}

// Routes returns a [chi.Router] configured with the identity routes.
//
// # Endpoints
//   - POST   /register        : Password sign-up (guarded)
//   - POST   /login           : Password sign-in (guarded)
//   - POST   /send-code       : Issue an email login code (guarded)
//   - POST   /verify-code     : Redeem an email login code (guarded)
//   - POST   /forgot-password : Mail a reset link (guarded)
//   - POST   /reset-password  : Spend a reset token
//   - POST   /logout          : Clear the session cookie
//   - GET    /me              : Current account (auth)
//   - DELETE /account         : Delete the current account (auth)
//   - GET    /providers       : Enabled sign-in methods
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.With(handler.guard("register")).Post("/register", handler.register)
	router.With(handler.guard("login")).Post("/login", handler.login)
	router.With(handler.guard("send-code")).Post("/send-code", handler.sendCode)
	router.With(handler.guard("verify-code")).Post("/verify-code", handler.verifyCode)
	router.With(handler.guard("forgot-password")).Post("/forgot-password", handler.forgotPassword)

	router.Post("/reset-password", handler.resetPassword)
	router.Post("/logout", handler.logout)
	router.Get("/providers", handler.listProviders)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
		r.Delete("/account", handler.deleteAccount)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// loginRequest accepts the identifier as "login" or "username".
type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Username string `json:"username"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

/*
Register handles password sign-up.

POST /api/auth/register

Response:
  - 201: Session: token, expiry and user; the session cookie is set
  - 400: VALIDATION_ERROR
  - 403: Password authentication disabled
  - 409: Username or email taken
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.Register(request.Context(), RegisterInput{
		Username:    input.Username,
		Password:    input.Password,
		Email:       input.Email,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establish(writer, request, user, http.StatusCreated)
}

/*
Login handles password sign-in.

POST /api/auth/login

Response:
  - 200: Session
  - 401: Invalid credentials (identical for every failure cause)
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	identifier := input.Login
	if identifier == "" {
		identifier = input.Username
	}

	user, err := handler.service.Login(request.Context(), identifier, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establish(writer, request, user, http.StatusOK)
}

/*
SendCode issues an email login code.

POST /api/auth/send-code

Response:
  - 200: {"sent": true} whether or not the address has an account
*/
func (handler *Handler) sendCode(writer http.ResponseWriter, request *http.Request) {
	var input sendCodeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RequestEmailCode(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]bool{FieldSent: true})
}

/*
VerifyCode redeems an email login code.

POST /api/auth/verify-code

Response:
  - 200: Session
  - 400: Username required for a new account
  - 401: Invalid or expired code
  - 409: Username taken
*/
func (handler *Handler) verifyCode(writer http.ResponseWriter, request *http.Request) {
	var input verifyCodeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.VerifyEmailCode(request.Context(), input.Email, input.Code, input.Username)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.establish(writer, request, user, http.StatusOK)
}

// forgotPassword handles POST /api/auth/forgot-password.
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldSent:    true,
		FieldMessage: "If this email is registered, a reset link has been sent.",
	})
}

// resetPassword handles POST /api/auth/reset-password.
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]bool{FieldSuccess: true})
}

// logout clears the cookie. The token stays valid until it expires.
func (handler *Handler) logout(writer http.ResponseWriter, _ *http.Request) {
	handler.cookies.ClearSession(writer)
	respond.OK(writer, map[string]bool{FieldSuccess: true})
}

// me handles GET /api/auth/me.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.CurrentUser(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]*User{FieldUser: user})
}

// deleteAccount handles DELETE /api/auth/account.
func (handler *Handler) deleteAccount(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.DeleteAccount(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.ClearSession(writer)
	respond.NoContent(writer)
}

// listProviders handles GET /api/auth/providers.
func (handler *Handler) listProviders(writer http.ResponseWriter, _ *http.Request) {
	features := handler.service.Features()

	methods := map[string]bool{
		"password":  features.PasswordEnabled,
		"emailCode": features.EmailCodeEnabled,
		"google":    false,
		"github":    false,
		"microsoft": false,
	}
	for _, name := range handler.providers {
		methods[name] = true
	}

	respond.OK(writer, methods)
}

// # Helpers

// establish mints a session for user, sets the cookie and writes the session body.
func (handler *Handler) establish(writer http.ResponseWriter, request *http.Request, user *User, status int) {
	session, err := handler.service.IssueSession(user)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.SetSession(writer, session.Token, session.ExpiresAt)
	respond.JSON(writer, status, respond.SuccessEnvelope{Data: session})
}
