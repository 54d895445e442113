// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/dberr"
	"github.com/taibuivan/gatekeeper/internal/platform/mail"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
	"github.com/taibuivan/gatekeeper/pkg/pointer"
	"github.com/taibuivan/gatekeeper/pkg/uuid"
)

const instrumentationName = "github.com/taibuivan/gatekeeper/internal/users/identity"

// # Client-Facing Outcomes

var (
	ErrInvalidCredentials = apperr.Unauthorized("Invalid credentials")
	ErrInvalidCode        = apperr.Unauthorized("Invalid or expired code")
	ErrInvalidSession     = apperr.Unauthorized("Invalid or expired session")
	ErrInvalidResetToken  = apperr.BadRequest("Invalid or expired reset token")
	ErrUsernameRequired   = apperr.BadRequest("Username is required for new accounts")
	ErrEmailRequired      = apperr.BadRequest("An email address is required to sign in with this provider")

	errPasswordDisabled  = apperr.Forbidden("Password authentication is disabled")
	errEmailCodeDisabled = apperr.Forbidden("Email code login is disabled")
)

// # Contracts & Types

// PasswordHasher isolates the CPU-heavy password work. See [sec.Hasher].
type PasswordHasher interface {
	Hash(ctx context.Context, plainTextPassword string) (string, error)
	Compare(ctx context.Context, existingHash, plainTextPassword string) (bool, error)
	CompareDummy(ctx context.Context, plainTextPassword string)
}

// SessionIssuer mints and checks signed session tokens. See [sec.TokenService].
type SessionIssuer interface {
	Issue(subject sec.SessionSubject) (string, time.Time, error)
	Verify(token string) (*sec.SessionClaims, error)
}

// Features are the configuration toggles the service enforces.
type Features struct {
	PasswordEnabled      bool
	EmailCodeEnabled     bool
	PasswordRequireEmail bool
}

// Options configures a [Service].
type Options struct {
	Features Features

	// AppURL prefixes the password reset link.
	AppURL string

	// MailTimeout bounds a single delivery attempt.
	MailTimeout time.Duration

	// Now replaces the wall clock. Tests only.
	Now func() time.Time
}

// Session is a freshly minted session token for a resolved user.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Service implements the identity use cases.
//
// # Review Process
//
// This service is critical for security. Any change to hashing, secret
// lifetimes or the resolver policies must be reviewed by the security team.
type Service struct {
	store    Store
	hasher   PasswordHasher
	sessions SessionIssuer
	mailer   mail.Sender

	features    Features
	appURL      string
	mailTimeout time.Duration
	now         func() time.Time

	tracer           trace.Tracer
	deliveryFailures metric.Int64Counter
	deliveries       sync.WaitGroup
}

// NewService constructs a [Service] with its collaborators.
func NewService(store Store, hasher PasswordHasher, sessions SessionIssuer, mailer mail.Sender, options Options) *Service {
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.MailTimeout <= 0 {
		options.MailTimeout = 10 * time.Second
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"gatekeeper.mail.delivery_failures",
		metric.WithDescription("Outbound login code and reset mails that could not be delivered"),
	)
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("gatekeeper.mail.delivery_failures")
	}

	return &Service{
		store:            store,
		hasher:           hasher,
		sessions:         sessions,
		mailer:           mailer,
		features:         options.Features,
		appURL:           options.AppURL,
		mailTimeout:      options.MailTimeout,
		now:              options.Now,
		tracer:           otel.Tracer(instrumentationName),
		deliveryFailures: counter,
	}
}

// Features reports the enabled toggles.
func (service *Service) Features() Features {
	return service.features
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new password account.
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
}

/*
Register creates a password account.

Description: Validates the input, hashes the password through the bounded
hasher and lets the unique constraints decide any race.

Parameters:
  - ctx: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: Forbidden, ValidationError, ErrUsernameTaken, ErrEmailTaken or Internal
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (user *User, err error) {
	ctx, span := service.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	if !service.features.PasswordEnabled {
		return nil, errPasswordDisabled
	}

	email := NormalizeEmail(input.Email)

	validator := &validate.Validator{}
	validateUsername(validator, input.Username)
	validatePassword(validator, input.Password)
	if email != "" || service.features.PasswordRequireEmail {
		validateEmail(validator, email)
	}
	validator.MaxLen(FieldDisplayName, input.DisplayName, DisplayNameMaxLength)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	hashedPassword, err := service.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("identity_register_hash_failed: %w", err))
	}

	user = &User{
		ID:           uuid.New(),
		Username:     input.Username,
		Email:        optional(email),
		DisplayName:  optional(input.DisplayName),
		PasswordHash: &hashedPassword,
		CreatedAt:    service.now().UTC(),
	}

	if err := service.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "user_registered",
		slog.String("user_id", user.ID),
		slog.String("strategy", "password"),
	)
	return user, nil
}

// # Credential Flows

// Login verifies a username-or-email and password pair.
func (service *Service) Login(ctx context.Context, identifier, password string) (*User, error) {
	return service.Resolve(ctx, PasswordCredential{Identifier: identifier, Password: password})
}

// VerifyEmailCode redeems a login code, creating the account on first use when
// a username is supplied.
func (service *Service) VerifyEmailCode(ctx context.Context, email, code, username string) (*User, error) {
	return service.Resolve(ctx, EmailCodeCredential{Email: email, Code: code, Username: username})
}

// ResolveOAuth finds, links or creates the account for a provider profile.
func (service *Service) ResolveOAuth(ctx context.Context, profile OAuthCredential) (*User, error) {
	return service.Resolve(ctx, profile)
}

// # Secret Issuance

/*
RequestEmailCode issues a login code for email and mails it.

Description: The outcome is identical whether or not the address has an
account. Store and delivery failures are logged and counted, never returned.

Parameters:
  - ctx: context.Context
  - email: string

Returns:
  - error: Forbidden or ValidationError only
*/
func (service *Service) RequestEmailCode(ctx context.Context, email string) (err error) {
	ctx, span := service.startSpan(ctx, "RequestEmailCode")
	defer func() { endSpan(span, err) }()

	if !service.features.EmailCodeEnabled {
		return errEmailCodeDisabled
	}

	email = NormalizeEmail(email)
	validator := &validate.Validator{}
	validateEmail(validator, email)
	if err := validator.Err(); err != nil {
		return err
	}

	logger := ctxutil.GetLogger(ctx)

	value, err := sec.GenerateNumericCode(EmailCodeDigits)
	if err != nil {
		logger.ErrorContext(ctx, "email_code_generate_failed", slog.Any("error", err))
		return nil
	}

	now := service.now().UTC()
	code := &EmailCode{
		ID:        uuid.New(),
		Email:     email,
		Code:      value,
		ExpiresAt: now.Add(EmailCodeTTL),
		CreatedAt: now,
	}

	owner, err := service.store.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		code.UserID = &owner.ID
	case !isNotFound(err):
		logger.WarnContext(ctx, "email_code_owner_lookup_failed", slog.Any("error", err))
	}

	if err := service.replaceEmailCode(ctx, code); err != nil {
		logger.ErrorContext(ctx, "email_code_issue_failed", slog.Any("error", err))
		return nil
	}

	service.deliver(ctx, "login_code", loginCodeMessage(email, value))
	return nil
}

// replaceEmailCode retries when a concurrent issuance for the same address
// wins the partial unique index.
func (service *Service) replaceEmailCode(ctx context.Context, code *EmailCode) error {
	var err error
	for attempt := 0; attempt < emailCodeIssueAttempts; attempt++ {
		err = service.store.ReplaceEmailCode(ctx, code)
		if !errors.Is(err, errCodeRace) {
			return err
		}
		code.ID = uuid.New()
	}
	return err
}

/*
RequestPasswordReset mails a reset link when email belongs to an account.

Description: Unknown addresses are a silent no-op so the response never
reveals whether the account exists.

Parameters:
  - ctx: context.Context
  - email: string

Returns:
  - error: Forbidden or ValidationError only
*/
func (service *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := service.startSpan(ctx, "RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	if !service.features.PasswordEnabled {
		return errPasswordDisabled
	}

	email = NormalizeEmail(email)
	validator := &validate.Validator{}
	validateEmail(validator, email)
	if err := validator.Err(); err != nil {
		return err
	}

	logger := ctxutil.GetLogger(ctx)

	user, err := service.store.FindUserByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			logger.ErrorContext(ctx, "password_reset_lookup_failed", slog.Any("error", err))
		}
		return nil
	}

	value, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		logger.ErrorContext(ctx, "password_reset_generate_failed", slog.Any("error", err))
		return nil
	}

	now := service.now().UTC()
	token := &PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     value,
		ExpiresAt: now.Add(ResetTokenTTL),
		CreatedAt: now,
	}
	if err := service.store.CreateResetToken(ctx, token); err != nil {
		logger.ErrorContext(ctx, "password_reset_issue_failed", slog.Any("error", err))
		return nil
	}

	service.deliver(ctx, "password_reset", passwordResetMessage(email, resetLink(service.appURL, value)))
	return nil
}

/*
ResetPassword spends a reset token and sets the new password.

Description: The token is marked used and the hash applied in one store
transaction, so a caller never observes one without the other.

Parameters:
  - ctx: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Forbidden, ValidationError, ErrInvalidResetToken or Internal
*/
func (service *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := service.startSpan(ctx, "ResetPassword")
	defer func() { endSpan(span, err) }()

	if !service.features.PasswordEnabled {
		return errPasswordDisabled
	}

	token = strings.TrimSpace(token)
	validator := &validate.Validator{}
	validator.Required(FieldToken, token)
	validatePassword(validator, newPassword)
	if err := validator.Err(); err != nil {
		return err
	}

	hashedPassword, err := service.hasher.Hash(ctx, newPassword)
	if err != nil {
		return apperr.Internal(fmt.Errorf("identity_reset_hash_failed: %w", err))
	}

	userID, err := service.store.ConsumeResetToken(ctx, token, hashedPassword, service.now().UTC())
	if err != nil {
		if isNotFound(err) {
			return ErrInvalidResetToken
		}
		return err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "password_reset_completed", slog.String("user_id", userID))
	return nil
}

// # Account Lifecycle

// CurrentUser loads the account behind a verified session.
func (service *Service) CurrentUser(ctx context.Context, userID string) (*User, error) {
	if !uuid.Valid(userID) {
		return nil, apperr.Unauthorized("User not found")
	}

	user, err := service.store.FindUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Unauthorized("User not found")
		}
		return nil, err
	}
	return user, nil
}

// DeleteAccount removes the user with every provider link and secret it owns.
func (service *Service) DeleteAccount(ctx context.Context, userID string) (err error) {
	ctx, span := service.startSpan(ctx, "DeleteAccount")
	defer func() { endSpan(span, err) }()

	if !uuid.Valid(userID) {
		return apperr.NotFound("User")
	}

	if err := service.store.DeleteUser(ctx, userID); err != nil {
		if isNotFound(err) {
			return apperr.NotFound("User")
		}
		return err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "account_deleted", slog.String("user_id", userID))
	return nil
}

// # Sessions

// IssueSession mints a session token for user.
func (service *Service) IssueSession(user *User) (*Session, error) {
	token, expiresAt, err := service.sessions.Issue(sec.SessionSubject{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       pointer.Val(user.Email),
		DisplayName: pointer.Val(user.DisplayName),
	})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("identity_issue_session_failed: %w", err))
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// VerifySession checks a session token. Any failure is [ErrInvalidSession].
func (service *Service) VerifySession(token string) (*sec.SessionClaims, error) {
	claims, err := service.sessions.Verify(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// # Mail Delivery

/*
deliver sends message in the background, bounded by the mail timeout.

The request that triggered it never waits on the SMTP exchange. Failures go to
the log and the gatekeeper.mail.delivery_failures counter.
*/
func (service *Service) deliver(ctx context.Context, kind string, message mail.Message) {
	logger := ctxutil.GetLogger(ctx)
	detached := context.WithoutCancel(ctx)

	service.deliveries.Add(1)
	go func() {
		defer service.deliveries.Done()

		sendCtx, cancel := context.WithTimeout(detached, service.mailTimeout)
		defer cancel()

		if err := service.mailer.Send(sendCtx, message); err != nil {
			service.deliveryFailures.Add(detached, 1, metric.WithAttributes(attribute.String("kind", kind)))
			logger.WarnContext(detached, "mail_delivery_failed",
				slog.String("kind", kind),
				slog.Any("error", err),
			)
			return
		}
		logger.DebugContext(detached, "mail_delivered", slog.String("kind", kind))
	}()
}

// Drain waits for in-flight deliveries or until ctx ends.
func (service *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		service.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// # Helpers

func (service *Service) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return service.tracer.Start(ctx, "identity."+operation)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isNotFound(err error) bool {
	return errors.Is(err, dberr.ErrNotFound)
}
