// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
	"github.com/taibuivan/gatekeeper/pkg/uuid"
)

/*
Resolve maps a verified credential to exactly one [User].

Description: Single entry point for every strategy. The linking and username
collision policies live here and nowhere else.

Parameters:
  - ctx: context.Context
  - credential: Credential (PasswordCredential, EmailCodeCredential or OAuthCredential)

Returns:
  - *User: The resolved account
  - error: Forbidden, ValidationError, BadRequest, Unauthorized, Conflict or Internal
*/
func (service *Service) Resolve(ctx context.Context, credential Credential) (user *User, err error) {
	ctx, span := service.startSpan(ctx, "Resolve")
	defer func() { endSpan(span, err) }()

	if credential == nil {
		return nil, apperr.BadRequest("Missing credential")
	}
	span.SetAttributes(attribute.String("identity.strategy", credential.strategy()))

	switch credential := credential.(type) {
	case PasswordCredential:
		if !service.features.PasswordEnabled {
			return nil, errPasswordDisabled
		}
		return service.verifyPassword(ctx, credential)

	case EmailCodeCredential:
		if !service.features.EmailCodeEnabled {
			return nil, errEmailCodeDisabled
		}
		return service.resolveEmailCode(ctx, credential)

	case OAuthCredential:
		return service.resolveOAuth(ctx, credential)
	}

	return nil, apperr.BadRequest("Unsupported credential")
}

// # Email Code Path

/*
resolveEmailCode redeems a code and returns the account behind the address.

The code is only peeked until the outcome is known. An unknown address without
a username returns [ErrUsernameRequired] and leaves the code redeemable, so the
caller can prompt for a username and retry. A new account is created in the
same transaction that consumes the code.
*/
func (service *Service) resolveEmailCode(ctx context.Context, credential EmailCodeCredential) (*User, error) {
	credential, err := normalizeEmailCode(credential)
	if err != nil {
		return nil, err
	}

	now := service.now().UTC()

	code, err := service.store.FindActiveEmailCode(ctx, credential.Email, credential.Code, now)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	existing, err := service.store.FindUserByEmail(ctx, credential.Email)
	switch {
	case err == nil:
		return service.redeemForExisting(ctx, code, existing, now)
	case !isNotFound(err):
		return nil, err
	}

	if credential.Username == "" {
		return nil, ErrUsernameRequired
	}
	validator := &validate.Validator{}
	validateUsername(validator, credential.Username)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	user := &User{
		ID:        uuid.New(),
		Username:  credential.Username,
		Email:     optional(credential.Email),
		CreatedAt: now,
	}

	err = service.store.CreateUserFromEmailCode(ctx, code.ID, user, now)
	switch {
	case err == nil:
		ctxutil.GetLogger(ctx).InfoContext(ctx, "user_registered",
			slog.String("user_id", user.ID),
			slog.String("strategy", "email_code"),
		)
		return user, nil

	case errors.Is(err, ErrSecretSpent):
		return nil, ErrInvalidCode

	case errors.Is(err, ErrEmailTaken):
		// The address was registered between the lookup and the insert.
		existing, err := service.store.FindUserByEmail(ctx, credential.Email)
		if err != nil {
			return nil, err
		}
		return service.redeemForExisting(ctx, code, existing, now)
	}

	return nil, err
}

func (service *Service) redeemForExisting(ctx context.Context, code *EmailCode, user *User, now time.Time) (*User, error) {
	if err := service.store.ConsumeEmailCode(ctx, code.ID, now); err != nil {
		if errors.Is(err, ErrSecretSpent) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	return user, nil
}

// # OAuth Path

/*
resolveOAuth applies, in order: the provider-link fast path, linking by email,
and creation with a synthesized username. Every insert may lose a race to a
concurrent call for the same profile; each loss is folded back into the branch
that won.
*/
func (service *Service) resolveOAuth(ctx context.Context, credential OAuthCredential) (*User, error) {
	credential, err := normalizeOAuth(credential)
	if err != nil {
		return nil, err
	}

	user, err := service.store.FindUserByOAuth(ctx, credential.Provider, credential.SubjectID)
	switch {
	case err == nil:
		return user, nil
	case !isNotFound(err):
		return nil, err
	}

	if credential.Email == "" {
		return nil, ErrEmailRequired
	}

	existing, err := service.store.FindUserByEmail(ctx, credential.Email)
	switch {
	case err == nil:
		return service.linkProvider(ctx, existing, credential)
	case !isNotFound(err):
		return nil, err
	}

	return service.createFromProvider(ctx, credential)
}

func (service *Service) newOAuthAccount(userID string, credential OAuthCredential) *OAuthAccount {
	return &OAuthAccount{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    credential.Provider,
		ProviderID:  credential.SubjectID,
		Email:       optional(credential.Email),
		DisplayName: optional(credential.DisplayName),
		CreatedAt:   service.now().UTC(),
	}
}

// linkProvider attaches the provider identity to user. Losing the insert to a
// concurrent link returns whoever owns the identity now.
func (service *Service) linkProvider(ctx context.Context, user *User, credential OAuthCredential) (*User, error) {
	err := service.store.LinkOAuthAccount(ctx, service.newOAuthAccount(user.ID, credential))
	switch {
	case err == nil:
		ctxutil.GetLogger(ctx).InfoContext(ctx, "oauth_account_linked",
			slog.String("user_id", user.ID),
			slog.String("provider", credential.Provider),
		)
		return user, nil
	case errors.Is(err, ErrAccountLinked):
		return service.store.FindUserByOAuth(ctx, credential.Provider, credential.SubjectID)
	}
	return nil, err
}

// createFromProvider tries the bare username base, then up to
// [UsernameSuffixAttempts] suffixed variants.
func (service *Service) createFromProvider(ctx context.Context, credential OAuthCredential) (*User, error) {
	base := usernameBase(credential.DisplayName, credential.Email)

	for attempt := 0; attempt <= UsernameSuffixAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			var err error
			if candidate, err = suffixedUsername(base); err != nil {
				return nil, apperr.Internal(fmt.Errorf("identity_username_suffix_failed: %w", err))
			}
		}

		user := &User{
			ID:          uuid.New(),
			Username:    candidate,
			Email:       optional(credential.Email),
			DisplayName: optional(credential.DisplayName),
			CreatedAt:   service.now().UTC(),
		}

		err := service.store.CreateUserWithOAuth(ctx, user, service.newOAuthAccount(user.ID, credential))
		switch {
		case err == nil:
			ctxutil.GetLogger(ctx).InfoContext(ctx, "user_registered",
				slog.String("user_id", user.ID),
				slog.String("strategy", "oauth"),
				slog.String("provider", credential.Provider),
			)
			return user, nil

		case errors.Is(err, ErrUsernameTaken):
			continue

		case errors.Is(err, ErrAccountLinked):
			return service.store.FindUserByOAuth(ctx, credential.Provider, credential.SubjectID)

		case errors.Is(err, ErrEmailTaken):
			existing, err := service.store.FindUserByEmail(ctx, credential.Email)
			if err != nil {
				return nil, err
			}
			return service.linkProvider(ctx, existing, credential)

		default:
			return nil, err
		}
	}

	return nil, apperr.Internal(fmt.Errorf("identity_username_exhausted: base %q after %d attempts", base, UsernameSuffixAttempts+1))
}
