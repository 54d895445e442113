// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/dberr"
)

// # Domain Conflicts

var (
	// ErrUsernameTaken is returned when the username unique constraint fires.
	ErrUsernameTaken = apperr.Conflict("Username is already taken")

	// ErrEmailTaken is returned when the email unique constraint fires.
	ErrEmailTaken = apperr.Conflict("Email is already registered")

	// ErrAccountLinked is returned when (provider, provider_id) is already owned.
	ErrAccountLinked = apperr.Conflict("Provider account is already linked")

	// ErrSecretSpent means a conditional consume found the code already used or expired.
	ErrSecretSpent = errors.New("identity_secret_spent")

	// errCodeRace means another issuance for the same address committed first.
	errCodeRace = errors.New("identity_email_code_race")
)

// # Data Access

// Store is the transactional persistence contract for accounts and secrets.
//
// Lookups that match nothing return [dberr.ErrNotFound]. Inserts never
// pre-check uniqueness; they translate the violated constraint into one of the
// conflict sentinels above.
type Store interface {

	/*
		CreateUser inserts a new account.

		Returns:
		  - error: ErrUsernameTaken, ErrEmailTaken or storage failures
	*/
	CreateUser(context context.Context, user *User) error

	// FindUserByID returns the account with the given id.
	FindUserByID(context context.Context, id string) (*User, error)

	// FindUserByEmail returns the account owning a normalized address.
	FindUserByEmail(context context.Context, email string) (*User, error)

	// FindUserByLogin returns the account whose username equals identifier
	// or whose email equals its normalized form.
	FindUserByLogin(context context.Context, identifier string) (*User, error)

	/*
		DeleteUser removes the account with every provider link, code and
		reset token it owns, including codes issued to its address before it existed.

		Returns:
		  - error: dberr.ErrNotFound or storage failures
	*/
	DeleteUser(context context.Context, id string) error

	// FindUserByOAuth returns the owner of (provider, providerID).
	FindUserByOAuth(context context.Context, provider, providerID string) (*User, error)

	// ListOAuthAccounts returns every provider link owned by userID.
	ListOAuthAccounts(context context.Context, userID string) ([]OAuthAccount, error)

	/*
		LinkOAuthAccount attaches a provider identity to an existing user.

		Returns:
		  - error: ErrAccountLinked or storage failures
	*/
	LinkOAuthAccount(context context.Context, account *OAuthAccount) error

	/*
		CreateUserWithOAuth inserts the user and its first provider link in one
		transaction. Nothing is persisted when either insert conflicts.

		Returns:
		  - error: ErrUsernameTaken, ErrEmailTaken, ErrAccountLinked or storage failures
	*/
	CreateUserWithOAuth(context context.Context, user *User, account *OAuthAccount) error

	/*
		ReplaceEmailCode marks every unused code for code.Email as used and inserts
		code, in one transaction.
	*/
	ReplaceEmailCode(context context.Context, code *EmailCode) error

	// FindActiveEmailCode returns the unused, unexpired code matching email and value.
	FindActiveEmailCode(context context.Context, email, value string, now time.Time) (*EmailCode, error)

	/*
		ConsumeEmailCode marks the code used if it is still unused and unexpired at now.

		Returns:
		  - error: ErrSecretSpent when another caller consumed it first
	*/
	ConsumeEmailCode(context context.Context, id string, now time.Time) error

	/*
		CreateUserFromEmailCode consumes the code and inserts the user in one
		transaction. A conflicting insert rolls the consumption back.

		Returns:
		  - error: ErrSecretSpent, ErrUsernameTaken, ErrEmailTaken or storage failures
	*/
	CreateUserFromEmailCode(context context.Context, codeID string, user *User, now time.Time) error

	// CreateResetToken persists a new reset token.
	CreateResetToken(context context.Context, token *PasswordResetToken) error

	/*
		ConsumeResetToken marks the token used and stores passwordHash on its owner,
		both or neither.

		Returns:
		  - string: owning user id
		  - error: dberr.ErrNotFound when the token is unknown, used or expired
	*/
	ConsumeResetToken(context context.Context, token, passwordHash string, now time.Time) (string, error)

	// Ping checks connectivity for readiness probes.
	Ping(context context.Context) error
}

// conflictFor maps the violated constraint (Postgres constraint name or
// SQLite column list) to its sentinel.
func conflictFor(target string) error {
	switch {
	case strings.Contains(target, "email_codes"):
		return errCodeRace
	case strings.Contains(target, "provider"):
		return ErrAccountLinked
	case strings.Contains(target, "username"):
		return ErrUsernameTaken
	case strings.Contains(target, "email"):
		return ErrEmailTaken
	}
	return apperr.Conflict("Resource already exists")
}

// translate classifies err for the calling store method.
func translate(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSecretSpent) {
		return ErrSecretSpent
	}
	if target, ok := dberr.UniqueViolation(err); ok {
		return conflictFor(target)
	}
	return dberr.Wrap(err, action)
}
