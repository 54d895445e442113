// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity resolves credentials into durable user accounts.

Three independent strategies (password, one-time email code, OAuth profile)
feed a single resolver that finds, creates or links exactly one [User]. The
package also owns the short-lived secrets those strategies consume: email codes
and password-reset tokens.

# Architecture

  - Service: the public operations (Register, Login, VerifyEmailCode, ...).
  - Resolver: one entry point dispatching a tagged [Credential].
  - Store: one contract with PostgreSQL and SQLite implementations.
  - Handler: the JSON delivery layer mounted under /api/auth.

Uniqueness is never decided by a prior read. Every insert is attempted and a
constraint violation is mapped back to a domain outcome.
*/
package identity

import (
	"strings"
	"time"

	"github.com/taibuivan/gatekeeper/pkg/pointer"
)

// # Domain Entities

// User is the canonical account every credential resolves to.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email"`
	DisplayName  *string   `json:"display_name"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasPassword reports whether password login is possible for this account.
func (user *User) HasPassword() bool {
	return user.PasswordHash != nil && *user.PasswordHash != ""
}

// OAuthAccount links a provider identity to its owning user.
type OAuthAccount struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	Email       *string   `json:"email,omitempty"`
	DisplayName *string   `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmailCode is a six digit one-time login code.
type EmailCode struct {
	ID        string
	Email     string
	Code      string
	UserID    *string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// PasswordResetToken is an opaque single-use password reset secret.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// # Normalization

// NormalizeEmail trims and lower-cases an address before any lookup or insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// optional turns blank strings into nil.
func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return pointer.To(trimmed)
}

// # Field Identifiers

const (
	FieldUsername    = "username"
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldDisplayName = "display_name"
	FieldLogin       = "login"
	FieldCode        = "code"
	FieldToken       = "token"
	FieldProvider    = "provider"
	FieldSubject     = "subject_id"
	FieldUser        = "user"
	FieldExpiresAt   = "expires_at"
	FieldSent        = "sent"
	FieldSuccess     = "success"
	FieldMessage     = "message"
)
