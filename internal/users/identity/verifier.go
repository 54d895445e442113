// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
)

// # Input Rules

func validateUsername(validator *validate.Validator, username string) {
	validator.Required(FieldUsername, username)
	if username == "" {
		return
	}
	validator.MinLen(FieldUsername, username, UsernameMinLength).
		MaxLen(FieldUsername, username, UsernameMaxLength).
		Alphanumeric(FieldUsername, username)
}

// validatePassword caps the byte length at what bcrypt actually reads.
func validatePassword(validator *validate.Validator, password string) {
	validator.Required(FieldPassword, password).
		MinLen(FieldPassword, password, PasswordMinLength).
		MaxBytes(FieldPassword, password, sec.MaxPasswordBytes)
}

func validateEmail(validator *validate.Validator, email string) {
	validator.Required(FieldEmail, email)
	if email == "" {
		return
	}
	validator.MaxLen(FieldEmail, email, EmailMaxLength).
		Email(FieldEmail, email)
}

// # Password Verifier

/*
verifyPassword resolves a username-or-email and password pair.

A missing account, an account without a password and a wrong password all
return the same [ErrInvalidCredentials]; the first two still spend one bcrypt
comparison so their latency matches the third.
*/
func (service *Service) verifyPassword(ctx context.Context, credential PasswordCredential) (*User, error) {
	identifier := strings.TrimSpace(credential.Identifier)

	validator := &validate.Validator{}
	validator.Required(FieldLogin, identifier).
		Required(FieldPassword, credential.Password)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	user, err := service.store.FindUserByLogin(ctx, identifier)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if err != nil || !user.HasPassword() || len(credential.Password) > sec.MaxPasswordBytes {
		service.hasher.CompareDummy(ctx, truncate(credential.Password, sec.MaxPasswordBytes))
		return nil, ErrInvalidCredentials
	}

	matched, err := service.hasher.Compare(ctx, *user.PasswordHash, credential.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("identity_password_compare_failed: %w", err))
	}
	if !matched {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// # Email Code Verifier

func normalizeEmailCode(credential EmailCodeCredential) (EmailCodeCredential, error) {
	credential.Email = NormalizeEmail(credential.Email)
	credential.Code = strings.TrimSpace(credential.Code)
	credential.Username = strings.TrimSpace(credential.Username)

	validator := &validate.Validator{}
	validateEmail(validator, credential.Email)
	validator.Required(FieldCode, credential.Code).
		Digits(FieldCode, credential.Code, EmailCodeDigits)
	if err := validator.Err(); err != nil {
		return credential, err
	}
	return credential, nil
}

// # OAuth Verifier

func normalizeOAuth(credential OAuthCredential) (OAuthCredential, error) {
	credential.Provider = strings.ToLower(strings.TrimSpace(credential.Provider))
	credential.SubjectID = strings.TrimSpace(credential.SubjectID)
	credential.Email = NormalizeEmail(credential.Email)
	credential.DisplayName = strings.TrimSpace(credential.DisplayName)

	if credential.Provider == "" || credential.SubjectID == "" {
		return credential, apperr.BadRequest("Provider profile is incomplete")
	}
	if len([]rune(credential.DisplayName)) > DisplayNameMaxLength {
		credential.DisplayName = string([]rune(credential.DisplayName)[:DisplayNameMaxLength])
	}
	return credential, nil
}

func truncate(value string, maxBytes int) string {
	if len(value) <= maxBytes {
		return value
	}
	return value[:maxBytes]
}
