// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and session token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, signing, randomness)
// from the domain logic. Services receive it through small interfaces so tests
// can substitute cheap implementations.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for any token that fails verification.
var ErrInvalidSession = errors.New("sec: invalid session token")

// SessionClaims is the claim set carried by a session token.
//
// The identity fields mirror the user record at issuance time. They are not
// refreshed until the caller signs in again.
type SessionClaims struct {
	jwt.RegisteredClaims

	UserID      string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// SessionSubject is the identity bound into a new token.
type SessionSubject struct {
	UserID      string
	Username    string
	Email       string
	DisplayName string
}

// TokenService mints and verifies HS256 session tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	timeToLive time.Duration
	now        func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(secret, issuer string, timeToLive time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("sec: session secret must be at least 16 bytes")
	}
	if timeToLive <= 0 {
		return nil, errors.New("sec: session ttl must be positive")
	}
	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		timeToLive: timeToLive,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of the service that reads time from now.
func (service *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *service
	clone.now = now
	return &clone
}

// Issue signs a token for subject and returns it with its expiry.
func (service *TokenService) Issue(subject SessionSubject) (string, time.Time, error) {
	issuedAt := service.now()
	expiresAt := issuedAt.Add(service.timeToLive)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:      subject.UserID,
		Username:    subject.Username,
		Email:       subject.Email,
		DisplayName: subject.DisplayName,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec_sign_session_failed: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry. Every failure collapses to
// [ErrInvalidSession].
func (service *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return service.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
