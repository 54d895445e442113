// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

// Credential is a presented proof of identity. The set of implementations is
// closed: [PasswordCredential], [EmailCodeCredential] and [OAuthCredential].
type Credential interface {
	strategy() string
}

// PasswordCredential is an identifier (username or email) plus a plaintext password.
type PasswordCredential struct {
	Identifier string
	Password   string
}

// EmailCodeCredential redeems a login code. Username is only consulted when
// the address has no account yet.
type EmailCodeCredential struct {
	Email    string
	Code     string
	Username string
}

// OAuthCredential is the profile returned by a completed provider handshake.
// Email must already be stripped if the provider did not verify it.
type OAuthCredential struct {
	Provider    string
	SubjectID   string
	Email       string
	DisplayName string
}

func (PasswordCredential) strategy() string  { return "password" }
func (EmailCodeCredential) strategy() string { return "email_code" }
func (OAuthCredential) strategy() string     { return "oauth" }
