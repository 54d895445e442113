// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import "time"

// # Secret Lifetimes

const (
	// EmailCodeTTL is how long a login code stays redeemable.
	EmailCodeTTL = 10 * time.Minute

	// EmailCodeDigits is the length of a login code.
	EmailCodeDigits = 6

	// ResetTokenTTL is how long a password reset link stays valid.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the number of random bytes in a reset token (hex doubles it).
	ResetTokenLength = 32
)

// # Account Constraints

const (
	UsernameMinLength = 3
	UsernameMaxLength = 30

	PasswordMinLength = 8

	EmailMaxLength       = 255
	DisplayNameMaxLength = 255

	// SynthesizedUsernameBaseLength leaves room for a four digit suffix.
	SynthesizedUsernameBaseLength = 25

	// UsernameSuffixAttempts bounds the suffixed retries after the bare base collides.
	UsernameSuffixAttempts = 10

	// fallbackUsernameBase replaces slugs too short to be a username.
	fallbackUsernameBase = "user"

	// emailCodeIssueAttempts bounds retries when two issuances for one address race.
	emailCodeIssueAttempts = 3
)
