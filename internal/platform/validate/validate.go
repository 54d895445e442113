// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate provides a chainable Validator that collects field-level
// errors before returning a single [apperr.AppError].
//
// # Architecture
//
// Handlers validate request shape with it and services validate the values
// they persist, so storage only ever sees semantically valid data.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
)

var (
	// alphanumericRegex matches ASCII letters and digits only.
	alphanumericRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	// digitsRegex matches ASCII digits only.
	digitsRegex = regexp.MustCompile(`^[0-9]+$`)

	// ErrInvalidJSON is returned when the request body cannot be decoded.
	ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")
)

// Validator collects field-level validation errors via a fluent, chainable API.
//
// # Concurrency
//
// Validator is not safe for concurrent use. A new instance must be created
// for every request/operation.
type Validator struct {
	errs []apperr.FieldError
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLen fails if the Unicode character count exceeds max.
func (v *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d characters", max))
	}
	return v
}

// MinLen fails if the Unicode character count is below min.
func (v *Validator) MinLen(field, value string, min int) *Validator {
	if utf8.RuneCountInString(value) < min {
		v.add(field, fmt.Sprintf("Minimum %d characters", min))
	}
	return v
}

// MaxBytes fails if the encoded byte length exceeds max.
func (v *Validator) MaxBytes(field, value string, max int) *Validator {
	if len(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d bytes", max))
	}
	return v
}

// Email fails unless the value is a bare RFC 5322 address (no display name).
func (v *Validator) Email(field, value string) *Validator {
	if parsed, err := mail.ParseAddress(value); err != nil || parsed.Address != value {
		v.add(field, "Must be a valid email address")
	}
	return v
}

// Alphanumeric fails if the value contains anything but ASCII letters and digits.
func (v *Validator) Alphanumeric(field, value string) *Validator {
	if !alphanumericRegex.MatchString(value) {
		v.add(field, "Must contain only letters and digits")
	}
	return v
}

// Digits fails unless the value is exactly length ASCII digits.
func (v *Validator) Digits(field, value string, length int) *Validator {
	if len(value) != length || !digitsRegex.MatchString(value) {
		v.add(field, fmt.Sprintf("Must be exactly %d digits", length))
	}
	return v
}

// Err returns a [apperr.AppError] (VALIDATION_ERROR) if any rules failed,
// or nil if all rules passed.
//
// This is the only output method — call it at the end of the chain.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperr.ValidationError("Validation failed", v.errs...)
}

// HasErrors reports whether any validation rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// add appends a [apperr.FieldError] to the internal slice.
func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, apperr.FieldError{Field: field, Message: message})
}
