// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
)

/*
TestConstructors_StatusMapping checks that each constructor maps to the expected
status and code.
*/
func TestConstructors_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *apperr.AppError
		status int
		code   string
	}{
		{"bad_request", apperr.BadRequest("username required"), http.StatusBadRequest, apperr.CodeBadRequest},
		{"unauthorized", apperr.Unauthorized("nope"), http.StatusUnauthorized, apperr.CodeUnauthorized},
		{"forbidden", apperr.Forbidden("disabled"), http.StatusForbidden, apperr.CodeForbidden},
		{"conflict", apperr.Conflict("taken"), http.StatusConflict, apperr.CodeConflict},
		{"not_found", apperr.NotFound("User"), http.StatusNotFound, apperr.CodeNotFound},
		{"internal", apperr.Internal(errors.New("boom")), http.StatusInternalServerError, apperr.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

/*
TestRateLimited_RetryAfter verifies the retry hint is carried and never drops below one second.
*/
func TestRateLimited_RetryAfter(t *testing.T) {
	assert.Equal(t, 42, apperr.RateLimited(42).RetryAfter)
	assert.Equal(t, 1, apperr.RateLimited(0).RetryAfter)
	assert.Equal(t, 1, apperr.RateLimited(-5).RetryAfter)
}

/*
TestAs_WrappedChain verifies extraction through fmt.Errorf wrapping.
*/
func TestAs_WrappedChain(t *testing.T) {
	sentinel := apperr.Conflict("Username is already taken")
	wrapped := fmt.Errorf("identity_store_create_user_failed: %w", sentinel)

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Same(t, sentinel, ae)
	assert.True(t, errors.Is(wrapped, sentinel))
	assert.True(t, apperr.IsCode(wrapped, apperr.CodeConflict))
	assert.False(t, apperr.IsCode(errors.New("plain"), apperr.CodeConflict))
	assert.Nil(t, apperr.As(errors.New("plain")))
}

/*
TestInternal_HidesCause makes sure the client message never contains the cause.
*/
func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("pq: relation users does not exist")
	err := apperr.Internal(cause)

	assert.NotContains(t, err.Error(), "relation")
	assert.ErrorIs(t, err, cause)
}
