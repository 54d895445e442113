// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/gatekeeper/internal/platform/sec"
)

const testSecret = "0123456789abcdef0123456789abcdef"

/*
TestHasher_RoundTrip verifies hashing and comparison at the minimal cost.
*/
func TestHasher_RoundTrip(t *testing.T) {
	hasher := sec.NewHasher(bcrypt.MinCost, 2)
	ctx := context.Background()

	hash, err := hasher.Hash(ctx, "right-pw")
	require.NoError(t, err)
	assert.NotEqual(t, "right-pw", hash)

	ok, err := hasher.Compare(ctx, hash, "right-pw")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Compare(ctx, hash, "wrong-pw")
	require.NoError(t, err)
	assert.False(t, ok)
}

/*
TestHasher_MalformedHash surfaces non-mismatch failures as errors.
*/
func TestHasher_MalformedHash(t *testing.T) {
	hasher := sec.NewHasher(bcrypt.MinCost, 1)

	ok, err := hasher.Compare(context.Background(), "not-a-bcrypt-hash", "pw")
	assert.False(t, ok)
	assert.Error(t, err)
}

/*
TestHasher_CancelledWhileQueued shows that a waiter respects its context.
*/
func TestHasher_CancelledWhileQueued(t *testing.T) {
	hasher := sec.NewHasher(bcrypt.MinCost, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hasher.Hash(ctx, "pw")
	assert.ErrorIs(t, err, context.Canceled)
}

/*
TestTokenService_IssueVerify covers the happy path and claim contents.
*/
func TestTokenService_IssueVerify(t *testing.T) {
	service, err := sec.NewTokenService(testSecret, "gatekeeper", 7*24*time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := service.Issue(sec.SessionSubject{
		UserID: "u-1", Username: "alice", Email: "a@x.com", DisplayName: "Alice",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, time.Minute)

	claims, err := service.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "Alice", claims.DisplayName)
}

/*
TestTokenService_Rejections covers tampering, foreign keys and expiry.
*/
func TestTokenService_Rejections(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	service, err := sec.NewTokenService(testSecret, "gatekeeper", time.Hour)
	require.NoError(t, err)
	service = service.WithClock(func() time.Time { return issuedAt })

	token, _, err := service.Issue(sec.SessionSubject{UserID: "u-1", Username: "alice"})
	require.NoError(t, err)

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		forged := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := service.Verify(forged)
		assert.ErrorIs(t, err, sec.ErrInvalidSession)
	})

	t.Run("other_secret", func(t *testing.T) {
		other, err := sec.NewTokenService("ffffffffffffffffffffffffffffffff", "gatekeeper", time.Hour)
		require.NoError(t, err)
		_, err = other.WithClock(func() time.Time { return issuedAt }).Verify(token)
		assert.ErrorIs(t, err, sec.ErrInvalidSession)
	})

	t.Run("expired", func(t *testing.T) {
		later := service.WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) })
		_, err := later.Verify(token)
		assert.ErrorIs(t, err, sec.ErrInvalidSession)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.Verify("not.a.token")
		assert.ErrorIs(t, err, sec.ErrInvalidSession)
	})
}

/*
TestNewTokenService_Validation rejects weak secrets and non-positive lifetimes.
*/
func TestNewTokenService_Validation(t *testing.T) {
	_, err := sec.NewTokenService("short", "gatekeeper", time.Hour)
	assert.Error(t, err)

	_, err = sec.NewTokenService(testSecret, "gatekeeper", 0)
	assert.Error(t, err)
}

/*
TestGenerateNumericCode_Format checks zero padding and width.
*/
func TestGenerateNumericCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 200; i++ {
		code, err := sec.GenerateNumericCode(6)
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

/*
TestGenerateSecureToken_Length checks hex encoding of the requested byte count.
*/
func TestGenerateSecureToken_Length(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.Regexp(t, `^[0-9a-f]+$`, first)
	assert.NotEqual(t, first, second)
}

/*
TestRandomInt_Bounds keeps every draw inside the inclusive range.
*/
func TestRandomInt_Bounds(t *testing.T) {
	for i := 0; i < 500; i++ {
		value, err := sec.RandomInt(1000, 9999)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, value, 1000)
		assert.LessOrEqual(t, value, 9999)
	}

	_, err := sec.RandomInt(5, 1)
	assert.Error(t, err)
}
