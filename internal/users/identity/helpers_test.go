// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity_test

import (
	"context"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/gatekeeper/internal/platform/mail"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/sqlite"
	"github.com/taibuivan/gatekeeper/internal/users/identity"
)

const testSecret = "identity-test-secret-0123456789"

// fakeMailer records every message and optionally fails.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail error
}

func (mailer *fakeMailer) Send(_ context.Context, message mail.Message) error {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	mailer.sent = append(mailer.sent, message)
	return mailer.fail
}

func (mailer *fakeMailer) messages() []mail.Message {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	return append([]mail.Message(nil), mailer.sent...)
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

type fixture struct {
	service *identity.Service
	store   *identity.SQLiteStore
	mailer  *fakeMailer
	clock   *testClock
	tokens  *sec.TokenService
}

var allFeatures = identity.Features{
	PasswordEnabled:  true,
	EmailCodeEnabled: true,
}

func newFixture(t *testing.T, features identity.Features) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := identity.NewSQLiteStore(ctx, db)
	require.NoError(t, err)

	tokens, err := sec.NewTokenService(testSecret, "gatekeeper", time.Hour)
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
	mailer := &fakeMailer{}

	service := identity.NewService(store, sec.NewHasher(bcrypt.MinCost, 4), tokens, mailer, identity.Options{
		Features:    features,
		AppURL:      "https://app.example.test",
		MailTimeout: time.Second,
		Now:         clock.Now,
	})

	return &fixture{service: service, store: store, mailer: mailer, clock: clock, tokens: tokens}
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode drains deliveries and returns the code from the newest login mail to email.
func (f *fixture) lastCode(t *testing.T, email string) string {
	t.Helper()
	require.NoError(t, f.service.Drain(context.Background()))

	messages := f.mailer.messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].To == email && messages[i].Subject == "Your login code" {
			code := codePattern.FindString(messages[i].Body)
			require.NotEmpty(t, code)
			return code
		}
	}
	t.Fatalf("no login code mailed to %s", email)
	return ""
}

var linkPattern = regexp.MustCompile(`https://\S+`)

// lastResetToken drains deliveries and returns the token from the newest reset mail to email.
func (f *fixture) lastResetToken(t *testing.T, email string) string {
	t.Helper()
	require.NoError(t, f.service.Drain(context.Background()))

	messages := f.mailer.messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].To == email && messages[i].Subject == "Reset your password" {
			link, err := url.Parse(linkPattern.FindString(messages[i].Body))
			require.NoError(t, err)
			require.Equal(t, "/reset-password", link.Path)
			return link.Query().Get("token")
		}
	}
	t.Fatalf("no reset link mailed to %s", email)
	return ""
}

func (f *fixture) register(t *testing.T, username, email, password string) *identity.User {
	t.Helper()
	user, err := f.service.Register(context.Background(), identity.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return user
}
