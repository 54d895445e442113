// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/config"
)

/*
TestLoad_Defaults checks the documented defaults with an empty environment.
*/
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Auth.PasswordEnabled)
	assert.True(t, cfg.Auth.EmailCodeEnabled)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 15, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval)
	assert.True(t, cfg.UsesSQLite())
	assert.Equal(t, "./data/gatekeeper.db", cfg.SQLitePath())
	assert.Empty(t, cfg.EnabledProviders())
}

/*
TestLoad_NestedProviders reads provider blocks through their prefixes.
*/
func TestLoad_NestedProviders(t *testing.T) {
	t.Setenv("OAUTH_GITHUB_ENABLED", "true")
	t.Setenv("OAUTH_GITHUB_CLIENT_ID", "id")
	t.Setenv("OAUTH_GITHUB_CLIENT_SECRET", "secret")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"github"}, cfg.EnabledProviders())
	assert.Equal(t, "id", cfg.GitHub.ClientID)
}

/*
TestValidate_Rules covers each startup rejection.
*/
func TestValidate_Rules(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Environment:   "development",
			SessionSecret: config.DefaultSessionSecret,
			AppURL:        "http://localhost:3000",
			Auth:          config.AuthConfig{PasswordEnabled: true},
			RateLimit:     config.RateLimitConfig{Window: time.Minute, MaxAttempts: 3},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no_methods", func(c *config.Config) { c.Auth.PasswordEnabled = false }},
		{"default_secret_in_production", func(c *config.Config) {
			c.Environment = "production"
			c.SMTP.Host = "smtp.example.com"
		}},
		{"smtp_missing_in_production", func(c *config.Config) {
			c.Environment = "production"
			c.SessionSecret = "a-real-production-secret"
		}},
		{"smtp_missing_in_production_email_code_only", func(c *config.Config) {
			c.Environment = "production"
			c.SessionSecret = "a-real-production-secret"
			c.Auth = config.AuthConfig{EmailCodeEnabled: true}
		}},
		{"invalid_trusted_proxy", func(c *config.Config) { c.TrustedProxies = "10.0.0.0/8, proxy.internal" }},
		{"provider_without_secret", func(c *config.Config) { c.Google = config.OAuthProvider{Enabled: true, ClientID: "id"} }},
		{"zero_window", func(c *config.Config) { c.RateLimit.Window = 0 }},
		{"relative_app_url", func(c *config.Config) { c.AppURL = "/app" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

/*
TestWarnings_LocalSMTPInProduction flags a loopback relay.
*/
func TestWarnings_LocalSMTPInProduction(t *testing.T) {
	cfg := &config.Config{
		Environment: "production",
		AppURL:      "https://auth.example.com",
		Auth:        config.AuthConfig{EmailCodeEnabled: true},
		SMTP:        config.SMTPConfig{Host: "127.0.0.1"},
	}
	assert.Len(t, cfg.Warnings(), 1)

	cfg.SMTP.Host = "smtp.example.com"
	assert.Empty(t, cfg.Warnings())
}

/*
TestAllowsOrigin matches the app origin and the extra list exactly.
*/
func TestAllowsOrigin(t *testing.T) {
	cfg := &config.Config{
		AppURL:       "https://app.example.com/dashboard",
		ExtraOrigins: "https://admin.example.com, http://localhost:5173",
	}

	assert.True(t, cfg.AllowsOrigin("https://app.example.com"))
	assert.True(t, cfg.AllowsOrigin("http://localhost:5173"))
	assert.False(t, cfg.AllowsOrigin("https://evil.example.com"))
	assert.False(t, cfg.AllowsOrigin(""))
}

/*
TestValidate_ProductionMailRelay accepts production once a relay is configured,
and lets provider-only deployments run without one.
*/
func TestValidate_ProductionMailRelay(t *testing.T) {
	cfg := &config.Config{
		Environment:   "production",
		SessionSecret: "a-real-production-secret",
		AppURL:        "https://auth.example.com",
		Auth:          config.AuthConfig{PasswordEnabled: true, EmailCodeEnabled: true},
		RateLimit:     config.RateLimitConfig{Window: time.Minute, MaxAttempts: 3},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP_HOST")

	cfg.SMTP.Host = "smtp.example.com"
	assert.NoError(t, cfg.Validate())

	cfg.SMTP.Host = ""
	cfg.Auth = config.AuthConfig{}
	cfg.GitHub = config.OAuthProvider{Enabled: true, ClientID: "id", ClientSecret: "secret"}
	assert.NoError(t, cfg.Validate())
}

/*
TestTrustedProxyPrefixes turns bare addresses into single-host prefixes.
*/
func TestTrustedProxyPrefixes(t *testing.T) {
	cfg := &config.Config{TrustedProxies: " 10.0.0.0/8 ,192.0.2.7,, ::1 , 172.16.5.9/12"}

	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("::1/128"),
		netip.MustParsePrefix("172.16.0.0/12"),
	}, cfg.TrustedProxyPrefixes())

	assert.Empty(t, (&config.Config{}).TrustedProxyPrefixes())
}
