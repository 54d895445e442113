// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultSessionSecret is the placeholder secret shipped for local development.
const DefaultSessionSecret = "gatekeeper-dev-secret-change-me"

// # Configuration Schema

// Config holds all runtime configuration for the Gatekeeper API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// DatabaseURL selects the store: postgres:// URLs use pgx, "sqlite:<path>" uses SQLite.
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite:./data/gatekeeper.db"`

	// RedisURL enables the shared rate-limit backend when set.
	RedisURL string `env:"REDIS_URL"`

	// Session signing
	SessionSecret string        `env:"SESSION_SECRET" envDefault:"gatekeeper-dev-secret-change-me"`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"168h"`

	// AppURL is the public origin of the browser application.
	AppURL string `env:"APP_URL" envDefault:"http://localhost:3000"`

	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Google    OAuthProvider   `envPrefix:"OAUTH_GOOGLE_"`
	GitHub    OAuthProvider   `envPrefix:"OAUTH_GITHUB_"`
	Microsoft OAuthProvider   `envPrefix:"OAUTH_MICROSOFT_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	SMTP      SMTPConfig      `envPrefix:"SMTP_"`

	// MailSendTimeout bounds a single delivery attempt.
	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"10s"`

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`

	// TrustedProxies lists the CIDRs or addresses whose forwarding headers are
	// believed, comma-separated. Empty means the socket peer is always the client.
	TrustedProxies string `env:"TRUSTED_PROXIES"`
}

// AuthConfig toggles credential strategies.
type AuthConfig struct {
	PasswordEnabled      bool `env:"PASSWORD_ENABLED"       envDefault:"true"`
	EmailCodeEnabled     bool `env:"EMAIL_CODE_ENABLED"     envDefault:"true"`
	PasswordRequireEmail bool `env:"PASSWORD_REQUIRE_EMAIL" envDefault:"true"`
	BcryptCost           int  `env:"BCRYPT_COST"            envDefault:"12"`
}

// OAuthProvider holds the client registration of one external provider.
type OAuthProvider struct {
	Enabled      bool   `env:"ENABLED"       envDefault:"false"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// RateLimitConfig sizes the fixed-window governor.
type RateLimitConfig struct {
	Window        time.Duration `env:"WINDOW"         envDefault:"15m"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS"   envDefault:"15"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// SMTPConfig describes the outbound mail relay. An empty Host selects the log
// mailer, which only development accepts.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"1025"`
	Username string `env:"USER"`
	Password string `env:"PASS"`
	From     string `env:"FROM" envDefault:"noreply@localhost"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

/*
Validate rejects configurations the server must not start with.

Rules:
  - At least one credential strategy (password, email code, any provider) is enabled.
  - Production refuses the development session secret.
  - Production requires SMTP_HOST while password or email-code sign-in is on.
  - Every enabled provider carries a client id and secret.
  - The rate limiter has a positive window and budget.
  - APP_URL is an absolute URL.
  - Every TRUSTED_PROXIES entry is a CIDR or an IP address.
*/
func (c *Config) Validate() error {
	var problems []error

	if !c.Auth.PasswordEnabled && !c.Auth.EmailCodeEnabled && len(c.EnabledProviders()) == 0 {
		problems = append(problems, errors.New("at least one authentication method must be enabled"))
	}

	if c.IsProduction() && c.SessionSecret == DefaultSessionSecret {
		problems = append(problems, errors.New("SESSION_SECRET must be changed in production"))
	}

	if c.IsProduction() && c.SMTP.Host == "" && (c.Auth.PasswordEnabled || c.Auth.EmailCodeEnabled) {
		problems = append(problems, errors.New("SMTP_HOST is required in production when password or email-code sign-in is enabled"))
	}

	for name, provider := range c.Providers() {
		if provider.Enabled && (provider.ClientID == "" || provider.ClientSecret == "") {
			problems = append(problems, fmt.Errorf("%s oauth is enabled but client id or secret is missing", name))
		}
	}

	if c.RateLimit.Window <= 0 || c.RateLimit.MaxAttempts <= 0 {
		problems = append(problems, errors.New("RATE_LIMIT_WINDOW and RATE_LIMIT_MAX_ATTEMPTS must be positive"))
	}

	if parsed, err := url.Parse(c.AppURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		problems = append(problems, fmt.Errorf("APP_URL %q is not an absolute URL", c.AppURL))
	}

	for _, entry := range splitList(c.TrustedProxies) {
		if _, err := parseProxy(entry); err != nil {
			problems = append(problems, fmt.Errorf("TRUSTED_PROXIES entry %q is neither a CIDR nor an IP", entry))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(problems...))
	}
	return nil
}

// Warnings lists settings that are legal but suspicious for the current environment.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.IsProduction() && c.Auth.EmailCodeEnabled && isLocalHost(c.SMTP.Host) {
		warnings = append(warnings, "SMTP_HOST points at localhost in production; login codes will not reach users")
	}
	if c.IsProduction() && !strings.HasPrefix(c.AppURL, "https://") {
		warnings = append(warnings, "APP_URL is not https in production")
	}
	return warnings
}

// Providers returns the provider registrations keyed by name.
func (c *Config) Providers() map[string]OAuthProvider {
	return map[string]OAuthProvider{
		"google":    c.Google,
		"github":    c.GitHub,
		"microsoft": c.Microsoft,
	}
}

// EnabledProviders lists the names of enabled providers.
func (c *Config) EnabledProviders() []string {
	var names []string
	for _, name := range []string{"google", "github", "microsoft"} {
		if c.Providers()[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesSQLite reports whether DatabaseURL selects the embedded store.
func (c *Config) UsesSQLite() bool {
	return strings.HasPrefix(c.DatabaseURL, "sqlite:")
}

// SQLitePath returns the file path part of a sqlite: DatabaseURL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.DatabaseURL, "sqlite:"), "//")
}

// AllowsOrigin reports whether a browser origin may call the API with credentials.
// The APP_URL origin is always allowed; EXTRA_ORIGINS adds a comma-separated list.
func (c *Config) AllowsOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if appOrigin, err := url.Parse(c.AppURL); err == nil && origin == appOrigin.Scheme+"://"+appOrigin.Host {
		return true
	}
	for _, extra := range splitList(c.ExtraOrigins) {
		if extra == origin {
			return true
		}
	}
	return false
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address becomes a
// single-host prefix; entries [Config.Validate] rejects are skipped.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix {
	var prefixes []netip.Prefix
	for _, entry := range splitList(c.TrustedProxies) {
		if prefix, err := parseProxy(entry); err == nil {
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes
}

func parseProxy(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func isLocalHost(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
