// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package oauth runs the browser handshake with external identity providers and
hands the resulting profile to the identity resolver.

Supported providers:

  - google: OpenID Connect userinfo, email kept only when email_verified.
  - github: REST user plus /user/emails, only a verified address is kept.
  - microsoft: Azure AD "common" tenant, OpenID Connect userinfo.
*/
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/taibuivan/gatekeeper/internal/users/identity"
)

// # Provider Registry

const (
	ProviderGoogle    = "google"
	ProviderGitHub    = "github"
	ProviderMicrosoft = "microsoft"

	googleUserInfoURL    = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserURL        = "https://api.github.com/user"
	githubEmailsURL      = "https://api.github.com/user/emails"
	microsoftUserInfoURL = "https://graph.microsoft.com/oidc/userinfo"

	maxProfileBytes = 1 << 20
)

// Endpoints overrides the provider URLs. Zero fields keep the defaults.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// EmailsURL is only used by GitHub.
	EmailsURL string
}

// Credentials is the client registration issued by the provider.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// RedirectURL is the absolute callback URL registered with the provider.
	RedirectURL string
}

// profileFetcher reads the signed-in profile with an authorized client.
type profileFetcher func(ctx context.Context, client *http.Client, urls Endpoints) (identity.OAuthCredential, error)

// Provider is one configured external identity provider.
type Provider struct {
	name   string
	config oauth2.Config
	urls   Endpoints
	fetch  profileFetcher
}

// Name returns the provider key used in routes and provider links.
func (provider *Provider) Name() string {
	return provider.name
}

// AuthCodeURL returns the consent page URL carrying state.
func (provider *Provider) AuthCodeURL(state string) string {
	return provider.config.AuthCodeURL(state)
}

/*
Exchange trades the authorization code for a token and loads the profile.

Returns:
  - identity.OAuthCredential: Provider, subject id and, when verified, email
  - error: Exchange or profile failures
*/
func (provider *Provider) Exchange(ctx context.Context, code string) (identity.OAuthCredential, error) {
	token, err := provider.config.Exchange(ctx, code)
	if err != nil {
		return identity.OAuthCredential{}, fmt.Errorf("oauth_%s_exchange_failed: %w", provider.name, err)
	}

	profile, err := provider.fetch(ctx, provider.config.Client(ctx, token), provider.urls)
	if err != nil {
		return identity.OAuthCredential{}, fmt.Errorf("oauth_%s_profile_failed: %w", provider.name, err)
	}
	profile.Provider = provider.name
	return profile, nil
}

// New builds the named provider. Unknown names return an error.
func New(name string, credentials Credentials, overrides Endpoints) (*Provider, error) {
	var (
		endpoint oauth2.Endpoint
		scopes   []string
		urls     Endpoints
		fetch    profileFetcher
	)

	switch name {
	case ProviderGoogle:
		endpoint = endpoints.Google
		scopes = []string{"openid", "email", "profile"}
		urls = Endpoints{UserInfoURL: googleUserInfoURL}
		fetch = fetchOIDCProfile(true)
	case ProviderGitHub:
		endpoint = endpoints.GitHub
		scopes = []string{"user:email"}
		urls = Endpoints{UserInfoURL: githubUserURL, EmailsURL: githubEmailsURL}
		fetch = fetchGitHubProfile
	case ProviderMicrosoft:
		endpoint = endpoints.AzureAD("common")
		scopes = []string{"openid", "email", "profile"}
		urls = Endpoints{UserInfoURL: microsoftUserInfoURL}
		fetch = fetchOIDCProfile(false)
	default:
		return nil, fmt.Errorf("oauth_unknown_provider: %q", name)
	}

	if overrides.AuthURL != "" {
		endpoint.AuthURL = overrides.AuthURL
	}
	if overrides.TokenURL != "" {
		endpoint.TokenURL = overrides.TokenURL
	}
	if overrides.UserInfoURL != "" {
		urls.UserInfoURL = overrides.UserInfoURL
	}
	if overrides.EmailsURL != "" {
		urls.EmailsURL = overrides.EmailsURL
	}

	return &Provider{
		name: name,
		config: oauth2.Config{
			ClientID:     credentials.ClientID,
			ClientSecret: credentials.ClientSecret,
			RedirectURL:  credentials.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		urls:  urls,
		fetch: fetch,
	}, nil
}

// # Profile Fetchers

type oidcUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

// fetchOIDCProfile reads a standard userinfo document. When requireVerified is
// set the email is dropped unless email_verified is true.
func fetchOIDCProfile(requireVerified bool) profileFetcher {
	return func(ctx context.Context, client *http.Client, urls Endpoints) (identity.OAuthCredential, error) {
		var info oidcUserInfo
		if err := getJSON(ctx, client, urls.UserInfoURL, &info); err != nil {
			return identity.OAuthCredential{}, err
		}

		email := info.Email
		if info.EmailVerified != nil && !*info.EmailVerified {
			email = ""
		}
		if requireVerified && info.EmailVerified == nil {
			email = ""
		}

		return identity.OAuthCredential{
			SubjectID:   info.Subject,
			Email:       email,
			DisplayName: info.Name,
		}, nil
	}
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// fetchGitHubProfile prefers the primary verified address, then any verified one.
func fetchGitHubProfile(ctx context.Context, client *http.Client, urls Endpoints) (identity.OAuthCredential, error) {
	var user githubUser
	if err := getJSON(ctx, client, urls.UserInfoURL, &user); err != nil {
		return identity.OAuthCredential{}, err
	}

	var emails []githubEmail
	if err := getJSON(ctx, client, urls.EmailsURL, &emails); err != nil {
		return identity.OAuthCredential{}, err
	}

	email := ""
	for _, candidate := range emails {
		if !candidate.Verified {
			continue
		}
		if candidate.Primary {
			email = candidate.Email
			break
		}
		if email == "" {
			email = candidate.Email
		}
	}

	displayName := user.Name
	if displayName == "" {
		displayName = user.Login
	}

	subject := ""
	if user.ID != 0 {
		subject = strconv.FormatInt(user.ID, 10)
	}

	return identity.OAuthCredential{
		SubjectID:   subject,
		Email:       email,
		DisplayName: displayName,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxProfileBytes))
		return fmt.Errorf("GET %s: status %d", url, response.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(response.Body, maxProfileBytes)).Decode(target)
}
