package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"golang.org/x/oauth2"
)

// DefaultGoogleIssuer is Google's OIDC issuer
const DefaultGoogleIssuer = "https://accounts.google.com"

// OIDCProvider implements OpenID Connect login. The profile comes from the
// verified ID token; the userinfo endpoint is not called.
type OIDCProvider struct {
	name         string
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and creates a provider named name
func NewOIDCProvider(ctx context.Context, name string, cfg ProviderConfig) (*OIDCProvider, error) {
	if err := validateClient(cfg); err != nil {
		return nil, err
	}
	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = DefaultGoogleIssuer
	}

	// Discover OIDC provider
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	endpoint := provider.Endpoint()
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return newOIDCProvider(name, cfg, endpoint, verifier), nil
}

func newOIDCProvider(name string, cfg ProviderConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &OIDCProvider{
		name:     name,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	}
}

// Name returns the provider name
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL returns the authorization URL
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type oidcClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Username      string `json:"preferred_username"`
}

// Exchange trades the code for tokens and verifies the ID token. An email the
// issuer reports as unverified is dropped so it cannot link to an existing
// account.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*auth.ExternalIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}

	email := claims.Email
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		email = ""
	}
	username := claims.Username
	if username == "" {
		username = claims.Name
	}

	return &auth.ExternalIdentity{
		Provider:   p.name,
		ExternalID: claims.Subject,
		Email:      email,
		Username:   username,
	}, nil
}
