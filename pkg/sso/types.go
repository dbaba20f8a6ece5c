package sso

import "strings"

// Provider names used in /auth/oauth/{provider} routes and as
// auth.ExternalIdentity.Provider.
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// ProviderConfig holds OAuth client settings for one provider
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// AuthURL and TokenURL override the provider's well-known endpoints.
	AuthURL  string
	TokenURL string

	// APIURL is the GitHub REST API base. Defaults to https://api.github.com.
	APIURL string

	// IssuerURL is the OIDC issuer used for discovery and token checks.
	IssuerURL string
}

// Config selects which providers are enabled. A nil provider is disabled.
type Config struct {
	// PublicURL is the externally reachable API base, without the /api
	// prefix, e.g. https://tasks.example.com.
	PublicURL string

	GitHub *ProviderConfig
	Google *ProviderConfig
}

// CallbackURL returns the redirect URL registered with a provider.
func CallbackURL(publicURL, provider string) string {
	return strings.TrimRight(publicURL, "/") + "/api/auth/oauth/" + provider + "/callback"
}
