package sso

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/taskhub/pkg/auth"
)

// Provider defines the interface for external login providers
type Provider interface {
	// Name returns the route name of the provider
	Name() string

	// AuthCodeURL returns the provider URL the browser is sent to
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the caller's profile
	Exchange(ctx context.Context, code string) (*auth.ExternalIdentity, error)
}

// Registry holds the enabled providers by name
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig builds the providers enabled in cfg. Google needs
// network access for OIDC discovery.
func NewRegistryFromConfig(ctx context.Context, cfg Config) (*Registry, error) {
	registry := NewRegistry()

	if cfg.GitHub != nil {
		gh := *cfg.GitHub
		if gh.RedirectURL == "" {
			gh.RedirectURL = CallbackURL(cfg.PublicURL, ProviderGitHub)
		}
		p, err := NewGitHubProvider(gh)
		if err != nil {
			return nil, fmt.Errorf("github provider: %w", err)
		}
		registry.providers[p.Name()] = p
	}

	if cfg.Google != nil {
		g := *cfg.Google
		if g.RedirectURL == "" {
			g.RedirectURL = CallbackURL(cfg.PublicURL, ProviderGoogle)
		}
		p, err := NewOIDCProvider(ctx, ProviderGoogle, g)
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		registry.providers[p.Name()] = p
	}

	return registry, nil
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the enabled provider names in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
