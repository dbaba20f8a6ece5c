package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultGitHubAPIURL is the public GitHub REST API
const DefaultGitHubAPIURL = "https://api.github.com"

// GitHubProvider implements GitHub login over OAuth2
type GitHubProvider struct {
	oauth2Config *oauth2.Config
	apiURL       string
}

// NewGitHubProvider creates a new GitHub provider
func NewGitHubProvider(cfg ProviderConfig) (*GitHubProvider, error) {
	if err := validateClient(cfg); err != nil {
		return nil, err
	}

	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultGitHubAPIURL
	}

	return &GitHubProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		apiURL: apiURL,
	}, nil
}

// Name returns the provider name
func (p *GitHubProvider) Name() string {
	return ProviderGitHub
}

// AuthCodeURL returns the GitHub authorization URL
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the code for a token and loads the GitHub profile. Users
// with a private email fall back to their primary verified address.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*auth.ExternalIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	client := p.oauth2Config.Client(ctx, token)

	var user githubUser
	if err := getJSON(ctx, client, p.apiURL+"/user", &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("missing user ID in GitHub response")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, p.apiURL+"/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("failed to fetch user emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	return &auth.ExternalIdentity{
		Provider:   ProviderGitHub,
		ExternalID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		Username:   user.Login,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func validateClient(cfg ProviderConfig) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	return nil
}
