package sso

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type oidcFixture struct {
	srv    *httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims
}

// newOIDCFixture serves discovery and a token endpoint that returns an ID
// token signed with a throwaway RSA key.
func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &oidcFixture{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                f.srv.URL,
			"authorization_endpoint":                f.srv.URL + "/authorize",
			"token_endpoint":                        f.srv.URL + "/token",
			"jwks_uri":                              f.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, f.claims).SignedString(f.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access",
			"token_type":   "Bearer",
			"id_token":     idToken,
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	now := time.Now()
	f.claims = jwt.MapClaims{
		"iss":            f.srv.URL,
		"aud":            "client-id",
		"sub":            "google-1234",
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
	return f
}

func (f *oidcFixture) provider() *OIDCProvider {
	verifier := oidc.NewVerifier(f.srv.URL,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&f.key.PublicKey}},
		&oidc.Config{ClientID: "client-id"})
	return newOIDCProvider(ProviderGoogle, ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "secret",
		RedirectURL:  "https://tasks.example.com/api/auth/oauth/google/callback",
	}, oauth2.Endpoint{AuthURL: f.srv.URL + "/authorize", TokenURL: f.srv.URL + "/token"}, verifier)
}

func TestNewOIDCProvider_Discovery(t *testing.T) {
	f := newOIDCFixture(t)

	p, err := NewOIDCProvider(context.Background(), ProviderGoogle, ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "secret",
		RedirectURL:  "https://x/cb",
		IssuerURL:    f.srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, p.Name())

	u, err := url.Parse(p.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "openid profile email", u.Query().Get("scope"))

	_, err = NewOIDCProvider(context.Background(), ProviderGoogle, ProviderConfig{
		ClientID: "client-id", ClientSecret: "secret", RedirectURL: "r",
		IssuerURL: f.srv.URL + "/nowhere",
	})
	assert.Error(t, err)
}

func TestOIDCProvider_Exchange(t *testing.T) {
	f := newOIDCFixture(t)
	p := f.provider()

	identity, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, identity.Provider)
	assert.Equal(t, "google-1234", identity.ExternalID)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, "Ada Lovelace", identity.Username)
}

func TestOIDCProvider_UnverifiedEmailDropped(t *testing.T) {
	f := newOIDCFixture(t)
	f.claims["email_verified"] = false

	identity, err := f.provider().Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Empty(t, identity.Email)
}

func TestOIDCProvider_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c jwt.MapClaims)
	}{
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }},
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOIDCFixture(t)
			tt.mutate(f.claims)
			_, err := f.provider().Exchange(context.Background(), "code")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to verify ID token")
		})
	}
}
