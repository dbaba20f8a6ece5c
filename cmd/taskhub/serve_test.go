package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/taskhub/pkg/config"
	"github.com/platinummonkey/taskhub/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Requests: 10, Window: time.Minute, Burst: 5, LocalCacheSize: 100}

	l, name := limiter(config.RateLimitConfig{}, nil)
	assert.Nil(t, l)
	assert.Empty(t, name)

	l, name = limiter(cfg, nil)
	assert.IsType(t, &middleware.RateLimiter{}, l)
	assert.Equal(t, "local", name)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l, name = limiter(cfg, client)
	assert.IsType(t, &middleware.DistributedRateLimiter{}, l)
	assert.Equal(t, "distributed", name)
}

func TestSSOConfig(t *testing.T) {
	out := ssoConfig(config.AuthConfig{PublicURL: "https://tasks.example.com"})
	assert.Nil(t, out.GitHub)
	assert.Nil(t, out.Google)

	out = ssoConfig(config.AuthConfig{
		PublicURL:          "https://tasks.example.com",
		GitHubClientID:     "gh",
		GitHubClientSecret: "gh-secret",
		GoogleClientID:     "g",
		GoogleClientSecret: "g-secret",
		GoogleIssuer:       "https://accounts.google.com",
	})
	require.NotNil(t, out.GitHub)
	assert.Equal(t, "gh", out.GitHub.ClientID)
	require.NotNil(t, out.Google)
	assert.Equal(t, "https://accounts.google.com", out.Google.IssuerURL)
}

func TestRandomSecret(t *testing.T) {
	a, err := randomSecret()
	require.NoError(t, err)
	b, err := randomSecret()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestMigrateList(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "--list"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Create users table")
}
