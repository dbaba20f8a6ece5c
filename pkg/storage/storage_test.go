package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, TypeMemory, cfg.Type)
	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.Equal(t, 3, cfg.RedisMaxRetries)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without url", func(c *Config) { c.Type = TypePostgres }, "postgres URL is required"},
		{"postgres without pool", func(c *Config) {
			c.Type = TypePostgres
			c.PostgresURL = "postgres://localhost/taskhub"
			c.PostgresMaxConns = 0
		}, "max connections"},
		{"unknown type", func(c *Config) { c.Type = "filesystem" }, "invalid storage type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpen_Memory(t *testing.T) {
	backend, err := Open(context.Background(), DefaultConfig(), observability.NewLogger(observability.ErrorLevel, nil))
	require.NoError(t, err)
	assert.Nil(t, backend.DB)
	assert.Nil(t, backend.PoolStats)
	assert.NoError(t, backend.HealthCheck(context.Background()))
	assert.NoError(t, backend.Close())
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))

	t.Run("invalid url", func(t *testing.T) {
		cfg.RedisURL = "not-a-url"
		_, err := NewRedisClient(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr.Close()
		cfg.RedisURL = "redis://" + mr.Addr()
		_, err := NewRedisClient(context.Background(), cfg)
		assert.Error(t, err)
	})
}
