package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
	"github.com/platinummonkey/taskhub/pkg/storage/memory"
	"github.com/platinummonkey/taskhub/pkg/storage/postgres"
)

// Backend types
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
)

// Config for storage backend
type Config struct {
	Type string // "memory" or "postgres"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string // comma-separated
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	MigrateOnStart      bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}

// Validate checks the configuration for the selected backend
func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
		return nil
	case TypePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.PostgresMaxConns < 1 {
			return fmt.Errorf("postgres max connections must be at least 1")
		}
		return nil
	}
	return fmt.Errorf("invalid storage type: %s (must be %s or %s)", c.Type, TypeMemory, TypePostgres)
}

// Backend is everything the services need from persistence.
type Backend interface {
	auth.UserStore
	rbac.MembershipStore
	rbac.CustomRoleStore
	rbac.TemplateStore
	rbac.OverrideStore
	orgs.Store
	resources.Store

	HealthCheck(ctx context.Context) error
	Close() error
}

// Opened is an open backend plus the primary database handle, which is nil
// for the memory backend.
type Opened struct {
	Backend
	DB *sql.DB

	// PoolStats reports connection pool statistics per pool. Nil for the
	// memory backend.
	PoolStats func() map[string]sql.DBStats
}

// Open connects the configured backend. For postgres it applies pending
// migrations when MigrateOnStart is set.
func Open(ctx context.Context, cfg Config, logger *observability.Logger) (*Opened, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Type == TypeMemory {
		return &Opened{Backend: memoryBackend{memory.New()}}, nil
	}

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.PostgresReplicaURLs),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if err := postgres.RunMigrations(ctx, cm.Primary(), logger); err != nil {
			cm.Close()
			return nil, err
		}
	}
	cm.StartHealthCheckRoutine(ctx, 30*time.Second)
	return &Opened{
		Backend:   postgresBackend{postgres.NewWithReplicas(cm), cm},
		DB:        cm.Primary(),
		PoolStats: cm.Stats,
	}, nil
}

type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) HealthCheck(context.Context) error { return nil }
func (memoryBackend) Close() error                      { return nil }

// postgresBackend closes replicas along with the primary.
type postgresBackend struct {
	*postgres.Store
	cm *postgres.ConnectionManager
}

func (b postgresBackend) HealthCheck(ctx context.Context) error { return b.cm.HealthCheck(ctx) }
func (b postgresBackend) Close() error                          { return b.cm.Close() }
