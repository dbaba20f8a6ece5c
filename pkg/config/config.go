package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage"
)

// MinJWTSecretLength is the shortest HMAC secret accepted outside development.
const MinJWTSecretLength = 32

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Authentication configuration
	Auth AuthConfig

	// Authorization configuration
	Authz AuthzConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Background job configuration
	Jobs JobsConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string
	Environment     string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// IsDevelopment reports whether the server runs with development defaults.
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

// AuthConfig holds session token and external login settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// PublicURL is the externally reachable API base used to build OAuth
	// callback URLs.
	PublicURL string

	GitHubClientID     string
	GitHubClientSecret string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleIssuer       string
}

// GitHubEnabled reports whether GitHub login is configured.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

// GoogleEnabled reports whether Google login is configured.
func (a AuthConfig) GoogleEnabled() bool {
	return a.GoogleClientID != "" && a.GoogleClientSecret != ""
}

// AuthzConfig holds authorization engine settings
type AuthzConfig struct {
	CollaboratorMode rbac.CollaboratorMode

	// CatalogFile is an optional YAML role-defaults catalog. Empty uses the
	// built-in defaults.
	CatalogFile  string
	WatchCatalog bool

	// AuditLogPath receives the audit trail as JSON lines. Empty writes to
	// stdout.
	AuditLogPath string
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Burst    int

	// LocalCacheSize bounds the number of per-client buckets kept in memory.
	LocalCacheSize int
}

// JobsConfig holds background job settings
type JobsConfig struct {
	InvitationTTL  time.Duration
	ExpirySchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel returns the settings as an observability.OTelConfig.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	authz, err := loadAuthzConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Authz:         authz,
		RateLimit:     loadRateLimitConfig(),
		Jobs:          loadJobsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TASKHUB_HOST", "0.0.0.0"),
		Port:            getEnv("TASKHUB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TASKHUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TASKHUB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TASKHUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TASKHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		RequestTimeout:  getEnvDuration("TASKHUB_REQUEST_TIMEOUT", 10*time.Second),
		MaxBodyBytes:    getEnvInt64("TASKHUB_MAX_BODY_BYTES", 1<<20),
		CORSOrigins:     getEnvList("TASKHUB_CORS_ORIGINS", []string{"*"}),
		Environment:     getEnv("TASKHUB_ENV", "development"),
		HealthPort:      getEnv("TASKHUB_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// Storage type
	if storageType := getEnv("TASKHUB_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// PostgreSQL config
	if pgURL := getEnv("TASKHUB_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("TASKHUB_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("TASKHUB_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("TASKHUB_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("TASKHUB_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}
	cfg.MigrateOnStart = getEnvBool("TASKHUB_MIGRATE_ON_START", cfg.MigrateOnStart)

	// Redis config
	if redisURL := getEnv("TASKHUB_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("TASKHUB_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("TASKHUB_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("TASKHUB_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("TASKHUB_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:          getEnv("TASKHUB_JWT_SECRET", ""),
		JWTIssuer:          getEnv("TASKHUB_JWT_ISSUER", "taskhub"),
		TokenTTL:           getEnvDuration("TASKHUB_TOKEN_TTL", 24*time.Hour),
		PublicURL:          strings.TrimRight(getEnv("TASKHUB_PUBLIC_URL", "http://localhost:8080"), "/"),
		GitHubClientID:     getEnv("TASKHUB_GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("TASKHUB_GITHUB_CLIENT_SECRET", ""),
		GoogleClientID:     getEnv("TASKHUB_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("TASKHUB_GOOGLE_CLIENT_SECRET", ""),
		GoogleIssuer:       getEnv("TASKHUB_GOOGLE_ISSUER", "https://accounts.google.com"),
	}
}

// loadAuthzConfig loads authorization configuration from environment
func loadAuthzConfig() (AuthzConfig, error) {
	mode, err := rbac.ParseCollaboratorMode(getEnv("TASKHUB_COLLABORATOR_MODE", string(rbac.CollaboratorStrict)))
	if err != nil {
		return AuthzConfig{}, err
	}
	return AuthzConfig{
		CollaboratorMode: mode,
		CatalogFile:      getEnv("TASKHUB_ROLE_CATALOG_FILE", ""),
		WatchCatalog:     getEnvBool("TASKHUB_ROLE_CATALOG_WATCH", true),
		AuditLogPath:     getEnv("TASKHUB_AUDIT_LOG_PATH", ""),
	}, nil
}

// loadRateLimitConfig loads rate limiting configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        getEnvBool("TASKHUB_RATE_LIMIT_ENABLED", true),
		Requests:       getEnvInt("TASKHUB_RATE_LIMIT_REQUESTS", 100),
		Window:         getEnvDuration("TASKHUB_RATE_LIMIT_WINDOW", time.Minute),
		Burst:          getEnvInt("TASKHUB_RATE_LIMIT_BURST", 20),
		LocalCacheSize: getEnvInt("TASKHUB_RATE_LIMIT_CACHE_SIZE", 10000),
	}
}

// loadJobsConfig loads background job configuration from environment
func loadJobsConfig() JobsConfig {
	return JobsConfig{
		InvitationTTL:  getEnvDuration("TASKHUB_INVITATION_TTL", orgs.DefaultInvitationTTL),
		ExpirySchedule: getEnv("TASKHUB_INVITATION_EXPIRY_SCHEDULE", orgs.DefaultExpirySchedule),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TASKHUB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TASKHUB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TASKHUB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TASKHUB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TASKHUB_OTEL_SERVICE_NAME", "taskhub"),
		OTelServiceVersion: getEnv("TASKHUB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TASKHUB_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TASKHUB_OTEL_SAMPLE_RATIO", 1.0),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	// Development falls back to a generated secret in cmd/taskhub.
	if !c.Server.IsDevelopment() && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes outside development", MinJWTSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if (c.Auth.GitHubEnabled() || c.Auth.GoogleEnabled()) && c.Auth.PublicURL == "" {
		return fmt.Errorf("public URL is required when OAuth login is enabled")
	}

	if c.Authz.WatchCatalog && c.Authz.CatalogFile == "" {
		// Nothing to watch.
		c.Authz.WatchCatalog = false
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests < 1 {
			return fmt.Errorf("rate limit requests must be at least 1")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if c.Jobs.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
