// Package config loads taskhub server configuration from TASKHUB_*
// environment variables.
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadConfig applies defaults for anything unset and then runs Validate.
// Malformed numbers and durations fall back to their defaults; an unknown
// collaborator mode or storage type is an error.
//
// # Common Variables
//
//	TASKHUB_PORT, TASKHUB_HEALTH_PORT     API and health/metrics ports
//	TASKHUB_ENV                           "development" allows a generated JWT secret
//	TASKHUB_STORAGE_TYPE                  memory (default) or postgres
//	TASKHUB_POSTGRES_URL                  required for postgres
//	TASKHUB_REDIS_URL                     enables the distributed rate limiter
//	TASKHUB_JWT_SECRET, TASKHUB_TOKEN_TTL session tokens
//	TASKHUB_GITHUB_CLIENT_ID/SECRET       GitHub login
//	TASKHUB_GOOGLE_CLIENT_ID/SECRET       Google login
//	TASKHUB_COLLABORATOR_MODE             strict (default) or lenient
//	TASKHUB_ROLE_CATALOG_FILE             YAML role defaults, hot reloaded
//	TASKHUB_INVITATION_TTL                how long invitations stay open
//	TASKHUB_LOG_LEVEL, TASKHUB_OTEL_*     observability
package config
