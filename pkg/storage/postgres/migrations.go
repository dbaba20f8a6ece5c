package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/taskhub/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(24) PRIMARY KEY,
					email TEXT NOT NULL,
					username TEXT NOT NULL,
					password_hash TEXT,
					google_id TEXT,
					github_id TEXT,
					current_organization VARCHAR(24),
					last_login_at TIMESTAMPTZ,
					login_count INTEGER NOT NULL DEFAULT 0,
					login_history JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(LOWER(username));
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google_id ON users(google_id) WHERE google_id IS NOT NULL;
				CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id) WHERE github_id IS NOT NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id VARCHAR(24) PRIMARY KEY,
					name TEXT NOT NULL,
					slug TEXT NOT NULL,
					description TEXT,
					created_by VARCHAR(24) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					role_defaults JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_status ON organizations(status);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id VARCHAR(24) PRIMARY KEY,
					user_id VARCHAR(24) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id VARCHAR(24) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					status VARCHAR(20) NOT NULL,
					permissions JSONB,
					invited_by VARCHAR(24),
					invited_at TIMESTAMPTZ,
					joined_at TIMESTAMPTZ,
					ended_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_single_active
					ON memberships(user_id, organization_id) WHERE status = 'active';
				CREATE INDEX IF NOT EXISTS idx_memberships_organization ON memberships(organization_id, status);
				CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id, status);
				CREATE INDEX IF NOT EXISTS idx_memberships_role ON memberships(organization_id, role);
			`,
		},
		{
			Version:     4,
			Description: "Create custom_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS custom_roles (
					id VARCHAR(24) PRIMARY KEY,
					organization_id VARCHAR(24) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT,
					based_on TEXT NOT NULL,
					permissions JSONB NOT NULL DEFAULT '{}',
					resource_overrides JSONB NOT NULL DEFAULT '[]',
					status VARCHAR(20) NOT NULL,
					created_by VARCHAR(24),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_custom_roles_organization ON custom_roles(organization_id, status);
			`,
		},
		{
			Version:     5,
			Description: "Create permission_templates and resource_overrides tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_templates (
					id VARCHAR(24) PRIMARY KEY,
					organization_id VARCHAR(24) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT,
					permissions JSONB NOT NULL DEFAULT '{}',
					applicable_resource_types TEXT[] NOT NULL,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					created_by VARCHAR(24),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_permission_templates_organization ON permission_templates(organization_id);

				CREATE TABLE IF NOT EXISTS resource_overrides (
					id VARCHAR(24) PRIMARY KEY,
					organization_id VARCHAR(24) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					resource_type VARCHAR(20) NOT NULL,
					resource_id VARCHAR(24) NOT NULL,
					permissions JSONB NOT NULL DEFAULT '{}',
					template_id VARCHAR(24),
					created_by VARCHAR(24),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, resource_type, resource_id)
				);

				CREATE INDEX IF NOT EXISTS idx_resource_overrides_template ON resource_overrides(organization_id, template_id);
			`,
		},
		{
			Version:     6,
			Description: "Create resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					id VARCHAR(24) PRIMARY KEY,
					kind VARCHAR(20) NOT NULL,
					owner_id VARCHAR(24) NOT NULL,
					organization_id VARCHAR(24),
					title TEXT,
					content TEXT,
					tags TEXT[] NOT NULL DEFAULT '{}',
					shared_with TEXT[] NOT NULL DEFAULT '{}',
					collaborators JSONB NOT NULL DEFAULT '[]',
					is_shared BOOLEAN NOT NULL DEFAULT FALSE,
					status VARCHAR(20),
					due_date TIMESTAMPTZ,
					task_id VARCHAR(24),
					started_at TIMESTAMPTZ,
					ended_at TIMESTAMPTZ,
					duration_seconds BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_resources_kind_owner ON resources(kind, owner_id);
				CREATE INDEX IF NOT EXISTS idx_resources_organization ON resources(kind, organization_id);
				CREATE INDEX IF NOT EXISTS idx_resources_shared_with ON resources USING GIN (shared_with);
				CREATE INDEX IF NOT EXISTS idx_resources_collaborators ON resources USING GIN (collaborators);
			`,
		},
	}
}

// RunMigrations applies every migration newer than the recorded version.
// Each migration runs in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, m := range Migrations() {
		if m.Version <= current {
			continue
		}
		if logger != nil {
			logger.WithField("version", m.Version).Infof("applying migration: %s", m.Description)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
