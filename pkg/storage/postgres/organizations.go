package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const organizationColumns = `id, name, slug, description, created_by, status, role_defaults,
	created_at, updated_at, deleted_at`

func scanOrganization(row rowScanner) (*orgs.Organization, error) {
	var (
		o           orgs.Organization
		description sql.NullString
		defaults    []byte
	)
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &description, &o.CreatedBy, &o.Status, &defaults,
		&o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	if err != nil {
		return nil, err
	}
	o.Description = description.String
	if err := unmarshalJSON(defaults, &o.RoleDefaults); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrganization inserts the organization and its owner membership in
// one transaction
func (s *Store) CreateOrganization(ctx context.Context, org *orgs.Organization, owner *rbac.Membership) error {
	defaults, err := marshalJSON(org.RoleDefaults)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (`+organizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, org.ID, org.Name, org.Slug, nullString(org.Description), org.CreatedBy, string(org.Status),
		defaults, org.CreatedAt, org.UpdatedAt, org.DeletedAt)
	if err != nil {
		return translate("create organization", err)
	}
	if owner != nil {
		if err := insertMembership(ctx, tx, owner); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an active organization
func (s *Store) GetOrganization(ctx context.Context, id string) (*orgs.Organization, error) {
	row := s.reader().QueryRowContext(ctx,
		"SELECT "+organizationColumns+" FROM organizations WHERE id = $1 AND status <> 'deleted'", id)
	o, err := scanOrganization(row)
	if err != nil {
		return nil, translate("get organization", err)
	}
	return o, nil
}

// GetRoleDefaults returns the catalog snapshot of an organization
func (s *Store) GetRoleDefaults(ctx context.Context, organizationID string) (*rbac.Catalog, error) {
	var defaults []byte
	err := s.reader().QueryRowContext(ctx,
		"SELECT role_defaults FROM organizations WHERE id = $1", organizationID).Scan(&defaults)
	if err != nil {
		return nil, translate("get role defaults", err)
	}
	var c *rbac.Catalog
	if err := unmarshalJSON(defaults, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListOrganizationsForUser lists the organizations a user actively belongs to
func (s *Store) ListOrganizationsForUser(ctx context.Context, userID string) ([]*orgs.Organization, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT o.id, o.name, o.slug, o.description, o.created_by, o.status, o.role_defaults,
			o.created_at, o.updated_at, o.deleted_at
		FROM organizations o
		JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status = 'active' AND o.status <> 'deleted'
		ORDER BY o.name
	`, userID)
	if err != nil {
		return nil, translate("list organizations", err)
	}
	defer rows.Close()

	out := []*orgs.Organization{}
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateOrganization replaces an organization. Role defaults are fixed at
// creation and never rewritten.
func (s *Store) UpdateOrganization(ctx context.Context, org *orgs.Organization) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET name = $2, slug = $3, description = $4, updated_at = $5
		WHERE id = $1 AND status <> 'deleted'
	`, org.ID, org.Name, org.Slug, nullString(org.Description), org.UpdatedAt)
	return expectOne("update organization", res, err)
}

// DeleteOrganization marks an organization deleted and ends its active and
// invited memberships in one transaction
func (s *Store) DeleteOrganization(ctx context.Context, id string, deletedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE organizations SET status = 'deleted', deleted_at = $2, updated_at = $2
		WHERE id = $1 AND status <> 'deleted'
	`, id, deletedAt)
	if err := expectOne("delete organization", res, err); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE memberships SET status = 'removed', ended_at = $2, updated_at = $2
		WHERE organization_id = $1 AND status IN ('active', 'invited')
	`, id, deletedAt)
	if err != nil {
		return translate("end memberships", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization delete: %w", err)
	}
	return nil
}
