package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const roleColumns = `id, organization_id, name, description, based_on, permissions, resource_overrides,
	status, created_by, created_at, updated_at, deleted_at`

func scanRole(row rowScanner) (*rbac.CustomRole, error) {
	var (
		r                      rbac.CustomRole
		description, createdBy sql.NullString
		perms, overrides       []byte
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &description, &r.BasedOn, &perms, &overrides,
		&r.Status, &createdBy, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	if err != nil {
		return nil, err
	}
	r.Description = description.String
	r.CreatedBy = createdBy.String
	if err := unmarshalJSON(perms, &r.Permissions); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(overrides, &r.ResourceOverrides); err != nil {
		return nil, err
	}
	return &r, nil
}

func roleOverrides(r *rbac.CustomRole) []rbac.RoleOverride {
	if r.ResourceOverrides == nil {
		return []rbac.RoleOverride{}
	}
	return r.ResourceOverrides
}

// CreateCustomRole inserts a custom role
func (s *Store) CreateCustomRole(ctx context.Context, role *rbac.CustomRole) error {
	perms, err := marshalJSON(role.Permissions)
	if err != nil {
		return err
	}
	overrides, err := marshalJSON(roleOverrides(role))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO custom_roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, role.ID, role.OrganizationID, role.Name, nullString(role.Description), role.BasedOn, perms,
		overrides, string(role.Status), nullString(role.CreatedBy), role.CreatedAt, role.UpdatedAt,
		role.DeletedAt)
	return translate("create custom role", err)
}

// GetCustomRole retrieves a custom role in any status
func (s *Store) GetCustomRole(ctx context.Context, organizationID, id string) (*rbac.CustomRole, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+roleColumns+" FROM custom_roles WHERE organization_id = $1 AND id = $2", organizationID, id)
	r, err := scanRole(row)
	if err != nil {
		return nil, translate("get custom role", err)
	}
	return r, nil
}

// ListCustomRoles lists an organization's custom roles in every status
func (s *Store) ListCustomRoles(ctx context.Context, organizationID string) ([]*rbac.CustomRole, error) {
	rows, err := s.reader().QueryContext(ctx,
		"SELECT "+roleColumns+" FROM custom_roles WHERE organization_id = $1 ORDER BY created_at", organizationID)
	if err != nil {
		return nil, translate("list custom roles", err)
	}
	defer rows.Close()

	var out []*rbac.CustomRole
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateCustomRole replaces a custom role
func (s *Store) UpdateCustomRole(ctx context.Context, role *rbac.CustomRole) error {
	perms, err := marshalJSON(role.Permissions)
	if err != nil {
		return err
	}
	overrides, err := marshalJSON(roleOverrides(role))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE custom_roles SET name = $3, description = $4, based_on = $5, permissions = $6,
			resource_overrides = $7, status = $8, updated_at = $9, deleted_at = $10
		WHERE organization_id = $1 AND id = $2
	`, role.OrganizationID, role.ID, role.Name, nullString(role.Description), role.BasedOn, perms,
		overrides, string(role.Status), role.UpdatedAt, role.DeletedAt)
	return expectOne("update custom role", res, err)
}

// DeleteCustomRole reassigns the role's active and invited memberships and
// marks it deleted in one transaction. The role row is locked first so a
// concurrent delete of the same role waits and then sees it deleted.
func (s *Store) DeleteCustomRole(ctx context.Context, organizationID, id, reassignTo string, deletedAt time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status rbac.RoleStatus
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM custom_roles WHERE organization_id = $1 AND id = $2 FOR UPDATE",
		organizationID, id).Scan(&status)
	if err != nil {
		return 0, translate("lock custom role", err)
	}
	if status == rbac.RoleStatusDeleted {
		return 0, apperrors.ErrNotFound
	}

	reassigned := 0
	if reassignTo == "" {
		var n int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM memberships
			WHERE organization_id = $1 AND role = $2 AND status IN ('active', 'invited')
		`, organizationID, id).Scan(&n)
		if err != nil {
			return 0, translate("count role memberships", err)
		}
		if n > 0 {
			return 0, apperrors.ErrDuplicate
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE memberships SET role = $3, updated_at = $4
			WHERE organization_id = $1 AND role = $2 AND status IN ('active', 'invited')
		`, organizationID, id, reassignTo, deletedAt)
		if err != nil {
			return 0, translate("reassign memberships", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to reassign memberships: %w", err)
		}
		reassigned = int(n)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE custom_roles SET status = 'deleted', deleted_at = $3, updated_at = $3
		WHERE organization_id = $1 AND id = $2
	`, organizationID, id, deletedAt)
	if err != nil {
		return 0, translate("delete custom role", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit role delete: %w", err)
	}
	return reassigned, nil
}
