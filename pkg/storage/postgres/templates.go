package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const templateColumns = `id, organization_id, name, description, permissions, applicable_resource_types,
	is_default, created_by, created_at, updated_at`

const overrideColumns = `id, organization_id, resource_type, resource_id, permissions, template_id,
	created_by, created_at, updated_at`

func scanTemplate(row rowScanner) (*rbac.PermissionTemplate, error) {
	var (
		t                      rbac.PermissionTemplate
		description, createdBy sql.NullString
		perms                  []byte
	)
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &description, &perms,
		pq.Array(&t.ApplicableResourceTypes), &t.IsDefault, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.CreatedBy = createdBy.String
	if err := unmarshalJSON(perms, &t.Permissions); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanOverride(row rowScanner) (*rbac.ResourceOverride, error) {
	var (
		o                     rbac.ResourceOverride
		templateID, createdBy sql.NullString
		perms                 []byte
	)
	err := row.Scan(&o.ID, &o.OrganizationID, &o.ResourceType, &o.ResourceID, &perms, &templateID,
		&createdBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.TemplateID = templateID.String
	o.CreatedBy = createdBy.String
	if err := unmarshalJSON(perms, &o.Permissions); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateTemplate inserts a permission template
func (s *Store) CreateTemplate(ctx context.Context, t *rbac.PermissionTemplate) error {
	perms, err := marshalJSON(t.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permission_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.OrganizationID, t.Name, nullString(t.Description), perms,
		pq.Array(t.ApplicableResourceTypes), t.IsDefault, nullString(t.CreatedBy), t.CreatedAt, t.UpdatedAt)
	return translate("create template", err)
}

// GetTemplate retrieves a permission template
func (s *Store) GetTemplate(ctx context.Context, organizationID, id string) (*rbac.PermissionTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM permission_templates WHERE organization_id = $1 AND id = $2",
		organizationID, id)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, translate("get template", err)
	}
	return t, nil
}

// ListTemplates lists an organization's permission templates
func (s *Store) ListTemplates(ctx context.Context, organizationID string) ([]*rbac.PermissionTemplate, error) {
	rows, err := s.reader().QueryContext(ctx,
		"SELECT "+templateColumns+" FROM permission_templates WHERE organization_id = $1 ORDER BY created_at, name",
		organizationID)
	if err != nil {
		return nil, translate("list templates", err)
	}
	defer rows.Close()

	var out []*rbac.PermissionTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTemplate replaces a permission template
func (s *Store) UpdateTemplate(ctx context.Context, t *rbac.PermissionTemplate) error {
	perms, err := marshalJSON(t.Permissions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE permission_templates SET name = $3, description = $4, permissions = $5,
			applicable_resource_types = $6, updated_at = $7, is_default = $8
		WHERE organization_id = $1 AND id = $2
	`, t.OrganizationID, t.ID, t.Name, nullString(t.Description), perms,
		pq.Array(t.ApplicableResourceTypes), t.UpdatedAt, t.IsDefault)
	return expectOne("update template", res, err)
}

// CountTemplateApplications counts resource overrides and live custom role
// overrides created from a template
func (s *Store) CountTemplateApplications(ctx context.Context, organizationID, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM resource_overrides WHERE organization_id = $1 AND template_id = $2)
			+
			(SELECT COUNT(*) FROM custom_roles r, jsonb_array_elements(r.resource_overrides) o
			 WHERE r.organization_id = $1 AND r.status <> 'deleted' AND o->>'templateId' = $2)
	`, organizationID, id).Scan(&n)
	if err != nil {
		return 0, translate("count template applications", err)
	}
	return n, nil
}

// DeleteTemplate removes or rewrites every application of a template and
// deletes it in one transaction
func (s *Store) DeleteTemplate(ctx context.Context, organizationID, id string, replacement *rbac.PermissionTemplate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM permission_templates WHERE organization_id = $1 AND id = $2 FOR UPDATE",
		organizationID, id).Scan(&locked)
	if err != nil {
		return translate("lock template", err)
	}

	if replacement == nil {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM resource_overrides WHERE organization_id = $1 AND template_id = $2",
			organizationID, id)
	} else {
		var perms []byte
		if perms, err = marshalJSON(replacement.Permissions); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE resource_overrides SET template_id = $3, permissions = $4, updated_at = NOW()
			WHERE organization_id = $1 AND template_id = $2
		`, organizationID, id, replacement.ID, perms)
	}
	if err != nil {
		return translate("rewrite resource overrides", err)
	}

	if err := rewriteRoleOverrides(ctx, tx, organizationID, id, replacement); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM permission_templates WHERE organization_id = $1 AND id = $2", organizationID, id); err != nil {
		return translate("delete template", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template delete: %w", err)
	}
	return nil
}

// rewriteRoleOverrides drops or retargets the custom role overrides that
// reference templateID.
func rewriteRoleOverrides(ctx context.Context, tx *sql.Tx, organizationID, templateID string, replacement *rbac.PermissionTemplate) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, resource_overrides FROM custom_roles
		WHERE organization_id = $1
			AND resource_overrides @> jsonb_build_array(jsonb_build_object('templateId', $2::text))
		FOR UPDATE
	`, organizationID, templateID)
	if err != nil {
		return translate("load role overrides", err)
	}

	updated := map[string][]rbac.RoleOverride{}
	for rows.Next() {
		var (
			roleID string
			data   []byte
			list   []rbac.RoleOverride
		)
		if err := rows.Scan(&roleID, &data); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan role overrides: %w", err)
		}
		if err := unmarshalJSON(data, &list); err != nil {
			rows.Close()
			return err
		}
		kept := []rbac.RoleOverride{}
		for _, o := range list {
			if o.TemplateID != templateID {
				kept = append(kept, o)
				continue
			}
			if replacement != nil {
				o.TemplateID = replacement.ID
				o.Permissions = replacement.Permissions.Clone()
				kept = append(kept, o)
			}
		}
		updated[roleID] = kept
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to load role overrides: %w", err)
	}
	rows.Close()

	for roleID, list := range updated {
		data, err := marshalJSON(list)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE custom_roles SET resource_overrides = $2, updated_at = NOW() WHERE id = $1",
			roleID, data); err != nil {
			return translate("rewrite role overrides", err)
		}
	}
	return nil
}

// UpsertResourceOverride replaces any override for the same resource, keeping
// the original id and creation time
func (s *Store) UpsertResourceOverride(ctx context.Context, o *rbac.ResourceOverride) error {
	perms, err := marshalJSON(o.Permissions)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO resource_overrides (`+overrideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, resource_type, resource_id) DO UPDATE SET
			permissions = EXCLUDED.permissions,
			template_id = EXCLUDED.template_id,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, o.ID, o.OrganizationID, o.ResourceType, o.ResourceID, perms, nullString(o.TemplateID),
		nullString(o.CreatedBy), o.CreatedAt, o.UpdatedAt).Scan(&o.ID, &o.CreatedAt)
	return translate("upsert resource override", err)
}

// GetResourceOverride retrieves the override for a resource
func (s *Store) GetResourceOverride(ctx context.Context, organizationID, resourceType, resourceID string) (*rbac.ResourceOverride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+overrideColumns+` FROM resource_overrides
		WHERE organization_id = $1 AND resource_type = $2 AND resource_id = $3
	`, organizationID, resourceType, resourceID)
	o, err := scanOverride(row)
	if err != nil {
		return nil, translate("get resource override", err)
	}
	return o, nil
}
