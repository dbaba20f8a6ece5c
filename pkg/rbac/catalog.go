package rbac

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"gopkg.in/yaml.v3"
)

// Catalog holds the default permission set of each non-admin built-in role.
// Admin is never listed: it implicitly holds every permission.
//
// A catalog is an explicit value handed to the resolver and role service at
// construction; nothing reads role defaults from package state.
type Catalog struct {
	Roles map[string]PermissionSet `yaml:"roles" json:"roles"`
}

// DefaultCatalog returns the compiled-in role defaults.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Roles: map[string]PermissionSet{
			RoleManager: {
				PermRead: true, PermWrite: true, PermDelete: true, PermShare: true,
				PermInvite: true, PermManageMembers: true, PermViewReports: true,
				PermExport: true, PermTrackTime: true,
			},
			RoleMember: {
				PermRead: true, PermWrite: true, PermShare: true, PermTrackTime: true,
			},
			RoleGuest: {
				PermRead: true,
			},
		},
	}
}

// LoadCatalog reads a YAML catalog file:
//
//	roles:
//	  manager: {read: true, write: true, invite: true}
//	  member:  {read: true, write: true}
//	  guest:   {read: true}
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates YAML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse role catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that only non-admin built-in roles and known permissions
// appear.
func (c *Catalog) Validate() error {
	if c == nil || len(c.Roles) == 0 {
		return errors.New("role catalog has no roles")
	}
	for role, perms := range c.Roles {
		if role == RoleAdmin {
			return errors.New("role catalog must not define admin; admin holds every permission")
		}
		if !IsBuiltInRole(role) {
			return fmt.Errorf("role catalog defines unknown role %q", role)
		}
		if err := perms.Validate(); err != nil {
			return fmt.Errorf("role catalog role %q: %w", role, err)
		}
	}
	return nil
}

// Defaults returns a copy of the default permission set of a built-in role.
func (c *Catalog) Defaults(role string) (PermissionSet, bool) {
	if role == RoleAdmin {
		return FullPermissionSet(), true
	}
	if !IsBuiltInRole(role) {
		return nil, false
	}
	return c.Roles[role].Clone(), true
}

// Clone returns a deep copy.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{Roles: make(map[string]PermissionSet, len(c.Roles))}
	for role, perms := range c.Roles {
		out.Roles[role] = perms.Clone()
	}
	return out
}

// Catalog returns c, so a static *Catalog is itself a CatalogSource.
func (c *Catalog) Catalog() *Catalog {
	return c
}

// CatalogSource yields the current catalog. The file watcher swaps catalogs
// behind this interface without touching its consumers.
type CatalogSource interface {
	Catalog() *Catalog
}

// RoleCatalog answers "what does this role grant" for built-in names and
// custom role ids. Built-in defaults come from the snapshot the organization
// was created with; organizations without one use the configured source.
type RoleCatalog struct {
	source    CatalogSource
	roles     CustomRoleStore
	snapshots RoleDefaultsStore
}

// NewRoleCatalog creates a role catalog. roles and snapshots may be nil.
func NewRoleCatalog(source CatalogSource, roles CustomRoleStore, snapshots RoleDefaultsStore) *RoleCatalog {
	return &RoleCatalog{source: source, roles: roles, snapshots: snapshots}
}

// Snapshot copies the configured catalog for a new organization.
func (rc *RoleCatalog) Snapshot() *Catalog {
	return rc.source.Catalog().Clone()
}

func (rc *RoleCatalog) catalogFor(ctx context.Context, organizationID string) (*Catalog, error) {
	if rc.snapshots == nil || organizationID == "" {
		return rc.source.Catalog(), nil
	}
	c, err := rc.snapshots.GetRoleDefaults(ctx, organizationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return rc.source.Catalog(), nil
		}
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}
	if c == nil || len(c.Roles) == 0 {
		return rc.source.Catalog(), nil
	}
	return c, nil
}

// Permissions returns the permission set of role within an organization.
// For custom roles the result is the base role defaults merged with the
// role's own map, merged again with the override matching target (if any).
// Unknown or deleted roles fail with ROLE_NOT_FOUND.
func (rc *RoleCatalog) Permissions(ctx context.Context, organizationID, role string, target *ResourceRef) (PermissionSet, error) {
	catalog, err := rc.catalogFor(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if defaults, ok := catalog.Defaults(role); ok {
		return defaults, nil
	}

	if rc.roles == nil {
		return nil, apperrors.RoleNotFound(role)
	}
	custom, err := rc.roles.GetCustomRole(ctx, organizationID, role)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.RoleNotFound(role)
		}
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}
	if custom.Status != RoleStatusActive {
		return nil, apperrors.RoleNotFound(role)
	}
	return CustomPermissions(catalog, custom, target), nil
}

// CustomPermissions computes a custom role's effective set against catalog.
func CustomPermissions(catalog *Catalog, role *CustomRole, target *ResourceRef) PermissionSet {
	base := PermissionSet{}
	if role.BasedOn != BaseCustom {
		if defaults, ok := catalog.Defaults(role.BasedOn); ok {
			base = defaults
		}
	}
	effective := base.Merge(role.Permissions)
	for _, o := range role.ResourceOverrides {
		if o.Matches(target) {
			effective = effective.Merge(o.Permissions)
		}
	}
	return effective
}

// Exists reports whether role names a built-in role or an active custom role
// of the organization.
func (rc *RoleCatalog) Exists(ctx context.Context, organizationID, role string) error {
	_, err := rc.Permissions(ctx, organizationID, role, nil)
	return err
}
