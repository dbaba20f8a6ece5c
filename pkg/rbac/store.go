package rbac

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/auth"
)

// Store interfaces consumed by the authorization engine. Implementations live
// in pkg/storage/postgres and pkg/storage/memory. Lookups return
// apperrors.ErrNotFound when nothing matches; inserts that would break a
// uniqueness guarantee return apperrors.ErrDuplicate.

// UserLookup loads users for the current-organization fallback.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// MembershipFilter narrows ListMemberships. Empty fields match everything.
type MembershipFilter struct {
	OrganizationID string
	UserID         string
	Role           string
	Statuses       []MembershipStatus
}

// MembershipStore persists memberships.
type MembershipStore interface {
	// CreateMembership fails with ErrDuplicate when the new membership is
	// active and another active membership exists for the same pair.
	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, id string) (*Membership, error)
	// FindActiveMemberships returns every active membership of the pair.
	// More than one result is an invariant violation.
	FindActiveMemberships(ctx context.Context, userID, organizationID string) ([]*Membership, error)
	ListMemberships(ctx context.Context, filter MembershipFilter) ([]*Membership, error)
	// UpdateMembership fails with ErrDuplicate when activating it would
	// create a second active membership for the pair.
	UpdateMembership(ctx context.Context, m *Membership) error
	// ExpireInvitations moves invitations created before cutoff to expired
	// and returns how many changed.
	ExpireInvitations(ctx context.Context, cutoff time.Time) (int, error)
}

// CustomRoleStore persists custom roles.
type CustomRoleStore interface {
	CreateCustomRole(ctx context.Context, role *CustomRole) error
	// GetCustomRole returns the role in any status.
	GetCustomRole(ctx context.Context, organizationID, id string) (*CustomRole, error)
	ListCustomRoles(ctx context.Context, organizationID string) ([]*CustomRole, error)
	UpdateCustomRole(ctx context.Context, role *CustomRole) error
	// DeleteCustomRole reassigns every active or invited membership holding
	// the role to reassignTo and marks the role deleted, in one transaction.
	// It returns the number of reassigned memberships, and fails with
	// ErrDuplicate when reassignTo is empty but memberships hold the role.
	DeleteCustomRole(ctx context.Context, organizationID, id, reassignTo string, deletedAt time.Time) (int, error)
}

// TemplateStore persists permission templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *PermissionTemplate) error
	GetTemplate(ctx context.Context, organizationID, id string) (*PermissionTemplate, error)
	ListTemplates(ctx context.Context, organizationID string) ([]*PermissionTemplate, error)
	UpdateTemplate(ctx context.Context, t *PermissionTemplate) error
	// CountTemplateApplications counts resource overrides and custom role
	// overrides created from the template.
	CountTemplateApplications(ctx context.Context, organizationID, id string) (int, error)
	// DeleteTemplate deletes the template in one transaction. With a nil
	// replacement every application is removed; otherwise applications are
	// rewritten to carry the replacement's id and permissions.
	DeleteTemplate(ctx context.Context, organizationID, id string, replacement *PermissionTemplate) error
}

// OverrideStore persists resource-level overrides.
type OverrideStore interface {
	// UpsertResourceOverride replaces any override for the same resource.
	UpsertResourceOverride(ctx context.Context, o *ResourceOverride) error
	GetResourceOverride(ctx context.Context, organizationID, resourceType, resourceID string) (*ResourceOverride, error)
}

// RoleDefaultsStore returns the role defaults an organization was created
// with. It returns apperrors.ErrNotFound for unknown organizations.
type RoleDefaultsStore interface {
	GetRoleDefaults(ctx context.Context, organizationID string) (*Catalog, error)
}
