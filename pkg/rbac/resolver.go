package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/ids"
)

// EffectivePermissions is the merged permission view of one membership.
type EffectivePermissions struct {
	// All is set for admins: every permission is granted.
	All         bool          `json:"all"`
	Permissions PermissionSet `json:"permissions"`
}

// Allows reports whether p is granted.
func (e EffectivePermissions) Allows(p Permission) bool {
	return e.All || e.Permissions.Allows(p)
}

// ResolvedMembership is the result of membership resolution. Middleware
// stores it on the request context for downstream handlers.
type ResolvedMembership struct {
	Membership     *Membership          `json:"membership"`
	OrganizationID string               `json:"organizationId"`
	Effective      EffectivePermissions `json:"effectivePermissions"`
}

// Role returns the membership's role.
func (rm *ResolvedMembership) Role() string {
	return rm.Membership.Role
}

// IsAdmin reports whether the member is an organization admin.
func (rm *ResolvedMembership) IsAdmin() bool {
	return rm != nil && rm.Membership.Role == RoleAdmin
}

// Can reports whether the member holds p.
func (rm *ResolvedMembership) Can(p Permission) bool {
	return rm != nil && rm.Effective.Allows(p)
}

// CheckRole passes for admins and for members whose role is listed.
// Custom roles match by id only.
func (rm *ResolvedMembership) CheckRole(roles ...string) error {
	if rm.IsAdmin() {
		return nil
	}
	for _, r := range roles {
		if rm.Membership.Role == r {
			return nil
		}
	}
	return apperrors.InsufficientRole(fmt.Sprintf("one of roles %v is required", roles))
}

// CheckPermission passes for admins and for members holding p.
func (rm *ResolvedMembership) CheckPermission(p Permission) error {
	if rm.Can(p) {
		return nil
	}
	return apperrors.InsufficientPermission(fmt.Sprintf("permission %q is required", p))
}

// Resolver determines a user's active membership and effective permissions
// within an organization.
type Resolver struct {
	users       UserLookup
	memberships MembershipStore
	roles       *RoleCatalog
}

// NewResolver creates a membership resolver
func NewResolver(users UserLookup, memberships MembershipStore, roles *RoleCatalog) *Resolver {
	return &Resolver{
		users:       users,
		memberships: memberships,
		roles:       roles,
	}
}

// Resolve returns the caller's active membership in organizationID. An
// empty organizationID falls back to the user's current organization.
func (r *Resolver) Resolve(ctx context.Context, userID, organizationID string) (*ResolvedMembership, error) {
	return r.ResolveFor(ctx, userID, organizationID, nil)
}

// ResolveFor is Resolve with custom role overrides for target applied to the
// effective permissions.
func (r *Resolver) ResolveFor(ctx context.Context, userID, organizationID string, target *ResourceRef) (*ResolvedMembership, error) {
	if organizationID == "" {
		user, err := r.users.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.UserNotFound()
			}
			return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
		}
		if !ids.Valid(user.CurrentOrganization) {
			return nil, apperrors.OrganizationRequired()
		}
		organizationID = user.CurrentOrganization
	}

	orgID, ok := ids.Normalize(organizationID)
	if !ok {
		return nil, apperrors.InvalidID("organization id")
	}

	active, err := r.memberships.FindActiveMemberships(ctx, userID, orgID)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	switch len(active) {
	case 0:
		return nil, apperrors.NotAMember("")
	case 1:
	default:
		return nil, apperrors.Internal(apperrors.CodeMembershipError,
			fmt.Errorf("%d active memberships for user %s in organization %s", len(active), userID, orgID))
	}

	m := active[0]
	effective, err := r.Effective(ctx, m, target)
	if err != nil {
		return nil, err
	}
	return &ResolvedMembership{
		Membership:     m,
		OrganizationID: orgID,
		Effective:      effective,
	}, nil
}

// Effective merges the role's permissions with the membership overrides.
// Admin short-circuits to every permission.
func (r *Resolver) Effective(ctx context.Context, m *Membership, target *ResourceRef) (EffectivePermissions, error) {
	if m.Role == RoleAdmin {
		return EffectivePermissions{All: true, Permissions: FullPermissionSet()}, nil
	}

	base, err := r.roles.Permissions(ctx, m.OrganizationID, m.Role, target)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeRoleNotFound) {
			return EffectivePermissions{}, apperrors.Internal(apperrors.CodeMembershipError,
				fmt.Errorf("membership %s references missing role %s: %w", m.ID, m.Role, err))
		}
		return EffectivePermissions{}, err
	}
	return EffectivePermissions{Permissions: base.Merge(m.Permissions)}, nil
}
