package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/ids"
)

// roleTransitions lists the legal custom role lifecycle moves. Nothing leaves
// deleted.
var roleTransitions = map[RoleStatus][]RoleStatus{
	RoleStatusDraft:  {RoleStatusDraft, RoleStatusActive, RoleStatusDeleted},
	RoleStatusActive: {RoleStatusActive, RoleStatusDeleted},
}

// CanTransition reports whether a custom role may move from one status to
// another.
func CanTransition(from, to RoleStatus) bool {
	for _, s := range roleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateRoleRequest is the input for creating a custom role.
type CreateRoleRequest struct {
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	BasedOn           string         `json:"basedOn"`
	Permissions       PermissionSet  `json:"permissions"`
	ResourceOverrides []RoleOverride `json:"resourceOverrides"`
	// Draft keeps the role out of service until it is activated.
	Draft bool `json:"draft"`
}

// UpdateRoleRequest carries optional changes to a custom role.
type UpdateRoleRequest struct {
	Name              *string         `json:"name"`
	Description       *string         `json:"description"`
	BasedOn           *string         `json:"basedOn"`
	Permissions       PermissionSet   `json:"permissions"`
	ResourceOverrides *[]RoleOverride `json:"resourceOverrides"`
	Activate          bool            `json:"activate"`
}

// DeleteRoleResult reports the outcome of a role deletion.
type DeleteRoleResult struct {
	Role       *CustomRole `json:"role"`
	Reassigned int         `json:"reassigned"`
	NewRoleID  string      `json:"newRoleId,omitempty"`
}

// RoleService manages custom roles. Every call requires an actor holding
// manage_roles in the role's organization.
type RoleService struct {
	roles       CustomRoleStore
	memberships MembershipStore
	catalog     *RoleCatalog
	audit       audit.Logger
	now         func() time.Time
}

// NewRoleService creates a custom role service
func NewRoleService(roles CustomRoleStore, memberships MembershipStore, catalog *RoleCatalog, auditLogger audit.Logger) *RoleService {
	return &RoleService{
		roles:       roles,
		memberships: memberships,
		catalog:     catalog,
		audit:       auditLogger,
		now:         time.Now,
	}
}

// CreateRole creates a custom role. Without Draft the role is created active.
func (s *RoleService) CreateRole(ctx context.Context, actor *ResolvedMembership, req CreateRoleRequest) (*CustomRole, error) {
	if err := actor.CheckPermission(PermManageRoles); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if err := s.validateDefinition(name, req.BasedOn, req.Permissions, req.ResourceOverrides); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, actor.OrganizationID, name, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := &CustomRole{
		ID:                ids.New(),
		OrganizationID:    actor.OrganizationID,
		Name:              name,
		Description:       req.Description,
		BasedOn:           req.BasedOn,
		Permissions:       req.Permissions.Clone(),
		ResourceOverrides: req.ResourceOverrides,
		Status:            RoleStatusDraft,
		CreatedBy:         actor.Membership.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !req.Draft {
		role.Status = RoleStatusActive
	}

	if err := s.roles.CreateCustomRole(ctx, role); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.DuplicateName("role", name)
		}
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}

	s.record(ctx, actor, audit.EventTypeRoleCreate, role, map[string]interface{}{"status": role.Status})
	return role, nil
}

// GetRole returns a non-deleted custom role. Any member may read it.
func (s *RoleService) GetRole(ctx context.Context, actor *ResolvedMembership, id string) (*CustomRole, error) {
	return s.load(ctx, actor.OrganizationID, id)
}

// ListRoles returns the organization's non-deleted custom roles. Any member
// may list them.
func (s *RoleService) ListRoles(ctx context.Context, actor *ResolvedMembership) ([]*CustomRole, error) {
	all, err := s.roles.ListCustomRoles(ctx, actor.OrganizationID)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}
	out := make([]*CustomRole, 0, len(all))
	for _, r := range all {
		if r.Status != RoleStatusDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateRole applies changes to a draft or active role.
func (s *RoleService) UpdateRole(ctx context.Context, actor *ResolvedMembership, id string, req UpdateRoleRequest) (*CustomRole, error) {
	if err := actor.CheckPermission(PermManageRoles); err != nil {
		return nil, err
	}
	role, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	next := role.Status
	if req.Activate {
		next = RoleStatusActive
	}
	if !CanTransition(role.Status, next) {
		return nil, apperrors.Validation(fmt.Sprintf("role cannot move from %s to %s", role.Status, next))
	}

	updated := *role
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.BasedOn != nil {
		updated.BasedOn = *req.BasedOn
	}
	if req.Permissions != nil {
		updated.Permissions = req.Permissions.Clone()
	}
	if req.ResourceOverrides != nil {
		updated.ResourceOverrides = *req.ResourceOverrides
	}
	if err := s.validateDefinition(updated.Name, updated.BasedOn, updated.Permissions, updated.ResourceOverrides); err != nil {
		return nil, err
	}
	if updated.Name != role.Name {
		if err := s.ensureUniqueName(ctx, actor.OrganizationID, updated.Name, role.ID); err != nil {
			return nil, err
		}
	}
	updated.Status = next
	updated.UpdatedAt = s.now().UTC()

	if err := s.roles.UpdateCustomRole(ctx, &updated); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.DuplicateName("role", updated.Name)
		}
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}

	s.record(ctx, actor, audit.EventTypeRoleUpdate, &updated, map[string]interface{}{
		"from_status": role.Status,
		"to_status":   updated.Status,
	})
	return &updated, nil
}

// DeleteRole moves a role to deleted. Memberships holding the role block the
// delete unless newRoleID names a built-in role or another active custom role
// of the organization, in which case they are reassigned in the same
// transaction as the delete.
func (s *RoleService) DeleteRole(ctx context.Context, actor *ResolvedMembership, id, newRoleID string) (*DeleteRoleResult, error) {
	if err := actor.CheckPermission(PermManageRoles); err != nil {
		return nil, err
	}
	role, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	dependents, err := s.memberships.ListMemberships(ctx, MembershipFilter{
		OrganizationID: actor.OrganizationID,
		Role:           role.ID,
		Statuses:       []MembershipStatus{StatusActive, StatusInvited},
	})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}

	if newRoleID != "" {
		if newRoleID == role.ID {
			return nil, apperrors.Validation("newRoleId must differ from the deleted role")
		}
		if !IsBuiltInRole(newRoleID) {
			normalized, ok := ids.Normalize(newRoleID)
			if !ok {
				return nil, apperrors.InvalidID("newRoleId")
			}
			newRoleID = normalized
		}
		if err := s.catalog.Exists(ctx, actor.OrganizationID, newRoleID); err != nil {
			return nil, err
		}
	} else if len(dependents) > 0 {
		return nil, apperrors.Conflict(apperrors.CodeRoleInUse,
			fmt.Sprintf("role is held by %d memberships; supply newRoleId to reassign them", len(dependents)))
	}

	deletedAt := s.now().UTC()
	reassigned, err := s.roles.DeleteCustomRole(ctx, actor.OrganizationID, role.ID, newRoleID, deletedAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.RoleNotFound(id)
		}
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.Conflict(apperrors.CodeRoleInUse, "role was assigned concurrently; supply newRoleId to reassign its memberships")
		}
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}

	role.Status = RoleStatusDeleted
	role.DeletedAt = &deletedAt
	role.UpdatedAt = deletedAt
	s.record(ctx, actor, audit.EventTypeRoleDelete, role, map[string]interface{}{
		"new_role_id": newRoleID,
		"reassigned":  reassigned,
	})
	return &DeleteRoleResult{Role: role, Reassigned: reassigned, NewRoleID: newRoleID}, nil
}

// load fetches a role and hides deleted ones.
func (s *RoleService) load(ctx context.Context, orgID, id string) (*CustomRole, error) {
	normalized, ok := ids.Normalize(id)
	if !ok {
		return nil, apperrors.InvalidID("role id")
	}
	role, err := s.roles.GetCustomRole(ctx, orgID, normalized)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.RoleNotFound(id)
		}
		return nil, apperrors.Internal(apperrors.CodeRoleError, err)
	}
	if role.Status == RoleStatusDeleted {
		return nil, apperrors.RoleNotFound(id)
	}
	return role, nil
}

func (s *RoleService) validateDefinition(name, basedOn string, perms PermissionSet, overrides []RoleOverride) error {
	if name == "" {
		return apperrors.Validation("role name is required")
	}
	if len(name) > 64 {
		return apperrors.Validation("role name must be at most 64 characters")
	}
	if IsBuiltInRole(strings.ToLower(name)) || strings.EqualFold(name, BaseCustom) {
		return apperrors.Validation(fmt.Sprintf("role name %q is reserved", name))
	}
	if basedOn != BaseCustom && !IsBuiltInRole(basedOn) {
		return apperrors.Validation(fmt.Sprintf("basedOn must be one of %v or %q", BuiltInRoles(), BaseCustom))
	}
	if err := perms.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	for _, o := range overrides {
		if !IsKnownResourceType(o.ResourceType) {
			return apperrors.Validation(fmt.Sprintf("unknown resource type %q in override", o.ResourceType))
		}
		if !ids.Valid(o.ResourceID) {
			return apperrors.InvalidID("override resource id")
		}
		if err := o.Permissions.Validate(); err != nil {
			return apperrors.Validation(err.Error())
		}
	}
	return nil
}

// ensureUniqueName rejects a name already used by another non-deleted role.
func (s *RoleService) ensureUniqueName(ctx context.Context, orgID, name, exceptID string) error {
	existing, err := s.roles.ListCustomRoles(ctx, orgID)
	if err != nil {
		return apperrors.Internal(apperrors.CodeRoleError, err)
	}
	for _, r := range existing {
		if r.ID == exceptID || r.Status == RoleStatusDeleted {
			continue
		}
		if strings.EqualFold(r.Name, name) {
			return apperrors.DuplicateName("role", name)
		}
	}
	return nil
}

func (s *RoleService) record(ctx context.Context, actor *ResolvedMembership, eventType audit.EventType, role *CustomRole, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["role_name"] = role.Name
	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      eventType,
		UserID:         actor.Membership.UserID,
		OrganizationID: actor.OrganizationID,
		ResourceType:   "custom_role",
		ResourceID:     role.ID,
		Metadata:       metadata,
	})
}
