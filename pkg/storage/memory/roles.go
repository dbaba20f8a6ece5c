package memory

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

func copyRole(r *rbac.CustomRole) *rbac.CustomRole {
	c := *r
	if r.Permissions != nil {
		c.Permissions = r.Permissions.Clone()
	}
	if r.ResourceOverrides != nil {
		c.ResourceOverrides = make([]rbac.RoleOverride, len(r.ResourceOverrides))
		for i, o := range r.ResourceOverrides {
			o.Permissions = o.Permissions.Clone()
			c.ResourceOverrides[i] = o
		}
	}
	c.DeletedAt = copyTime(r.DeletedAt)
	return &c
}

// CreateCustomRole inserts a custom role
func (s *Store) CreateCustomRole(_ context.Context, role *rbac.CustomRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[role.ID]; ok {
		return apperrors.ErrDuplicate
	}
	s.roles[role.ID] = copyRole(role)
	return nil
}

// GetCustomRole retrieves a custom role in any status
func (s *Store) GetCustomRole(_ context.Context, organizationID, id string) (*rbac.CustomRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok || r.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return copyRole(r), nil
}

// ListCustomRoles lists an organization's custom roles in every status
func (s *Store) ListCustomRoles(_ context.Context, organizationID string) ([]*rbac.CustomRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*rbac.CustomRole
	for _, r := range s.roles {
		if r.OrganizationID == organizationID {
			out = append(out, copyRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateCustomRole replaces a custom role
func (s *Store) UpdateCustomRole(_ context.Context, role *rbac.CustomRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.roles[role.ID]
	if !ok || existing.OrganizationID != role.OrganizationID {
		return apperrors.ErrNotFound
	}
	s.roles[role.ID] = copyRole(role)
	return nil
}

// DeleteCustomRole reassigns the role's memberships and marks it deleted
// under one lock
func (s *Store) DeleteCustomRole(_ context.Context, organizationID, id, reassignTo string, deletedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok || role.OrganizationID != organizationID || role.Status == rbac.RoleStatusDeleted {
		return 0, apperrors.ErrNotFound
	}

	var dependents []*rbac.Membership
	for _, m := range s.memberships {
		if m.OrganizationID == organizationID && m.Role == id &&
			(m.Status == rbac.StatusActive || m.Status == rbac.StatusInvited) {
			dependents = append(dependents, m)
		}
	}
	if len(dependents) > 0 && reassignTo == "" {
		return 0, apperrors.ErrDuplicate
	}

	for _, m := range dependents {
		m.Role = reassignTo
		m.UpdatedAt = deletedAt
	}
	role.Status = rbac.RoleStatusDeleted
	role.DeletedAt = &deletedAt
	role.UpdatedAt = deletedAt
	return len(dependents), nil
}
