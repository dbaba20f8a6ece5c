package memory

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

func copyOrganization(o *orgs.Organization) *orgs.Organization {
	c := *o
	if o.RoleDefaults != nil {
		c.RoleDefaults = o.RoleDefaults.Clone()
	}
	c.DeletedAt = copyTime(o.DeletedAt)
	return &c
}

// CreateOrganization inserts an organization and its owner membership
func (s *Store) CreateOrganization(_ context.Context, org *orgs.Organization, owner *rbac.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[org.ID]; ok {
		return apperrors.ErrDuplicate
	}
	if owner != nil {
		if _, ok := s.memberships[owner.ID]; ok || s.activeConflict(owner) {
			return apperrors.ErrDuplicate
		}
		s.memberships[owner.ID] = copyMembership(owner)
	}
	s.organizations[org.ID] = copyOrganization(org)
	return nil
}

// GetOrganization retrieves an active organization
func (s *Store) GetOrganization(_ context.Context, id string) (*orgs.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.organizations[id]
	if !ok || o.Status == orgs.OrgStatusDeleted {
		return nil, apperrors.ErrNotFound
	}
	return copyOrganization(o), nil
}

// GetRoleDefaults returns the catalog snapshot of an organization
func (s *Store) GetRoleDefaults(_ context.Context, organizationID string) (*rbac.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.organizations[organizationID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if o.RoleDefaults == nil {
		return nil, nil
	}
	return o.RoleDefaults.Clone(), nil
}

// ListOrganizationsForUser lists the organizations a user actively belongs to
func (s *Store) ListOrganizationsForUser(_ context.Context, userID string) ([]*orgs.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*orgs.Organization{}
	for _, m := range s.memberships {
		if m.UserID != userID || m.Status != rbac.StatusActive {
			continue
		}
		if o, ok := s.organizations[m.OrganizationID]; ok && o.Status != orgs.OrgStatusDeleted {
			out = append(out, copyOrganization(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateOrganization replaces an organization
func (s *Store) UpdateOrganization(_ context.Context, org *orgs.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.organizations[org.ID]
	if !ok || existing.Status == orgs.OrgStatusDeleted {
		return apperrors.ErrNotFound
	}
	s.organizations[org.ID] = copyOrganization(org)
	return nil
}

// DeleteOrganization marks an organization deleted and ends its memberships
func (s *Store) DeleteOrganization(_ context.Context, id string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.organizations[id]
	if !ok || o.Status == orgs.OrgStatusDeleted {
		return apperrors.ErrNotFound
	}
	o.Status = orgs.OrgStatusDeleted
	o.DeletedAt = &deletedAt
	o.UpdatedAt = deletedAt

	for _, m := range s.memberships {
		if m.OrganizationID == id && (m.Status == rbac.StatusActive || m.Status == rbac.StatusInvited) {
			m.Status = rbac.StatusRemoved
			m.EndedAt = &deletedAt
			m.UpdatedAt = deletedAt
		}
	}
	return nil
}
