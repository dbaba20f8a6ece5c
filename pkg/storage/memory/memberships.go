package memory

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

func copyMembership(m *rbac.Membership) *rbac.Membership {
	c := *m
	if m.Permissions != nil {
		c.Permissions = m.Permissions.Clone()
	}
	c.InvitedAt = copyTime(m.InvitedAt)
	c.JoinedAt = copyTime(m.JoinedAt)
	c.EndedAt = copyTime(m.EndedAt)
	return &c
}

// activeConflict reports whether another active membership exists for m's
// user and organization.
func (s *Store) activeConflict(m *rbac.Membership) bool {
	if m.Status != rbac.StatusActive {
		return false
	}
	for _, other := range s.memberships {
		if other.ID != m.ID && other.Status == rbac.StatusActive &&
			other.UserID == m.UserID && other.OrganizationID == m.OrganizationID {
			return true
		}
	}
	return false
}

// CreateMembership inserts a membership
func (s *Store) CreateMembership(_ context.Context, m *rbac.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[m.ID]; ok || s.activeConflict(m) {
		return apperrors.ErrDuplicate
	}
	s.memberships[m.ID] = copyMembership(m)
	return nil
}

// GetMembership retrieves a membership by id
func (s *Store) GetMembership(_ context.Context, id string) (*rbac.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyMembership(m), nil
}

// FindActiveMemberships returns the active memberships of a user in an
// organization
func (s *Store) FindActiveMemberships(ctx context.Context, userID, organizationID string) ([]*rbac.Membership, error) {
	return s.ListMemberships(ctx, rbac.MembershipFilter{
		OrganizationID: organizationID,
		UserID:         userID,
		Statuses:       []rbac.MembershipStatus{rbac.StatusActive},
	})
}

// ListMemberships lists memberships matching filter, oldest first
func (s *Store) ListMemberships(_ context.Context, filter rbac.MembershipFilter) ([]*rbac.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*rbac.Membership
	for _, m := range s.memberships {
		if membershipMatches(m, filter) {
			out = append(out, copyMembership(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateMembership replaces a membership
func (s *Store) UpdateMembership(_ context.Context, m *rbac.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[m.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if s.activeConflict(m) {
		return apperrors.ErrDuplicate
	}
	s.memberships[m.ID] = copyMembership(m)
	return nil
}

// ExpireInvitations expires invitations sent before cutoff
func (s *Store) ExpireInvitations(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := time.Now().UTC()
	for _, m := range s.memberships {
		if m.Status != rbac.StatusInvited || m.InvitedAt == nil || !m.InvitedAt.Before(cutoff) {
			continue
		}
		m.Status = rbac.StatusExpired
		m.EndedAt = &now
		m.UpdatedAt = now
		n++
	}
	return n, nil
}

func membershipMatches(m *rbac.Membership, f rbac.MembershipFilter) bool {
	if f.OrganizationID != "" && m.OrganizationID != f.OrganizationID {
		return false
	}
	if f.UserID != "" && m.UserID != f.UserID {
		return false
	}
	if f.Role != "" && m.Role != f.Role {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if m.Status == st {
			return true
		}
	}
	return false
}
