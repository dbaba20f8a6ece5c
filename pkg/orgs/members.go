package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// ListMembers lists the organization's members. Without statuses only
// active and invited memberships are returned.
func (s *Service) ListMembers(ctx context.Context, actor *rbac.ResolvedMembership, statuses ...rbac.MembershipStatus) ([]*Member, error) {
	if len(statuses) == 0 {
		statuses = []rbac.MembershipStatus{rbac.StatusActive, rbac.StatusInvited}
	}
	memberships, err := s.memberships.ListMemberships(ctx, rbac.MembershipFilter{
		OrganizationID: actor.OrganizationID,
		Statuses:       statuses,
	})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}

	members := make([]*Member, 0, len(memberships))
	for _, m := range memberships {
		member := &Member{Membership: m}
		user, err := s.users.GetUser(ctx, m.UserID)
		switch {
		case err == nil:
			member.Username = user.Username
			member.Email = user.Email
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
		}
		members = append(members, member)
	}
	return members, nil
}

// Invite creates an invited membership. Inviting requires the invite
// permission and inviting an admin requires the admin role. A non-admin
// inviter can only hand out permissions they hold, through the role or the
// overrides. Re-inviting a user with a pending invitation refreshes it.
func (s *Service) Invite(ctx context.Context, actor *rbac.ResolvedMembership, req InviteRequest) (*rbac.Membership, error) {
	if err := actor.CheckPermission(rbac.PermInvite); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = rbac.RoleMember
	}
	if role == rbac.RoleAdmin {
		if err := actor.CheckRole(rbac.RoleAdmin); err != nil {
			return nil, err
		}
	}
	rolePerms, err := s.catalog.Permissions(ctx, actor.OrganizationID, role, nil)
	if err != nil {
		return nil, err
	}
	if err := req.Permissions.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if !actor.IsAdmin() {
		// The invitee may not end up with anything the inviter lacks.
		for _, p := range rolePerms.Merge(req.Permissions).Granted() {
			if err := actor.CheckPermission(p); err != nil {
				return nil, err
			}
		}
	}

	invitee, err := s.findInvitee(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := s.memberships.ListMemberships(ctx, rbac.MembershipFilter{
		OrganizationID: actor.OrganizationID,
		UserID:         invitee.ID,
		Statuses:       []rbac.MembershipStatus{rbac.StatusActive, rbac.StatusInvited},
	})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}

	now := s.now()
	for _, m := range existing {
		if m.Status == rbac.StatusActive {
			return nil, apperrors.Conflict(apperrors.CodeAlreadyMember, "user is already a member of this organization")
		}
		m.Role = role
		m.Permissions = req.Permissions.Clone()
		m.InvitedBy = actor.Membership.UserID
		m.InvitedAt = &now
		m.UpdatedAt = now
		if err := s.memberships.UpdateMembership(ctx, m); err != nil {
			return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
		}
		s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeMemberInvite, invitee.ID,
			map[string]interface{}{"role": role, "refreshed": true})
		return m, nil
	}

	m := &rbac.Membership{
		ID:             ids.New(),
		UserID:         invitee.ID,
		OrganizationID: actor.OrganizationID,
		Role:           role,
		Status:         rbac.StatusInvited,
		Permissions:    req.Permissions.Clone(),
		InvitedBy:      actor.Membership.UserID,
		InvitedAt:      &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.memberships.CreateMembership(ctx, m); err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}

	s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeMemberInvite, invitee.ID,
		map[string]interface{}{"role": role})
	return m, nil
}

// AcceptInvitation activates the user's pending invitation to the
// organization. Invitations older than the invitation TTL are expired
// instead.
func (s *Service) AcceptInvitation(ctx context.Context, userID, organizationID string) (*rbac.Membership, error) {
	orgID, ok := ids.Normalize(organizationID)
	if !ok {
		return nil, apperrors.InvalidID("organization id")
	}

	invited, err := s.memberships.ListMemberships(ctx, rbac.MembershipFilter{
		OrganizationID: orgID,
		UserID:         userID,
		Statuses:       []rbac.MembershipStatus{rbac.StatusInvited},
	})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	if len(invited) == 0 {
		return nil, apperrors.MembershipNotFound()
	}

	m := invited[0]
	now := s.now()
	if m.InvitedAt != nil && now.Sub(*m.InvitedAt) > s.invitationTTL {
		m.Status = rbac.StatusExpired
		m.EndedAt = &now
		m.UpdatedAt = now
		if err := s.memberships.UpdateMembership(ctx, m); err != nil {
			return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
		}
		return nil, apperrors.MembershipNotFound()
	}

	m.Status = rbac.StatusActive
	m.JoinedAt = &now
	m.UpdatedAt = now
	if err := s.memberships.UpdateMembership(ctx, m); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.Conflict(apperrors.CodeAlreadyMember, "user is already a member of this organization")
		}
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}

	if err := s.adoptIfUnset(ctx, userID, orgID); err != nil {
		return nil, err
	}

	s.record(ctx, userID, orgID, audit.EventTypeMemberJoin, userID, map[string]interface{}{"role": m.Role})
	return m, nil
}

// UpdateMemberRole changes an active member's role. Admin only. The last
// admin cannot be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, actor *rbac.ResolvedMembership, userID, role string) (*rbac.Membership, error) {
	if err := actor.CheckRole(rbac.RoleAdmin); err != nil {
		return nil, err
	}
	if role == "" {
		return nil, apperrors.Validation("role is required")
	}
	if err := s.catalog.Exists(ctx, actor.OrganizationID, role); err != nil {
		return nil, err
	}

	m, err := s.activeMembership(ctx, actor.OrganizationID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role == rbac.RoleAdmin && role != rbac.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx, actor.OrganizationID); err != nil {
			return nil, err
		}
	}

	previous := m.Role
	m.Role = role
	m.UpdatedAt = s.now()
	if err := s.memberships.UpdateMembership(ctx, m); err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}

	s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeMemberRoleChange, userID,
		map[string]interface{}{"from": previous, "to": role})
	return m, nil
}

// UpdateMemberPermissions replaces an active member's permission overrides.
// Admin only.
func (s *Service) UpdateMemberPermissions(ctx context.Context, actor *rbac.ResolvedMembership, userID string, perms rbac.PermissionSet) (*rbac.Membership, error) {
	if err := actor.CheckRole(rbac.RoleAdmin); err != nil {
		return nil, err
	}
	if err := perms.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	m, err := s.activeMembership(ctx, actor.OrganizationID, userID)
	if err != nil {
		return nil, err
	}
	m.Permissions = perms.Clone()
	m.UpdatedAt = s.now()
	if err := s.memberships.UpdateMembership(ctx, m); err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}

	s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeMemberPermissionChange, userID,
		map[string]interface{}{"permissions": perms.Granted()})
	return m, nil
}

// RemoveMember ends a member's active membership or pending invitation. The
// row is kept with status removed. Requires manage_members; removing an
// admin also requires the admin role.
func (s *Service) RemoveMember(ctx context.Context, actor *rbac.ResolvedMembership, userID string) error {
	if err := actor.CheckPermission(rbac.PermManageMembers); err != nil {
		return err
	}

	memberships, err := s.memberships.ListMemberships(ctx, rbac.MembershipFilter{
		OrganizationID: actor.OrganizationID,
		UserID:         userID,
		Statuses:       []rbac.MembershipStatus{rbac.StatusActive, rbac.StatusInvited},
	})
	if err != nil {
		return apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	if len(memberships) == 0 {
		return apperrors.MembershipNotFound()
	}

	for _, m := range memberships {
		if m.Status == rbac.StatusActive && m.Role == rbac.RoleAdmin {
			if err := actor.CheckRole(rbac.RoleAdmin); err != nil {
				return err
			}
			if err := s.ensureAnotherAdmin(ctx, actor.OrganizationID); err != nil {
				return err
			}
		}
		if err := s.end(ctx, m, rbac.StatusRemoved); err != nil {
			return err
		}
	}

	s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeMemberRemove, userID, nil)
	return nil
}

// Leave ends the actor's own membership. The last admin cannot leave.
func (s *Service) Leave(ctx context.Context, actor *rbac.ResolvedMembership) error {
	if actor.IsAdmin() {
		if err := s.ensureAnotherAdmin(ctx, actor.OrganizationID); err != nil {
			return err
		}
	}
	if err := s.end(ctx, actor.Membership, rbac.StatusLeft); err != nil {
		return err
	}

	s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeMemberLeave, actor.Membership.UserID, nil)
	return nil
}

// ExpireInvitations expires invitations older than the invitation TTL and
// returns how many were expired.
func (s *Service) ExpireInvitations(ctx context.Context) (int, error) {
	n, err := s.memberships.ExpireInvitations(ctx, s.now().Add(-s.invitationTTL))
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return n, nil
}

func (s *Service) end(ctx context.Context, m *rbac.Membership, status rbac.MembershipStatus) error {
	now := s.now()
	m.Status = status
	m.EndedAt = &now
	m.UpdatedAt = now
	if err := s.memberships.UpdateMembership(ctx, m); err != nil {
		return apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	return nil
}

func (s *Service) activeMembership(ctx context.Context, orgID, userID string) (*rbac.Membership, error) {
	active, err := s.memberships.FindActiveMemberships(ctx, userID, orgID)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	if len(active) == 0 {
		return nil, apperrors.MembershipNotFound()
	}
	return active[0], nil
}

// ensureAnotherAdmin fails with LAST_ADMIN unless the organization has more
// than one active admin.
func (s *Service) ensureAnotherAdmin(ctx context.Context, orgID string) error {
	admins, err := s.memberships.ListMemberships(ctx, rbac.MembershipFilter{
		OrganizationID: orgID,
		Role:           rbac.RoleAdmin,
		Statuses:       []rbac.MembershipStatus{rbac.StatusActive},
	})
	if err != nil {
		return apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	if len(admins) <= 1 {
		return apperrors.Conflict(apperrors.CodeLastAdmin, "the organization must keep at least one admin")
	}
	return nil
}

func (s *Service) findInvitee(ctx context.Context, req InviteRequest) (*auth.User, error) {
	var (
		user *auth.User
		err  error
	)
	switch {
	case req.UserID != "":
		id, ok := ids.Normalize(req.UserID)
		if !ok {
			return nil, apperrors.InvalidID("user id")
		}
		user, err = s.users.GetUser(ctx, id)
	case strings.TrimSpace(req.Email) != "":
		user, err = s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	default:
		return nil, apperrors.Validation("userId or email is required")
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ResourceNotFound("user")
		}
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	return user, nil
}
