package orgs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const maxNameLength = 100

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Service manages organizations and their members.
type Service struct {
	orgs          Store
	memberships   rbac.MembershipStore
	users         UserStore
	catalog       *rbac.RoleCatalog
	templates     *rbac.TemplateService
	audit         audit.Logger
	invitationTTL time.Duration
	now           func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithInvitationTTL overrides DefaultInvitationTTL.
func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.invitationTTL = ttl
		}
	}
}

// NewService creates an organization service. templates may be nil, in which
// case new organizations start without permission templates.
func NewService(orgs Store, memberships rbac.MembershipStore, users UserStore, catalog *rbac.RoleCatalog, templates *rbac.TemplateService, auditLogger audit.Logger, opts ...Option) *Service {
	s := &Service{
		orgs:          orgs,
		memberships:   memberships,
		users:         users,
		catalog:       catalog,
		templates:     templates,
		audit:         auditLogger,
		invitationTTL: DefaultInvitationTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrganization creates an organization with the caller as its admin.
// The configured role catalog is copied onto the organization and the
// default permission templates are seeded.
func (s *Service) CreateOrganization(ctx context.Context, userID string, req CreateOrganizationRequest) (*Organization, error) {
	name := strings.TrimSpace(req.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	now := s.now()
	org := &Organization{
		ID:           ids.New(),
		Name:         name,
		Slug:         generateSlug(name),
		Description:  strings.TrimSpace(req.Description),
		CreatedBy:    userID,
		Status:       OrgStatusActive,
		RoleDefaults: s.catalog.Snapshot(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	owner := &rbac.Membership{
		ID:             ids.New(),
		UserID:         userID,
		OrganizationID: org.ID,
		Role:           rbac.RoleAdmin,
		Status:         rbac.StatusActive,
		JoinedAt:       &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orgs.CreateOrganization(ctx, org, owner); err != nil {
		return nil, apperrors.Internal(apperrors.CodeInternal, err)
	}

	if s.templates != nil {
		if err := s.templates.SeedDefaults(ctx, org.ID, userID); err != nil {
			return nil, err
		}
	}

	if err := s.adoptIfUnset(ctx, userID, org.ID); err != nil {
		return nil, err
	}

	s.record(ctx, userID, org.ID, audit.EventTypeOrgCreate, "", map[string]interface{}{"name": org.Name})
	return org, nil
}

// ListOrganizations lists the organizations the user is an active member of.
func (s *Service) ListOrganizations(ctx context.Context, userID string) ([]*Organization, error) {
	orgs, err := s.orgs.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeInternal, err)
	}
	return orgs, nil
}

// GetOrganization returns the actor's organization.
func (s *Service) GetOrganization(ctx context.Context, actor *rbac.ResolvedMembership) (*Organization, error) {
	return s.load(ctx, actor.OrganizationID)
}

// UpdateOrganization changes the name or description. Admin only.
func (s *Service) UpdateOrganization(ctx context.Context, actor *rbac.ResolvedMembership, req UpdateOrganizationRequest) (*Organization, error) {
	if err := actor.CheckRole(rbac.RoleAdmin); err != nil {
		return nil, err
	}
	org, err := s.load(ctx, actor.OrganizationID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		org.Name = name
		org.Slug = generateSlug(name)
	}
	if req.Description != nil {
		org.Description = strings.TrimSpace(*req.Description)
	}
	org.UpdatedAt = s.now()

	if err := s.orgs.UpdateOrganization(ctx, org); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.OrganizationNotFound(org.ID)
		}
		return nil, apperrors.Internal(apperrors.CodeInternal, err)
	}

	s.record(ctx, actor.Membership.UserID, org.ID, audit.EventTypeOrgUpdate, "", nil)
	return org, nil
}

// DeleteOrganization soft-deletes the organization and ends every
// membership. Admin only.
func (s *Service) DeleteOrganization(ctx context.Context, actor *rbac.ResolvedMembership) error {
	if err := actor.CheckRole(rbac.RoleAdmin); err != nil {
		return err
	}
	if err := s.orgs.DeleteOrganization(ctx, actor.OrganizationID, s.now()); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.OrganizationNotFound(actor.OrganizationID)
		}
		return apperrors.Internal(apperrors.CodeInternal, err)
	}

	s.record(ctx, actor.Membership.UserID, actor.OrganizationID, audit.EventTypeOrgDelete, "", nil)
	return nil
}

// SetCurrentOrganization records the organization used when a request names
// none. The user must be an active member.
func (s *Service) SetCurrentOrganization(ctx context.Context, userID, organizationID string) (*auth.User, error) {
	orgID, ok := ids.Normalize(organizationID)
	if !ok {
		return nil, apperrors.InvalidID("organization id")
	}
	active, err := s.memberships.FindActiveMemberships(ctx, userID, orgID)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeMembershipError, err)
	}
	if len(active) == 0 {
		return nil, apperrors.NotAMember("")
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UserNotFound()
		}
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}
	user.CurrentOrganization = orgID
	user.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}
	return user, nil
}

func (s *Service) load(ctx context.Context, id string) (*Organization, error) {
	org, err := s.orgs.GetOrganization(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.OrganizationNotFound(id)
		}
		return nil, apperrors.Internal(apperrors.CodeInternal, err)
	}
	return org, nil
}

// adoptIfUnset makes orgID the user's current organization when they have
// none or the recorded one is malformed.
func (s *Service) adoptIfUnset(ctx context.Context, userID, orgID string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.UserNotFound()
		}
		return apperrors.Internal(apperrors.CodeAuthError, err)
	}
	if ids.Valid(user.CurrentOrganization) {
		return nil
	}
	user.CurrentOrganization = orgID
	user.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return apperrors.Internal(apperrors.CodeAuthError, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID, orgID string, eventType audit.EventType, targetUser string, metadata map[string]interface{}) {
	event := &audit.Event{
		EventType:      eventType,
		UserID:         userID,
		OrganizationID: orgID,
		ResourceType:   "organization",
		ResourceID:     orgID,
		Metadata:       metadata,
	}
	if targetUser != "" {
		event.ResourceType = "user"
		event.ResourceID = targetUser
	}
	audit.Record(ctx, s.audit, event)
}

func validateName(name string) error {
	if name == "" {
		return apperrors.Validation("name is required")
	}
	if len(name) > maxNameLength {
		return apperrors.Validation("name must be at most 100 characters")
	}
	return nil
}

// generateSlug derives a URL-friendly slug from a name
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
