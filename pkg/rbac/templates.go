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

// TemplateRequest is the input for creating a template. On update, nil
// fields are left unchanged.
type TemplateRequest struct {
	Name                    *string       `json:"name"`
	Description             *string       `json:"description"`
	Permissions             PermissionSet `json:"permissions"`
	ApplicableResourceTypes []string      `json:"applicableResourceTypes"`
	IsDefault               *bool         `json:"isDefault"`
}

// ApplyTemplateRequest targets a resource, optionally through a custom role.
// With RoleID set the template becomes that role's override for the resource;
// otherwise it becomes the resource-level override.
type ApplyTemplateRequest struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	RoleID       string `json:"roleId,omitempty"`
}

// ApplyTemplateResult reports where a template was written.
type ApplyTemplateResult struct {
	Template *PermissionTemplate `json:"template"`
	Role     *CustomRole         `json:"role,omitempty"`
	Override *ResourceOverride   `json:"override,omitempty"`
}

// DeleteTemplateOptions controls what happens to a template's applications.
type DeleteTemplateOptions struct {
	// Cascade removes every override created from the template.
	Cascade bool
	// ReplacementID rewrites every application to another template.
	ReplacementID string
}

// TemplateService manages permission templates. Every mutation is admin-only.
type TemplateService struct {
	templates TemplateStore
	roles     CustomRoleStore
	overrides OverrideStore
	audit     audit.Logger
	now       func() time.Time
}

// NewTemplateService creates a permission template service
func NewTemplateService(templates TemplateStore, roles CustomRoleStore, overrides OverrideStore, auditLogger audit.Logger) *TemplateService {
	return &TemplateService{
		templates: templates,
		roles:     roles,
		overrides: overrides,
		audit:     auditLogger,
		now:       time.Now,
	}
}

// SeedDefaults installs the default templates into a new organization.
func (s *TemplateService) SeedDefaults(ctx context.Context, orgID, createdBy string) error {
	now := s.now().UTC()
	for _, t := range DefaultTemplates() {
		t.ID = ids.New()
		t.OrganizationID = orgID
		t.CreatedBy = createdBy
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := s.templates.CreateTemplate(ctx, &t); err != nil && !errors.Is(err, apperrors.ErrDuplicate) {
			return apperrors.Internal(apperrors.CodeTemplateError, err)
		}
	}
	return nil
}

// CreateTemplate creates a template in the actor's organization.
func (s *TemplateService) CreateTemplate(ctx context.Context, actor *ResolvedMembership, req TemplateRequest) (*PermissionTemplate, error) {
	if err := actor.CheckRole(RoleAdmin); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &PermissionTemplate{
		ID:                      ids.New(),
		OrganizationID:          actor.OrganizationID,
		Permissions:             req.Permissions.Clone(),
		ApplicableResourceTypes: req.ApplicableResourceTypes,
		CreatedBy:               actor.Membership.UserID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.IsDefault != nil {
		t.IsDefault = *req.IsDefault
	}
	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, t.OrganizationID, t.Name, ""); err != nil {
		return nil, err
	}

	if err := s.templates.CreateTemplate(ctx, t); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.DuplicateName("template", t.Name)
		}
		return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	s.record(ctx, actor, audit.EventTypeTemplateCreate, t, nil)
	return t, nil
}

// GetTemplate returns one template. Any member may read templates.
func (s *TemplateService) GetTemplate(ctx context.Context, actor *ResolvedMembership, id string) (*PermissionTemplate, error) {
	return s.load(ctx, actor.OrganizationID, id)
}

// ListTemplates returns the organization's templates.
func (s *TemplateService) ListTemplates(ctx context.Context, actor *ResolvedMembership) ([]*PermissionTemplate, error) {
	out, err := s.templates.ListTemplates(ctx, actor.OrganizationID)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	return out, nil
}

// UpdateTemplate changes a template. Existing applications keep the
// permissions they were created with.
func (s *TemplateService) UpdateTemplate(ctx context.Context, actor *ResolvedMembership, id string, req TemplateRequest) (*PermissionTemplate, error) {
	if err := actor.CheckRole(RoleAdmin); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	t := *current
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Permissions != nil {
		t.Permissions = req.Permissions.Clone()
	}
	if req.ApplicableResourceTypes != nil {
		t.ApplicableResourceTypes = req.ApplicableResourceTypes
	}
	if req.IsDefault != nil {
		t.IsDefault = *req.IsDefault
	}
	if err := validateTemplate(&t); err != nil {
		return nil, err
	}
	if t.Name != current.Name {
		if err := s.ensureUniqueName(ctx, t.OrganizationID, t.Name, t.ID); err != nil {
			return nil, err
		}
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.templates.UpdateTemplate(ctx, &t); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.DuplicateName("template", t.Name)
		}
		return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	s.record(ctx, actor, audit.EventTypeTemplateUpdate, &t, nil)
	return &t, nil
}

// DeleteTemplate deletes a template. A template with applications needs
// either Cascade or a ReplacementID; both happen atomically with the delete.
func (s *TemplateService) DeleteTemplate(ctx context.Context, actor *ResolvedMembership, id string, opts DeleteTemplateOptions) error {
	if err := actor.CheckRole(RoleAdmin); err != nil {
		return err
	}
	t, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return err
	}

	var replacement *PermissionTemplate
	if opts.ReplacementID != "" {
		if opts.Cascade {
			return apperrors.Validation("cascade and replacement are mutually exclusive")
		}
		replacement, err = s.load(ctx, actor.OrganizationID, opts.ReplacementID)
		if err != nil {
			return err
		}
		if replacement.ID == t.ID {
			return apperrors.Validation("replacement must differ from the deleted template")
		}
	}

	inUse, err := s.templates.CountTemplateApplications(ctx, actor.OrganizationID, t.ID)
	if err != nil {
		return apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	if inUse > 0 && !opts.Cascade && replacement == nil {
		return apperrors.Conflict(apperrors.CodeTemplateInUse,
			fmt.Sprintf("template is applied %d times; pass cascade or a replacement", inUse))
	}

	if err := s.templates.DeleteTemplate(ctx, actor.OrganizationID, t.ID, replacement); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.TemplateNotFound(id)
		}
		return apperrors.Internal(apperrors.CodeTemplateError, err)
	}

	metadata := map[string]interface{}{"applications": inUse, "cascade": opts.Cascade}
	if replacement != nil {
		metadata["replacement_id"] = replacement.ID
	}
	s.record(ctx, actor, audit.EventTypeTemplateDelete, t, metadata)
	return nil
}

// ApplyTemplate copies the template's permissions onto the target. A
// resource type outside the template's applicability list fails with
// TEMPLATE_NOT_APPLICABLE before anything is written.
func (s *TemplateService) ApplyTemplate(ctx context.Context, actor *ResolvedMembership, id string, req ApplyTemplateRequest) (*ApplyTemplateResult, error) {
	if err := actor.CheckRole(RoleAdmin); err != nil {
		return nil, err
	}
	t, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if !t.AppliesTo(req.ResourceType) {
		return nil, apperrors.TemplateNotApplicable(req.ResourceType)
	}
	resourceID, ok := ids.Normalize(req.ResourceID)
	if !ok {
		return nil, apperrors.InvalidID("resource id")
	}

	result := &ApplyTemplateResult{Template: t}
	now := s.now().UTC()

	if req.RoleID != "" {
		role, err := s.applyToRole(ctx, actor.OrganizationID, req.RoleID, t, req.ResourceType, resourceID, now)
		if err != nil {
			return nil, err
		}
		result.Role = role
	} else {
		o := &ResourceOverride{
			ID:             ids.New(),
			OrganizationID: actor.OrganizationID,
			ResourceType:   req.ResourceType,
			ResourceID:     resourceID,
			Permissions:    t.Permissions.Clone(),
			TemplateID:     t.ID,
			CreatedBy:      actor.Membership.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.overrides.UpsertResourceOverride(ctx, o); err != nil {
			return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
		}
		result.Override = o
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventTypeTemplateApply,
		UserID:         actor.Membership.UserID,
		OrganizationID: actor.OrganizationID,
		ResourceType:   req.ResourceType,
		ResourceID:     resourceID,
		Metadata: map[string]interface{}{
			"template_id": t.ID,
			"role_id":     req.RoleID,
		},
	})
	return result, nil
}

// applyToRole replaces the role's override for the resource.
func (s *TemplateService) applyToRole(ctx context.Context, orgID, roleID string, t *PermissionTemplate, resourceType, resourceID string, now time.Time) (*CustomRole, error) {
	normalized, ok := ids.Normalize(roleID)
	if !ok {
		return nil, apperrors.InvalidID("role id")
	}
	role, err := s.roles.GetCustomRole(ctx, orgID, normalized)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.RoleNotFound(roleID)
		}
		return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	if role.Status == RoleStatusDeleted {
		return nil, apperrors.RoleNotFound(roleID)
	}

	target := &ResourceRef{Type: resourceType, ID: resourceID}
	overrides := make([]RoleOverride, 0, len(role.ResourceOverrides)+1)
	for _, o := range role.ResourceOverrides {
		if !o.Matches(target) {
			overrides = append(overrides, o)
		}
	}
	overrides = append(overrides, RoleOverride{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Permissions:  t.Permissions.Clone(),
		TemplateID:   t.ID,
	})

	updated := *role
	updated.ResourceOverrides = overrides
	updated.UpdatedAt = now
	if err := s.roles.UpdateCustomRole(ctx, &updated); err != nil {
		return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	return &updated, nil
}

func (s *TemplateService) load(ctx context.Context, orgID, id string) (*PermissionTemplate, error) {
	normalized, ok := ids.Normalize(id)
	if !ok {
		return nil, apperrors.InvalidID("template id")
	}
	t, err := s.templates.GetTemplate(ctx, orgID, normalized)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.TemplateNotFound(id)
		}
		return nil, apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	return t, nil
}

func (s *TemplateService) ensureUniqueName(ctx context.Context, orgID, name, exceptID string) error {
	existing, err := s.templates.ListTemplates(ctx, orgID)
	if err != nil {
		return apperrors.Internal(apperrors.CodeTemplateError, err)
	}
	for _, t := range existing {
		if t.ID != exceptID && strings.EqualFold(t.Name, name) {
			return apperrors.DuplicateName("template", name)
		}
	}
	return nil
}

func validateTemplate(t *PermissionTemplate) error {
	if t.Name == "" {
		return apperrors.Validation("template name is required")
	}
	if len(t.Permissions) == 0 {
		return apperrors.Validation("template permissions are required")
	}
	if err := t.Permissions.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	if len(t.ApplicableResourceTypes) == 0 {
		return apperrors.Validation("applicableResourceTypes must not be empty")
	}
	for _, rt := range t.ApplicableResourceTypes {
		if !IsKnownResourceType(rt) {
			return apperrors.Validation(fmt.Sprintf("unknown resource type %q", rt))
		}
	}
	return nil
}

func (s *TemplateService) record(ctx context.Context, actor *ResolvedMembership, eventType audit.EventType, t *PermissionTemplate, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["template_name"] = t.Name
	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      eventType,
		UserID:         actor.Membership.UserID,
		OrganizationID: actor.OrganizationID,
		ResourceType:   "permission_template",
		ResourceID:     t.ID,
		Metadata:       metadata,
	})
}
