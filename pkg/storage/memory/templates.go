package memory

import (
	"context"
	"sort"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

func copyTemplate(t *rbac.PermissionTemplate) *rbac.PermissionTemplate {
	c := *t
	c.Permissions = t.Permissions.Clone()
	c.ApplicableResourceTypes = copyStrings(t.ApplicableResourceTypes)
	return &c
}

func copyOverride(o *rbac.ResourceOverride) *rbac.ResourceOverride {
	c := *o
	c.Permissions = o.Permissions.Clone()
	return &c
}

func overrideKey(organizationID, resourceType, resourceID string) string {
	return organizationID + "/" + resourceType + "/" + resourceID
}

// CreateTemplate inserts a permission template
func (s *Store) CreateTemplate(_ context.Context, t *rbac.PermissionTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[t.ID]; ok {
		return apperrors.ErrDuplicate
	}
	s.templates[t.ID] = copyTemplate(t)
	return nil
}

// GetTemplate retrieves a permission template
func (s *Store) GetTemplate(_ context.Context, organizationID, id string) (*rbac.PermissionTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok || t.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return copyTemplate(t), nil
}

// ListTemplates lists an organization's permission templates
func (s *Store) ListTemplates(_ context.Context, organizationID string) ([]*rbac.PermissionTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*rbac.PermissionTemplate
	for _, t := range s.templates {
		if t.OrganizationID == organizationID {
			out = append(out, copyTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateTemplate replaces a permission template
func (s *Store) UpdateTemplate(_ context.Context, t *rbac.PermissionTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[t.ID]
	if !ok || existing.OrganizationID != t.OrganizationID {
		return apperrors.ErrNotFound
	}
	s.templates[t.ID] = copyTemplate(t)
	return nil
}

// CountTemplateApplications counts overrides created from a template
func (s *Store) CountTemplateApplications(_ context.Context, organizationID, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, o := range s.overrides {
		if o.OrganizationID == organizationID && o.TemplateID == id {
			n++
		}
	}
	for _, r := range s.roles {
		if r.OrganizationID != organizationID || r.Status == rbac.RoleStatusDeleted {
			continue
		}
		for _, o := range r.ResourceOverrides {
			if o.TemplateID == id {
				n++
			}
		}
	}
	return n, nil
}

// DeleteTemplate removes or rewrites the template's applications and deletes
// it under one lock
func (s *Store) DeleteTemplate(_ context.Context, organizationID, id string, replacement *rbac.PermissionTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok || t.OrganizationID != organizationID {
		return apperrors.ErrNotFound
	}

	for key, o := range s.overrides {
		if o.OrganizationID != organizationID || o.TemplateID != id {
			continue
		}
		if replacement == nil {
			delete(s.overrides, key)
			continue
		}
		o.TemplateID = replacement.ID
		o.Permissions = replacement.Permissions.Clone()
	}

	for _, r := range s.roles {
		if r.OrganizationID != organizationID {
			continue
		}
		kept := r.ResourceOverrides[:0]
		for _, o := range r.ResourceOverrides {
			if o.TemplateID != id {
				kept = append(kept, o)
				continue
			}
			if replacement != nil {
				o.TemplateID = replacement.ID
				o.Permissions = replacement.Permissions.Clone()
				kept = append(kept, o)
			}
		}
		r.ResourceOverrides = kept
	}

	delete(s.templates, id)
	return nil
}

// UpsertResourceOverride replaces any override for the same resource
func (s *Store) UpsertResourceOverride(_ context.Context, o *rbac.ResourceOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := overrideKey(o.OrganizationID, o.ResourceType, o.ResourceID)
	if existing, ok := s.overrides[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	}
	s.overrides[key] = copyOverride(o)
	return nil
}

// GetResourceOverride retrieves the override for a resource
func (s *Store) GetResourceOverride(_ context.Context, organizationID, resourceType, resourceID string) (*rbac.ResourceOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[overrideKey(organizationID, resourceType, resourceID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyOverride(o), nil
}
