package memory

import (
	"context"
	"sort"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
)

func copyResource(r *resources.Resource) *resources.Resource {
	c := *r
	c.Tags = copyStrings(r.Tags)
	c.SharedWith = copyStrings(r.SharedWith)
	if r.Collaborators != nil {
		c.Collaborators = append([]rbac.Collaborator(nil), r.Collaborators...)
	}
	c.DueDate = copyTime(r.DueDate)
	c.StartedAt = copyTime(r.StartedAt)
	c.EndedAt = copyTime(r.EndedAt)
	return &c
}

// CreateResource inserts a resource
func (s *Store) CreateResource(_ context.Context, r *resources.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[r.ID]; ok {
		return apperrors.ErrDuplicate
	}
	s.resources[r.ID] = copyResource(r)
	return nil
}

// GetResource retrieves a resource of the given kind
func (s *Store) GetResource(_ context.Context, kind resources.Kind, id string) (*resources.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok || r.Kind != kind {
		return nil, apperrors.ErrNotFound
	}
	return copyResource(r), nil
}

// UpdateResource replaces a resource
func (s *Store) UpdateResource(_ context.Context, r *resources.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.resources[r.ID]
	if !ok || existing.Kind != r.Kind {
		return apperrors.ErrNotFound
	}
	s.resources[r.ID] = copyResource(r)
	return nil
}

// DeleteResource deletes a resource and its resource override
func (s *Store) DeleteResource(_ context.Context, kind resources.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[id]
	if !ok || r.Kind != kind {
		return apperrors.ErrNotFound
	}
	delete(s.resources, id)
	delete(s.overrides, overrideKey(r.Organization, string(kind), id))
	return nil
}

// ListResources lists resources matching filter, newest first
func (s *Store) ListResources(_ context.Context, filter resources.Filter) ([]*resources.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*resources.Resource{}
	for _, r := range s.resources {
		if resourceMatches(r, filter) {
			out = append(out, copyResource(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*resources.Resource{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func resourceMatches(r *resources.Resource, f resources.Filter) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Organization != "" && r.Organization != f.Organization {
		return false
	}
	if f.Owner != "" && r.Owner != f.Owner {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.VisibleTo != "" && !visibleTo(r, f.VisibleTo) {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		at := r.CreatedAt
		if r.StartedAt != nil {
			at = *r.StartedAt
		}
		if !f.From.IsZero() && at.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && !at.Before(f.To) {
			return false
		}
	}
	return true
}

func visibleTo(r *resources.Resource, userID string) bool {
	if r.Owner == userID {
		return true
	}
	for _, id := range r.SharedWith {
		if id == userID {
			return true
		}
	}
	for _, c := range r.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
