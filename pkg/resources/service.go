package resources

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const (
	maxTitleLength   = 200
	maxContentLength = 100_000
	maxTags          = 20
)

// Service implements task, note and time entry operations. Methods that
// take a *Resource expect the caller to have been authorized for it already,
// normally by rbac.Middleware.RequireResourceAccess.
type Service struct {
	store     Store
	resolver  *rbac.Resolver
	evaluator *rbac.Evaluator
	audit     audit.Logger
	now       func() time.Time
}

// NewService creates a resource service
func NewService(store Store, resolver *rbac.Resolver, evaluator *rbac.Evaluator, auditLogger audit.Logger) *Service {
	return &Service{
		store:     store,
		resolver:  resolver,
		evaluator: evaluator,
		audit:     auditLogger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Loader returns an rbac.ResourceLoader for kind.
func (s *Service) Loader(kind Kind) rbac.ResourceLoader {
	return func(ctx context.Context, id string) (rbac.Accessible, error) {
		r, err := s.store.GetResource(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// Authorize loads a resource and evaluates req against it.
func (s *Service) Authorize(ctx context.Context, userID string, kind Kind, id string, req rbac.Requirement) (*Resource, *rbac.Decision, error) {
	normalized, ok := ids.Normalize(id)
	if !ok {
		return nil, nil, apperrors.InvalidID(string(kind) + " id")
	}
	r, err := s.get(ctx, kind, normalized)
	if err != nil {
		return nil, nil, err
	}
	decision, err := s.evaluator.Evaluate(ctx, userID, r, req)
	if err != nil {
		return nil, nil, err
	}
	return r, decision, nil
}

// Create creates a resource owned by userID. Creating inside an
// organization requires write there, and time entries also need track_time.
func (s *Service) Create(ctx context.Context, userID string, kind Kind, req CreateRequest) (*Resource, error) {
	if !kind.Valid() {
		return nil, apperrors.Validation("unknown resource kind")
	}

	now := s.now()
	r := &Resource{
		ID:        ids.New(),
		Kind:      kind,
		Owner:     userID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		Tags:      normalizeTags(req.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.Organization != "" {
		orgID, err := s.authorizeCreate(ctx, userID, kind, req)
		if err != nil {
			return nil, err
		}
		r.Organization = orgID
	}

	switch kind {
	case KindTask:
		r.Status = req.Status
		if r.Status == "" {
			r.Status = TaskTodo
		}
		r.DueDate = req.DueDate
		r.IsShared = req.IsShared
	case KindNote:
		r.IsShared = req.IsShared
	case KindTimeEntry:
		r.StartedAt = req.StartedAt
		r.EndedAt = req.EndedAt
		if req.TaskID != "" {
			task, _, err := s.Authorize(ctx, userID, KindTask, req.TaskID, rbac.Requirement{Permission: rbac.PermRead})
			if err != nil {
				return nil, err
			}
			r.TaskID = task.ID
		}
	}

	if err := validate(r); err != nil {
		return nil, err
	}
	r.Duration = duration(r)

	if err := s.store.CreateResource(ctx, r); err != nil {
		return nil, apperrors.Internal(apperrors.CodeResourceError, err)
	}
	return r, nil
}

// Update applies req to an authorized resource. Changing isShared also
// requires share on the resource.
func (s *Service) Update(ctx context.Context, actorID string, r *Resource, req UpdateRequest) (*Resource, error) {
	if req.IsShared != nil {
		if !r.Kind.Capabilities().Has(rbac.CapShareable) {
			return nil, apperrors.Validation(string(r.Kind) + " cannot be shared")
		}
		if *req.IsShared != r.IsShared {
			if err := s.authorizeShare(ctx, actorID, r); err != nil {
				return nil, err
			}
		}
	}

	if req.Title != nil {
		r.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		r.Content = *req.Content
	}
	if req.Tags != nil {
		r.Tags = normalizeTags(*req.Tags)
	}
	if req.IsShared != nil {
		r.IsShared = *req.IsShared
	}
	if r.Kind == KindTask {
		if req.Status != nil {
			r.Status = *req.Status
		}
		if req.DueDate != nil {
			r.DueDate = req.DueDate
		}
	}
	if r.Kind == KindTimeEntry {
		if req.StartedAt != nil {
			r.StartedAt = req.StartedAt
		}
		if req.EndedAt != nil {
			r.EndedAt = req.EndedAt
		}
	}

	if err := validate(r); err != nil {
		return nil, err
	}
	r.Duration = duration(r)
	r.UpdatedAt = s.now()

	if err := s.store.UpdateResource(ctx, r); err != nil {
		return nil, s.storeError(err, r.Kind)
	}
	return r, nil
}

// Delete deletes an authorized resource.
func (s *Service) Delete(ctx context.Context, r *Resource) error {
	if err := s.store.DeleteResource(ctx, r.Kind, r.ID); err != nil {
		return s.storeError(err, r.Kind)
	}
	return nil
}

// Share adds users to an authorized resource's sharedWith list. The owner
// and users already on the list are skipped.
func (s *Service) Share(ctx context.Context, actorID string, r *Resource, userIDs []string) (*Resource, error) {
	if !r.Kind.Capabilities().Has(rbac.CapShareable) {
		return nil, apperrors.Validation(string(r.Kind) + " cannot be shared")
	}
	if len(userIDs) == 0 {
		return nil, apperrors.Validation("userIds is required")
	}

	added := make([]string, 0, len(userIDs))
	for _, raw := range userIDs {
		id, ok := ids.Normalize(raw)
		if !ok {
			return nil, apperrors.InvalidID("user id")
		}
		if id == r.Owner || contains(r.SharedWith, id) {
			continue
		}
		r.SharedWith = append(r.SharedWith, id)
		added = append(added, id)
	}
	if len(added) == 0 {
		return r, nil
	}

	r.UpdatedAt = s.now()
	if err := s.store.UpdateResource(ctx, r); err != nil {
		return nil, s.storeError(err, r.Kind)
	}
	s.record(ctx, actorID, r, audit.EventTypeResourceShare, map[string]interface{}{"users": added})
	return r, nil
}

// Unshare removes a user from an authorized resource's sharedWith list.
func (s *Service) Unshare(ctx context.Context, actorID string, r *Resource, userID string) (*Resource, error) {
	if !r.Kind.Capabilities().Has(rbac.CapShareable) {
		return nil, apperrors.Validation(string(r.Kind) + " cannot be shared")
	}
	if !contains(r.SharedWith, userID) {
		return nil, apperrors.ResourceNotFound("share")
	}

	r.SharedWith = remove(r.SharedWith, userID)
	r.UpdatedAt = s.now()
	if err := s.store.UpdateResource(ctx, r); err != nil {
		return nil, s.storeError(err, r.Kind)
	}
	s.record(ctx, actorID, r, audit.EventTypeResourceUnshare, map[string]interface{}{"users": []string{userID}})
	return r, nil
}

// AddCollaborator adds a collaborator or changes an existing one's role.
func (s *Service) AddCollaborator(ctx context.Context, actorID string, r *Resource, c rbac.Collaborator) (*Resource, error) {
	if !r.Kind.Capabilities().Has(rbac.CapCollaborative) {
		return nil, apperrors.Validation(string(r.Kind) + " does not support collaborators")
	}
	id, ok := ids.Normalize(c.UserID)
	if !ok {
		return nil, apperrors.InvalidID("user id")
	}
	if !c.Role.Valid() {
		return nil, apperrors.Validation("role must be viewer, editor or owner")
	}
	if id == r.Owner {
		return nil, apperrors.Validation("the owner cannot be a collaborator")
	}

	c.UserID = id
	replaced := false
	for i := range r.Collaborators {
		if r.Collaborators[i].UserID == id {
			r.Collaborators[i].Role = c.Role
			replaced = true
		}
	}
	if !replaced {
		r.Collaborators = append(r.Collaborators, c)
	}

	r.UpdatedAt = s.now()
	if err := s.store.UpdateResource(ctx, r); err != nil {
		return nil, s.storeError(err, r.Kind)
	}
	s.record(ctx, actorID, r, audit.EventTypeResourceShare, map[string]interface{}{"collaborator": id, "role": string(c.Role)})
	return r, nil
}

// RemoveCollaborator removes a collaborator.
func (s *Service) RemoveCollaborator(ctx context.Context, actorID string, r *Resource, userID string) (*Resource, error) {
	if !r.Kind.Capabilities().Has(rbac.CapCollaborative) {
		return nil, apperrors.Validation(string(r.Kind) + " does not support collaborators")
	}

	kept := r.Collaborators[:0]
	for _, c := range r.Collaborators {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(r.Collaborators) {
		return nil, apperrors.ResourceNotFound("collaborator")
	}
	r.Collaborators = kept

	r.UpdatedAt = s.now()
	if err := s.store.UpdateResource(ctx, r); err != nil {
		return nil, s.storeError(err, r.Kind)
	}
	s.record(ctx, actorID, r, audit.EventTypeResourceUnshare, map[string]interface{}{"collaborator": userID})
	return r, nil
}

// ListOptions narrows List.
type ListOptions struct {
	Organization string
	Status       TaskStatus
	Limit        int
	Offset       int
}

// List returns the resources of kind the user owns, is shared on or
// collaborates on. With an organization it adds that organization's
// resources, which requires read there.
func (s *Service) List(ctx context.Context, userID string, kind Kind, opts ListOptions) ([]*Resource, error) {
	if !kind.Valid() {
		return nil, apperrors.Validation("unknown resource kind")
	}

	visible, err := s.store.ListResources(ctx, Filter{Kind: kind, VisibleTo: userID, Status: opts.Status})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeResourceError, err)
	}

	if opts.Organization != "" {
		rm, err := s.resolver.Resolve(ctx, userID, opts.Organization)
		if err != nil {
			return nil, err
		}
		if err := rm.CheckPermission(rbac.PermRead); err != nil {
			return nil, err
		}
		inOrg, err := s.store.ListResources(ctx, Filter{Kind: kind, Organization: rm.OrganizationID, Status: opts.Status})
		if err != nil {
			return nil, apperrors.Internal(apperrors.CodeResourceError, err)
		}
		visible = merge(visible, inOrg)
	}

	return paginate(visible, opts.Offset, opts.Limit), nil
}

func (s *Service) authorizeCreate(ctx context.Context, userID string, kind Kind, req CreateRequest) (string, error) {
	rm, err := s.resolver.Resolve(ctx, userID, req.Organization)
	if err != nil {
		return "", err
	}
	if err := rm.CheckPermission(rbac.PermWrite); err != nil {
		return "", err
	}
	// A public resource is readable by every user.
	if req.IsShared && kind.Capabilities().Has(rbac.CapShareable) {
		if err := rm.CheckPermission(rbac.PermShare); err != nil {
			return "", err
		}
	}
	if kind == KindTimeEntry {
		if err := rm.CheckPermission(rbac.PermTrackTime); err != nil {
			return "", err
		}
	}
	return rm.OrganizationID, nil
}

// authorizeShare evaluates share against r as if it were not public, so the
// public flag cannot vouch for its own change.
func (s *Service) authorizeShare(ctx context.Context, actorID string, r *Resource) error {
	private := *r
	private.IsShared = false
	_, err := s.evaluator.Evaluate(ctx, actorID, &private, rbac.Requirement{Permission: rbac.PermShare})
	return err
}

func (s *Service) get(ctx context.Context, kind Kind, id string) (*Resource, error) {
	r, err := s.store.GetResource(ctx, kind, id)
	if err != nil {
		return nil, s.storeError(err, kind)
	}
	return r, nil
}

func (s *Service) storeError(err error, kind Kind) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.ResourceNotFound(string(kind))
	}
	return apperrors.Internal(apperrors.CodeResourceError, err)
}

func (s *Service) record(ctx context.Context, actorID string, r *Resource, eventType audit.EventType, metadata map[string]interface{}) {
	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      eventType,
		UserID:         actorID,
		OrganizationID: r.Organization,
		ResourceType:   string(r.Kind),
		ResourceID:     r.ID,
		Metadata:       metadata,
	})
}

func validate(r *Resource) error {
	switch r.Kind {
	case KindTask, KindNote:
		if r.Title == "" {
			return apperrors.Validation("title is required")
		}
	case KindTimeEntry:
		if r.StartedAt == nil {
			return apperrors.Validation("startedAt is required")
		}
		if r.EndedAt != nil && r.EndedAt.Before(*r.StartedAt) {
			return apperrors.Validation("endedAt must not be before startedAt")
		}
	}
	if len(r.Title) > maxTitleLength {
		return apperrors.Validation("title must be at most 200 characters")
	}
	if len(r.Content) > maxContentLength {
		return apperrors.Validation("content is too long")
	}
	if len(r.Tags) > maxTags {
		return apperrors.Validation("at most 20 tags are allowed")
	}
	if r.Kind == KindTask && !r.Status.Valid() {
		return apperrors.Validation("status must be todo, in_progress or done")
	}
	return nil
}

func duration(r *Resource) int64 {
	if r.Kind != KindTimeEntry || r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return int64(r.EndedAt.Sub(*r.StartedAt) / time.Second)
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func merge(a, b []*Resource) []*Resource {
	seen := make(map[string]bool, len(a))
	out := make([]*Resource, 0, len(a)+len(b))
	for _, list := range [][]*Resource{a, b} {
		for _, r := range list {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func paginate(list []*Resource, offset, limit int) []*Resource {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []*Resource{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
