package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Capability is a bit set of the access-relevant traits a resource has.
type Capability uint8

const (
	// CapOwnable resources have an owner who always has access.
	CapOwnable Capability = 1 << iota
	// CapOrgScoped resources may belong to an organization.
	CapOrgScoped
	// CapShareable resources carry a sharedWith list and a public flag.
	CapShareable
	// CapCollaborative resources carry a collaborator list.
	CapCollaborative
)

// Has reports whether every bit of other is set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// CollaboratorRole is the role a collaborator holds on one resource.
type CollaboratorRole string

const (
	CollaboratorViewer CollaboratorRole = "viewer"
	CollaboratorEditor CollaboratorRole = "editor"
	CollaboratorOwner  CollaboratorRole = "owner"
)

// Valid reports whether r is a known collaborator role.
func (r CollaboratorRole) Valid() bool {
	switch r {
	case CollaboratorViewer, CollaboratorEditor, CollaboratorOwner:
		return true
	}
	return false
}

// Grants reports whether the collaborator role covers p under strict gating.
func (r CollaboratorRole) Grants(p Permission) bool {
	switch r {
	case CollaboratorOwner:
		return true
	case CollaboratorEditor:
		return p == PermRead || p == PermWrite || p == PermShare
	case CollaboratorViewer:
		return p == PermRead
	}
	return false
}

// Collaborator is one entry of a resource's collaborator list.
type Collaborator struct {
	UserID string           `json:"userId"`
	Role   CollaboratorRole `json:"role"`
}

// CollaboratorMode selects how collaborator roles gate access.
type CollaboratorMode string

const (
	// CollaboratorStrict maps the collaborator role to the permissions it
	// covers; other requests fall through to the organization check.
	CollaboratorStrict CollaboratorMode = "strict"
	// CollaboratorLenient grants any listed collaborator every permission.
	CollaboratorLenient CollaboratorMode = "lenient"
)

// ParseCollaboratorMode parses a mode name. The empty string is strict.
func ParseCollaboratorMode(s string) (CollaboratorMode, error) {
	switch CollaboratorMode(s) {
	case "", CollaboratorStrict:
		return CollaboratorStrict, nil
	case CollaboratorLenient:
		return CollaboratorLenient, nil
	}
	return "", fmt.Errorf("invalid collaborator mode %q (must be strict or lenient)", s)
}

// AccessDescriptor is the access-relevant view of a resource. Fields whose
// capability is absent are ignored.
type AccessDescriptor struct {
	Type          string
	ID            string
	Capabilities  Capability
	Owner         string
	Organization  string
	SharedWith    []string
	Collaborators []Collaborator
	IsShared      bool
}

// Ref returns the descriptor's resource reference.
func (d AccessDescriptor) Ref() *ResourceRef {
	return &ResourceRef{Type: d.Type, ID: d.ID}
}

// Accessible is implemented by every resource subject to access control.
type Accessible interface {
	AccessDescriptor() AccessDescriptor
}

// Requirement is what a request needs. Roles gate by membership role and
// Permission by effective permission; when both are set both must pass. An
// empty requirement means read access.
type Requirement struct {
	Permission Permission
	Roles      []string
}

func (req Requirement) normalized() Requirement {
	if req.Permission == "" && len(req.Roles) == 0 {
		req.Permission = PermRead
	}
	return req
}

// collaboratorPermission is the permission a collaborator role must cover.
func (req Requirement) collaboratorPermission() Permission {
	if req.Permission == "" {
		return PermRead
	}
	return req.Permission
}

// AccessPath records which check granted access.
type AccessPath string

const (
	PathOwner        AccessPath = "owner"
	PathPublic       AccessPath = "public"
	PathShared       AccessPath = "shared"
	PathCollaborator AccessPath = "collaborator"
	PathOrganization AccessPath = "organization"
)

// Decision is a granted access decision. Membership is set only when the
// organization path matched.
type Decision struct {
	Path       AccessPath          `json:"path"`
	Target     Accessible          `json:"-"`
	Resource   AccessDescriptor    `json:"-"`
	Membership *ResolvedMembership `json:"membership,omitempty"`
}

// DecisionRecorder receives one call per evaluation. observability.Metrics
// implements it.
type DecisionRecorder interface {
	RecordAuthzDecision(resourceType, path, outcome, code string)
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithCollaboratorMode sets collaborator gating.
func WithCollaboratorMode(mode CollaboratorMode) EvaluatorOption {
	return func(e *Evaluator) { e.mode = mode }
}

// WithDecisionRecorder sets the metrics sink.
func WithDecisionRecorder(rec DecisionRecorder) EvaluatorOption {
	return func(e *Evaluator) { e.recorder = rec }
}

// Evaluator decides access to concrete resources.
type Evaluator struct {
	resolver  *Resolver
	overrides OverrideStore
	mode      CollaboratorMode
	recorder  DecisionRecorder
	tracer    trace.Tracer
}

// NewEvaluator creates a resource access evaluator. overrides may be nil.
func NewEvaluator(resolver *Resolver, overrides OverrideStore, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		resolver:  resolver,
		overrides: overrides,
		mode:      CollaboratorStrict,
		tracer:    otel.Tracer("github.com/platinummonkey/taskhub/pkg/rbac"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the collaborator gating mode.
func (e *Evaluator) Mode() CollaboratorMode {
	return e.mode
}

// Evaluate decides whether userID may act on res. Checks run in order:
// ownership, public flag, direct sharing, collaboration, organization
// membership. The first match grants; ownership and sharing always take
// precedence over organization policy.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, res Accessible, req Requirement) (*Decision, error) {
	desc := res.AccessDescriptor()
	req = req.normalized()

	ctx, span := e.tracer.Start(ctx, "rbac.Evaluate", trace.WithAttributes(
		attribute.String("resource.type", desc.Type),
		attribute.String("resource.id", desc.ID),
		attribute.String("authz.permission", string(req.Permission)),
	))
	defer span.End()

	decision, err := e.evaluate(ctx, userID, desc, req)
	if err != nil {
		code := apperrors.CodeOf(err)
		span.SetAttributes(attribute.String("authz.outcome", "denied"), attribute.String("authz.code", code))
		if apperrors.KindOf(err) == apperrors.KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "authorization error")
		}
		e.record(desc.Type, "", "denied", code)
		return nil, err
	}

	decision.Target = res
	span.SetAttributes(attribute.String("authz.outcome", "granted"), attribute.String("authz.path", string(decision.Path)))
	e.record(desc.Type, string(decision.Path), "granted", "")
	return decision, nil
}

func (e *Evaluator) evaluate(ctx context.Context, userID string, desc AccessDescriptor, req Requirement) (*Decision, error) {
	grant := func(path AccessPath) *Decision {
		return &Decision{Path: path, Resource: desc}
	}

	if desc.Capabilities.Has(CapOwnable) && desc.Owner != "" && desc.Owner == userID {
		return grant(PathOwner), nil
	}

	if desc.Capabilities.Has(CapShareable) {
		if desc.IsShared {
			return grant(PathPublic), nil
		}
		for _, id := range desc.SharedWith {
			if id == userID {
				return grant(PathShared), nil
			}
		}
	}

	if desc.Capabilities.Has(CapCollaborative) {
		for _, c := range desc.Collaborators {
			if c.UserID != userID {
				continue
			}
			if e.mode == CollaboratorLenient || c.Role.Grants(req.collaboratorPermission()) {
				return grant(PathCollaborator), nil
			}
			break
		}
	}

	if desc.Capabilities.Has(CapOrgScoped) && desc.Organization != "" {
		return e.evaluateOrganization(ctx, userID, desc, req)
	}

	return nil, apperrors.AccessDenied("")
}

func (e *Evaluator) evaluateOrganization(ctx context.Context, userID string, desc AccessDescriptor, req Requirement) (*Decision, error) {
	rm, err := e.resolver.ResolveFor(ctx, userID, desc.Organization, desc.Ref())
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			return nil, err
		}
		return nil, apperrors.NotAMember("not a member of the resource's organization")
	}

	if !rm.IsAdmin() && e.overrides != nil {
		o, err := e.overrides.GetResourceOverride(ctx, rm.OrganizationID, desc.Type, desc.ID)
		switch {
		case err == nil:
			rm.Effective.Permissions = rm.Effective.Permissions.Merge(o.Permissions)
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.Internal(apperrors.CodeAuthorizationError, err)
		}
	}

	if len(req.Roles) > 0 {
		if err := rm.CheckRole(req.Roles...); err != nil {
			return nil, err
		}
	}
	if req.Permission != "" {
		if err := rm.CheckPermission(req.Permission); err != nil {
			return nil, err
		}
	}
	return &Decision{Path: PathOrganization, Resource: desc, Membership: rm}, nil
}

func (e *Evaluator) record(resourceType, path, outcome, code string) {
	if e.recorder != nil {
		e.recorder.RecordAuthzDecision(resourceType, path, outcome, code)
	}
}
