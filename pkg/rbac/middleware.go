package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/ids"
)

// OrganizationHeader names the header that may carry the organization id.
const OrganizationHeader = "X-Organization-ID"

// ResourceLoader fetches the resource a request targets. It returns
// apperrors.ErrNotFound when the id does not exist.
type ResourceLoader func(ctx context.Context, id string) (Accessible, error)

// Middleware gates HTTP handlers on membership, role, permission and
// resource access. It expects the auth middleware to have stored the user id
// on the request context.
type Middleware struct {
	resolver  *Resolver
	evaluator *Evaluator
	audit     audit.Logger
}

// NewMiddleware creates authorization middleware
func NewMiddleware(resolver *Resolver, evaluator *Evaluator, auditLogger audit.Logger) *Middleware {
	return &Middleware{
		resolver:  resolver,
		evaluator: evaluator,
		audit:     auditLogger,
	}
}

// OrganizationID picks the organization a request targets: the {orgId} route
// variable, then the organization query parameter, then the
// X-Organization-ID header. Empty means "use the current organization".
func OrganizationID(r *http.Request) string {
	if id := mux.Vars(r)["orgId"]; id != "" {
		return id
	}
	if id := r.URL.Query().Get("organization"); id != "" {
		return id
	}
	return r.Header.Get(OrganizationHeader)
}

// RequireMembership resolves the caller's membership and stores it on the
// request context.
func (m *Middleware) RequireMembership(next http.Handler) http.Handler {
	return m.gate(nil, "", next)
}

// RequireRole admits admins and members holding one of roles.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.gate(roles, "", next)
	}
}

// RequirePermission admits admins and members whose effective permissions
// include p.
func (m *Middleware) RequirePermission(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.gate(nil, p, next)
	}
}

func (m *Middleware) gate(roles []string, p Permission, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := contextkeys.GetUserID(r.Context())
		if userID == "" {
			httputil.WriteAppError(w, r, apperrors.Unauthorized(""))
			return
		}

		rm, err := m.resolver.Resolve(r.Context(), userID, OrganizationID(r))
		if err == nil && len(roles) > 0 {
			err = rm.CheckRole(roles...)
		}
		if err == nil && p != "" {
			err = rm.CheckPermission(p)
		}
		if err != nil {
			m.deny(r, rm, "", "", err)
			httputil.WriteAppError(w, r, err)
			return
		}

		ctx := contextkeys.WithMembership(r.Context(), rm)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireResourceAccess loads the resource named by the {id} route variable
// and evaluates req against it. On success the decision, and the membership
// when the organization path matched, are stored on the request context.
func (m *Middleware) RequireResourceAccess(load ResourceLoader, req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := contextkeys.GetUserID(r.Context())
			if userID == "" {
				httputil.WriteAppError(w, r, apperrors.Unauthorized(""))
				return
			}

			id, ok := ids.Normalize(mux.Vars(r)["id"])
			if !ok {
				httputil.WriteAppError(w, r, apperrors.InvalidID("resource id"))
				return
			}

			res, err := load(r.Context(), id)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					err = apperrors.ResourceNotFound("resource")
				} else if _, typed := apperrors.As(err); !typed {
					err = apperrors.Internal(apperrors.CodeResourceError, err)
				}
				httputil.WriteAppError(w, r, err)
				return
			}

			decision, err := m.evaluator.Evaluate(r.Context(), userID, res, req)
			if err != nil {
				desc := res.AccessDescriptor()
				m.deny(r, nil, desc.Type, desc.ID, err)
				httputil.WriteAppError(w, r, err)
				return
			}

			ctx := contextkeys.WithDecision(r.Context(), decision)
			if decision.Membership != nil {
				ctx = contextkeys.WithMembership(ctx, decision.Membership)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deny writes an audit event for authorization failures. Validation and
// internal failures are not access decisions and are skipped.
func (m *Middleware) deny(r *http.Request, rm *ResolvedMembership, resourceType, resourceID string, err error) {
	if apperrors.KindOf(err) != apperrors.KindAuthorization {
		return
	}
	event := &audit.Event{
		EventType:    audit.EventTypeAuthzAccessDenied,
		Status:       audit.EventStatusDenied,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    httputil.ClientIP(r),
		Code:         apperrors.CodeOf(err),
		Message:      err.Error(),
		Metadata:     map[string]interface{}{"method": r.Method, "path": r.URL.Path},
	}
	if rm != nil {
		event.OrganizationID = rm.OrganizationID
	} else if orgID := OrganizationID(r); orgID != "" {
		event.OrganizationID = orgID
	}
	audit.Record(r.Context(), m.audit, event)
}

// GetMembership returns the membership stored by the middleware, or nil.
func GetMembership(r *http.Request) *ResolvedMembership {
	return MembershipFromContext(r.Context())
}

// MembershipFromContext returns the membership stored on ctx, or nil.
func MembershipFromContext(ctx context.Context) *ResolvedMembership {
	rm, _ := ctx.Value(contextkeys.MembershipKey).(*ResolvedMembership)
	return rm
}

// GetDecision returns the access decision stored by RequireResourceAccess,
// or nil.
func GetDecision(r *http.Request) *Decision {
	d, _ := r.Context().Value(contextkeys.DecisionKey).(*Decision)
	return d
}
