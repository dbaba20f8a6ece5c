package orgs

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// Handlers handles organization-related HTTP requests
type Handlers struct {
	service *Service
	mw      *rbac.Middleware
}

// NewHandlers creates organization handlers
func NewHandlers(service *Service, mw *rbac.Middleware) *Handlers {
	return &Handlers{service: service, mw: mw}
}

// RegisterRoutes registers organization routes. The router must already run
// the auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	member := h.mw.RequireMembership
	admin := h.mw.RequireRole(rbac.RoleAdmin)
	invite := h.mw.RequirePermission(rbac.PermInvite)
	manageMembers := h.mw.RequirePermission(rbac.PermManageMembers)

	router.HandleFunc("/organizations", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/organizations", h.ListOrganizations).Methods("GET")
	router.Handle("/organizations/{orgId}", member(http.HandlerFunc(h.GetOrganization))).Methods("GET")
	router.Handle("/organizations/{orgId}", admin(http.HandlerFunc(h.UpdateOrganization))).Methods("PUT")
	router.Handle("/organizations/{orgId}", admin(http.HandlerFunc(h.DeleteOrganization))).Methods("DELETE")

	// Members
	router.Handle("/organizations/{orgId}/members", member(http.HandlerFunc(h.ListMembers))).Methods("GET")
	router.Handle("/organizations/{orgId}/members", invite(http.HandlerFunc(h.Invite))).Methods("POST")
	router.Handle("/organizations/{orgId}/members/{userId}/role", admin(http.HandlerFunc(h.UpdateMemberRole))).Methods("PUT")
	router.Handle("/organizations/{orgId}/members/{userId}/permissions", admin(http.HandlerFunc(h.UpdateMemberPermissions))).Methods("PUT")
	router.Handle("/organizations/{orgId}/members/{userId}", manageMembers(http.HandlerFunc(h.RemoveMember))).Methods("DELETE")
	router.Handle("/organizations/{orgId}/leave", member(http.HandlerFunc(h.Leave))).Methods("POST")

	// Invitations are accepted by the invitee, who is not a member yet
	router.HandleFunc("/organizations/{orgId}/invitations/accept", h.AcceptInvitation).Methods("POST")

	router.HandleFunc("/auth/current-organization", h.SetCurrentOrganization).Methods("PUT")
}

// CreateOrganization creates a new organization
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := h.service.CreateOrganization(r.Context(), userID, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// ListOrganizations lists the caller's organizations
func (h *Handlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	orgs, err := h.service.ListOrganizations(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, orgs)
}

// GetOrganization retrieves an organization
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.GetOrganization(r.Context(), rbac.GetMembership(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// UpdateOrganization updates an organization
func (h *Handlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := h.service.UpdateOrganization(r.Context(), rbac.GetMembership(r), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// DeleteOrganization deletes an organization
func (h *Handlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOrganization(r.Context(), rbac.GetMembership(r)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListMembers lists organization members. ?status= narrows the statuses.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	var statuses []rbac.MembershipStatus
	if s := httputil.ParseQueryString(r, "status", ""); s != "" {
		statuses = append(statuses, rbac.MembershipStatus(s))
	}

	members, err := h.service.ListMembers(r.Context(), rbac.GetMembership(r), statuses...)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// Invite invites a user to the organization
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := h.service.Invite(r.Context(), rbac.GetMembership(r), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, m)
}

// AcceptInvitation accepts the caller's pending invitation
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	m, err := h.service.AcceptInvitation(r.Context(), userID, mux.Vars(r)["orgId"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole changes a member's role
func (h *Handlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathIDOrError(w, r, "userId")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := h.service.UpdateMemberRole(r.Context(), rbac.GetMembership(r), userID, req.Role)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

type updatePermissionsRequest struct {
	Permissions rbac.PermissionSet `json:"permissions"`
}

// UpdateMemberPermissions replaces a member's permission overrides
func (h *Handlers) UpdateMemberPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathIDOrError(w, r, "userId")
	if !ok {
		return
	}
	var req updatePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := h.service.UpdateMemberPermissions(r.Context(), rbac.GetMembership(r), userID, req.Permissions)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// RemoveMember removes a member from the organization
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathIDOrError(w, r, "userId")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), rbac.GetMembership(r), userID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Leave ends the caller's membership
func (h *Handlers) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Leave(r.Context(), rbac.GetMembership(r)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type currentOrganizationRequest struct {
	OrganizationID string `json:"organizationId"`
}

// SetCurrentOrganization sets the caller's default organization
func (h *Handlers) SetCurrentOrganization(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req currentOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.SetCurrentOrganization(r.Context(), userID, req.OrganizationID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := contextkeys.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteAppError(w, r, apperrors.Unauthorized(""))
		return "", false
	}
	return userID, true
}
