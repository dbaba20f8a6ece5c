package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/httputil"
)

// Handlers provides HTTP handlers for custom roles, permission templates and
// the caller's effective permissions.
type Handlers struct {
	roles     *RoleService
	templates *TemplateService
	mw        *Middleware
}

// NewHandlers creates new RBAC handlers
func NewHandlers(roles *RoleService, templates *TemplateService, mw *Middleware) *Handlers {
	return &Handlers{
		roles:     roles,
		templates: templates,
		mw:        mw,
	}
}

// RegisterRoutes registers all RBAC routes. The router must already run the
// auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	member := h.mw.RequireMembership
	manageRoles := h.mw.RequirePermission(PermManageRoles)
	admin := h.mw.RequireRole(RoleAdmin)

	// Effective permissions
	router.Handle("/organizations/{orgId}/me/permissions", member(http.HandlerFunc(h.GetMyPermissions))).Methods("GET")

	// Custom roles
	router.Handle("/organizations/{orgId}/roles", member(http.HandlerFunc(h.ListRoles))).Methods("GET")
	router.Handle("/organizations/{orgId}/roles", manageRoles(http.HandlerFunc(h.CreateRole))).Methods("POST")
	router.Handle("/organizations/{orgId}/roles/{roleId}", member(http.HandlerFunc(h.GetRole))).Methods("GET")
	router.Handle("/organizations/{orgId}/roles/{roleId}", manageRoles(http.HandlerFunc(h.UpdateRole))).Methods("PUT")
	router.Handle("/organizations/{orgId}/roles/{roleId}", manageRoles(http.HandlerFunc(h.DeleteRole))).Methods("DELETE")

	// Permission templates
	router.Handle("/organizations/{orgId}/permission-templates", member(http.HandlerFunc(h.ListTemplates))).Methods("GET")
	router.Handle("/organizations/{orgId}/permission-templates", admin(http.HandlerFunc(h.CreateTemplate))).Methods("POST")
	router.Handle("/organizations/{orgId}/permission-templates/{templateId}", member(http.HandlerFunc(h.GetTemplate))).Methods("GET")
	router.Handle("/organizations/{orgId}/permission-templates/{templateId}", admin(http.HandlerFunc(h.UpdateTemplate))).Methods("PUT")
	router.Handle("/organizations/{orgId}/permission-templates/{templateId}", admin(http.HandlerFunc(h.DeleteTemplate))).Methods("DELETE")
	router.Handle("/organizations/{orgId}/permission-templates/{templateId}/apply", admin(http.HandlerFunc(h.ApplyTemplate))).Methods("POST")
}

// PermissionsResponse describes the caller's standing in an organization.
type PermissionsResponse struct {
	OrganizationID string       `json:"organizationId"`
	Role           string       `json:"role"`
	IsAdmin        bool         `json:"isAdmin"`
	Permissions    []Permission `json:"permissions"`
	Membership     *Membership  `json:"membership"`
}

// GetMyPermissions returns the caller's effective permissions
func (h *Handlers) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	rm := GetMembership(r)
	httputil.WriteSuccess(w, PermissionsResponse{
		OrganizationID: rm.OrganizationID,
		Role:           rm.Role(),
		IsAdmin:        rm.IsAdmin(),
		Permissions:    rm.Effective.Permissions.Granted(),
		Membership:     rm.Membership,
	})
}

// ListRoles lists the organization's custom roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context(), GetMembership(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"builtIn": BuiltInRoles(),
		"custom":  roles,
	})
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.roles.CreateRole(r.Context(), GetMembership(r), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole returns one custom role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.GetRole(r.Context(), GetMembership(r), mux.Vars(r)["roleId"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole updates a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.roles.UpdateRole(r.Context(), GetMembership(r), mux.Vars(r)["roleId"], req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a custom role, reassigning its members to ?newRoleId=
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	newRoleID := httputil.ParseQueryString(r, "newRoleId", "")

	result, err := h.roles.DeleteRole(r.Context(), GetMembership(r), mux.Vars(r)["roleId"], newRoleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// ListTemplates lists the organization's permission templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.ListTemplates(r.Context(), GetMembership(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, templates)
}

// CreateTemplate creates a permission template
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	t, err := h.templates.CreateTemplate(r.Context(), GetMembership(r), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, t)
}

// GetTemplate returns one permission template
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.GetTemplate(r.Context(), GetMembership(r), mux.Vars(r)["templateId"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

// UpdateTemplate updates a permission template
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	t, err := h.templates.UpdateTemplate(r.Context(), GetMembership(r), mux.Vars(r)["templateId"], req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

// DeleteTemplate deletes a permission template. ?cascade=true removes its
// applications; ?replacementId= moves them to another template.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	cascade, err := httputil.ParseQueryBool(r, "cascade", false)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	opts := DeleteTemplateOptions{
		Cascade:       cascade,
		ReplacementID: httputil.ParseQueryString(r, "replacementId", ""),
	}

	if err := h.templates.DeleteTemplate(r.Context(), GetMembership(r), mux.Vars(r)["templateId"], opts); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ApplyTemplate applies a template to a resource or a custom role's resource
// override
func (h *Handlers) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req ApplyTemplateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.templates.ApplyTemplate(r.Context(), GetMembership(r), mux.Vars(r)["templateId"], req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}
