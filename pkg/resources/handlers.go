package resources

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// Handlers serves tasks, notes, time entries, the dashboard and reports.
type Handlers struct {
	service *Service
	mw      *rbac.Middleware
}

// NewHandlers creates resource handlers
func NewHandlers(service *Service, mw *rbac.Middleware) *Handlers {
	return &Handlers{service: service, mw: mw}
}

// RoutePaths maps URL path segments to resource kinds.
var RoutePaths = map[string]Kind{
	"tasks":        KindTask,
	"notes":        KindNote,
	"time-entries": KindTimeEntry,
}

// RegisterRoutes registers resource routes. The router must already run the
// auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	for path, kind := range RoutePaths {
		h.registerKind(router, "/"+path, kind)
	}

	router.Handle("/organizations/{orgId}/dashboard",
		h.mw.RequirePermission(rbac.PermRead)(http.HandlerFunc(h.Dashboard))).Methods("GET")
	router.Handle("/organizations/{orgId}/reports/time.csv",
		h.mw.RequirePermission(rbac.PermViewReports)(http.HandlerFunc(h.TimeReport))).Methods("GET")
}

func (h *Handlers) registerKind(router *mux.Router, base string, kind Kind) {
	access := func(p rbac.Permission, fn http.HandlerFunc) http.Handler {
		return h.mw.RequireResourceAccess(h.service.Loader(kind), rbac.Requirement{Permission: p})(fn)
	}

	router.HandleFunc(base, h.create(kind)).Methods("POST")
	router.HandleFunc(base, h.list(kind)).Methods("GET")
	router.Handle(base+"/{id}", access(rbac.PermRead, h.get)).Methods("GET")
	router.Handle(base+"/{id}", access(rbac.PermWrite, h.update)).Methods("PUT")
	router.Handle(base+"/{id}", access(rbac.PermDelete, h.delete)).Methods("DELETE")

	caps := kind.Capabilities()
	if caps.Has(rbac.CapShareable) {
		router.Handle(base+"/{id}/share", access(rbac.PermShare, h.share)).Methods("POST")
		router.Handle(base+"/{id}/share/{userId}", access(rbac.PermShare, h.unshare)).Methods("DELETE")
	}
	if caps.Has(rbac.CapCollaborative) {
		router.Handle(base+"/{id}/collaborators", access(rbac.PermShare, h.addCollaborator)).Methods("POST")
		router.Handle(base+"/{id}/collaborators/{userId}", access(rbac.PermShare, h.removeCollaborator)).Methods("DELETE")
	}
}

// accessResponse wraps a resource with the path that granted access.
type accessResponse struct {
	*Resource
	Access rbac.AccessPath `json:"access"`
}

func (h *Handlers) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := contextkeys.GetUserID(r.Context())
		if userID == "" {
			httputil.WriteAppError(w, r, apperrors.Unauthorized(""))
			return
		}
		var req CreateRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if req.Organization == "" {
			req.Organization = r.Header.Get(rbac.OrganizationHeader)
		}

		res, err := h.service.Create(r.Context(), userID, kind, req)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		httputil.WriteCreated(w, res)
	}
}

func (h *Handlers) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := contextkeys.GetUserID(r.Context())
		if userID == "" {
			httputil.WriteAppError(w, r, apperrors.Unauthorized(""))
			return
		}
		limit, err := httputil.ParseQueryInt(r, "limit", 50)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		offset, err := httputil.ParseQueryInt(r, "offset", 0)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		if limit < 1 || limit > 200 {
			httputil.WriteBadRequest(w, r, "limit must be between 1 and 200")
			return
		}

		list, err := h.service.List(r.Context(), userID, kind, ListOptions{
			Organization: rbac.OrganizationID(r),
			Status:       TaskStatus(httputil.ParseQueryString(r, "status", "")),
			Limit:        limit,
			Offset:       offset,
		})
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, list)
	}
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	d := rbac.GetDecision(r)
	httputil.WriteSuccess(w, accessResponse{Resource: target(r), Access: d.Path})
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	res, err := h.service.Update(r.Context(), contextkeys.GetUserID(r.Context()), target(r), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), target(r)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) share(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	res, err := h.service.Share(r.Context(), contextkeys.GetUserID(r.Context()), target(r), req.UserIDs)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

func (h *Handlers) unshare(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathIDOrError(w, r, "userId")
	if !ok {
		return
	}

	res, err := h.service.Unshare(r.Context(), contextkeys.GetUserID(r.Context()), target(r), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

func (h *Handlers) addCollaborator(w http.ResponseWriter, r *http.Request) {
	var req rbac.Collaborator
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	res, err := h.service.AddCollaborator(r.Context(), contextkeys.GetUserID(r.Context()), target(r), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

func (h *Handlers) removeCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathIDOrError(w, r, "userId")
	if !ok {
		return
	}

	res, err := h.service.RemoveCollaborator(r.Context(), contextkeys.GetUserID(r.Context()), target(r), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// Dashboard returns the organization dashboard
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context(), rbac.GetMembership(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

// TimeReport returns the organization's time entries as CSV. ?from= and
// ?to= bound the report.
func (h *Handlers) TimeReport(w http.ResponseWriter, r *http.Request) {
	from, err := httputil.ParseQueryTime(r, "from")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	to, err := httputil.ParseQueryTime(r, "to")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	// Buffered so a failure part way through still gets a JSON error.
	var buf bytes.Buffer
	if err := h.service.WriteTimeReport(r.Context(), rbac.GetMembership(r), from, to, &buf); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="time-report.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// target returns the resource authorized by RequireResourceAccess.
func target(r *http.Request) *Resource {
	res, _ := rbac.GetDecision(r).Target.(*Resource)
	return res
}
