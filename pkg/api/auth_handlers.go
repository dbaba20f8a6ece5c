package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
)

// AuthHandlers handles password registration, login and the current user
type AuthHandlers struct {
	service *auth.Service
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(service *auth.Service) *AuthHandlers {
	return &AuthHandlers{service: service}
}

// RegisterPublicRoutes registers the routes that issue sessions
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods("POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
}

// RegisterRoutes registers the authenticated routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.me).Methods("GET")
}

// register handles POST /auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req, httputil.ClientIP(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req, httputil.ClientIP(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

// me handles GET /auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteAppError(w, r, apperrors.Unauthorized(""))
		return
	}

	// Reload so a current-organization change made with this token shows up
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}
