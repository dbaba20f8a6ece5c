package sso

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

const (
	stateCookie     = "oauth_state"
	stateCookiePath = "/api/auth/oauth"
	stateMaxAge     = 600
)

// ExternalLogin turns a provider profile into a session
type ExternalLogin interface {
	LoginExternal(ctx context.Context, identity auth.ExternalIdentity, ip string) (*auth.Session, error)
}

// Handlers provides the OAuth login endpoints
type Handlers struct {
	registry      *Registry
	logins        ExternalLogin
	secureCookies bool
}

// NewHandlers creates new OAuth handlers. secureCookies should be on
// whenever the API is served over TLS.
func NewHandlers(registry *Registry, logins ExternalLogin, secureCookies bool) *Handlers {
	return &Handlers{
		registry:      registry,
		logins:        logins,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers OAuth routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/oauth", h.listProviders).Methods("GET")
	router.HandleFunc("/auth/oauth/{provider}", h.initiateLogin).Methods("GET")
	router.HandleFunc("/auth/oauth/{provider}/callback", h.handleCallback).Methods("GET")
}

func (h *Handlers) provider(w http.ResponseWriter, r *http.Request) (Provider, bool) {
	name := mux.Vars(r)["provider"]
	p, ok := h.registry.Get(name)
	if !ok {
		httputil.WriteAppError(w, r, apperrors.ResourceNotFound(fmt.Sprintf("login provider %q", name)))
		return nil, false
	}
	return p, true
}

func (h *Handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, map[string][]string{"providers": h.registry.Names()})
}

// initiateLogin sets a state cookie and redirects to the provider
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		httputil.WriteAppError(w, r, apperrors.Internal(apperrors.CodeAuthError, err))
		return
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// handleCallback checks state, exchanges the code and returns a session
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		httputil.WriteBadRequest(w, r, "invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: stateCookiePath, MaxAge: -1})

	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		httputil.WriteAppError(w, r, apperrors.Unauthorized("login was not completed: "+providerErr))
		return
	}

	identity, err := p.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("provider", p.Name()).
			Warn("OAuth exchange failed")
		httputil.WriteAppError(w, r, apperrors.Unauthorized("login with "+p.Name()+" failed"))
		return
	}

	session, err := h.logins.LoginExternal(r.Context(), *identity, httputil.ClientIP(r))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, session)
}
