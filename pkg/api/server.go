package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/middleware"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
	"github.com/platinummonkey/taskhub/pkg/sso"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PathPrefix is where every API route is mounted.
const PathPrefix = "/api"

// Config holds the HTTP settings of the API server
type Config struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	SecureCookies  bool
}

// DefaultConfig returns the settings used when a field is left zero
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

// Dependencies are the services the API exposes. SSO, Limiter and Metrics
// are optional.
type Dependencies struct {
	Auth      *auth.Service
	RBAC      *rbac.Manager
	Orgs      *orgs.Service
	Resources *resources.Service
	SSO       *sso.Registry

	Limiter     middleware.Limiter
	LimiterName string
	Metrics     *observability.Metrics
	Logger      *observability.Logger
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(cfg Config, deps Dependencies) *Server {
	defaults := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(cfg, deps)

	s.handler = httputil.Chain(
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.CORSMiddleware(cfg.CORSOrigins),
		httputil.TimeoutMiddleware(cfg.RequestTimeout),
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(s.router)
	s.handler = otelhttp.NewHandler(s.handler, "taskhub.api")
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	api := s.router.PathPrefix(PathPrefix).Subrouter()

	// Login endpoints, limited per client IP
	public := api.NewRoute().Subrouter()
	// Everything else needs a bearer token and is limited per user
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthMiddleware(deps.Auth, false).Handler)

	if deps.Limiter != nil {
		name := deps.LimiterName
		if name == "" {
			name = "local"
		}
		var recorder middleware.RateLimitRecorder
		if deps.Metrics != nil {
			recorder = deps.Metrics
		}
		limit := middleware.NewRateLimitMiddleware(deps.Limiter, name, recorder).Handler
		public.Use(limit)
		protected.Use(limit)
	}

	authHandlers := NewAuthHandlers(deps.Auth)
	authHandlers.RegisterPublicRoutes(public)
	authHandlers.RegisterRoutes(protected)
	if deps.SSO != nil {
		sso.NewHandlers(deps.SSO, deps.Auth, cfg.SecureCookies).RegisterRoutes(public)
	}

	mw := deps.RBAC.GetMiddleware()
	deps.RBAC.RegisterRoutes(protected)
	orgs.NewHandlers(deps.Orgs, mw).RegisterRoutes(protected)
	resources.NewHandlers(deps.Resources, mw).RegisterRoutes(protected)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table, mainly for tests and route listings
func (s *Server) Router() *mux.Router {
	return s.router
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, r, http.StatusNotFound, apperrors.CodeResourceNotFound, "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}
