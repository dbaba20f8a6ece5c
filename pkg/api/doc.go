// Package api assembles the taskhub HTTP API.
//
// # Overview
//
// Server mounts every route under /api on a gorilla/mux router and wraps it
// with the shared middleware stack from httputil (recovery, request ids,
// request logging, CORS, timeouts, body limits) plus otelhttp tracing.
//
//	srv := api.NewServer(api.Config{CORSOrigins: origins}, api.Dependencies{
//		Auth:      authService,
//		RBAC:      rbacManager,
//		Orgs:      orgService,
//		Resources: resourceService,
//		SSO:       ssoRegistry,
//		Limiter:   limiter,
//		Metrics:   metrics,
//		Logger:    logger,
//	})
//	http.ListenAndServe(":8080", srv)
//
// # Route Groups
//
// Public routes issue sessions and are rate limited per client IP:
//
//	POST /api/auth/register
//	POST /api/auth/login
//	GET  /api/auth/oauth
//	GET  /api/auth/oauth/{provider}
//	GET  /api/auth/oauth/{provider}/callback
//
// Every other route requires "Authorization: Bearer <token>" and is rate
// limited per user:
//
//	GET  /api/auth/me
//	PUT  /api/auth/current-organization
//	     /api/organizations/...            (orgs)
//	     /api/organizations/{orgId}/roles  (rbac)
//	     /api/organizations/{orgId}/permission-templates
//	     /api/tasks, /api/notes, /api/time-entries (resources)
//
// # Errors
//
// Handlers report failures as *apperrors.Error; httputil.WriteAppError maps
// the kind to a status and writes {"error", "code", "requestId"}. Unknown
// routes answer 404 with RESOURCE_NOT_FOUND.
package api
