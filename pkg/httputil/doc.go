// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Every handler reports failures through WriteAppError, the one place where
// *apperrors.Error kinds become status codes. The body is always:
//
//	{"error": "not a member of this organization", "code": "NOT_ORGANIZATION_MEMBER", "requestId": "..."}
//
// # Request Parsing
//
//	var req CreateTaskRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.PathIDOrError(w, r, "id") // 400 INVALID_ID on malformed ids
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and rate limiting
//   - pkg/rbac: Membership and resource access middleware
package httputil
