// Package middleware provides HTTP middleware for authentication and rate
// limiting.
//
// # Authentication
//
//	authMW := middleware.NewAuthMiddleware(authService, false)
//	api.Use(authMW.Handler)
//
// A valid bearer token stores the *auth.AuthContext and the user id on the
// request context; rbac.Middleware reads the user id from there.
//
// # Rate Limiting
//
// RateLimiter keeps golang.org/x/time/rate buckets in an expiring LRU and
// works per process. DistributedRateLimiter shares a fixed window through
// Redis. Both satisfy Limiter:
//
//	var limiter middleware.Limiter = middleware.NewRateLimiter(cfg, 10000)
//	if redisClient != nil {
//		limiter = middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//	}
//	api.Use(middleware.NewRateLimitMiddleware(limiter, "api", metrics).Handler)
//
// Callers are keyed by user id when authenticated and by client IP
// otherwise. Redis failures let the request through.
package middleware
