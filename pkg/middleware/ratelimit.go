package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"golang.org/x/time/rate"
)

// CodeRateLimited is the error code of a 429 response
const CodeRateLimited = "RATE_LIMITED"

// DefaultLocalCacheSize bounds the number of buckets a local limiter keeps.
const DefaultLocalCacheSize = 10000

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// Result describes one rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RateLimiter is an in-process token bucket limiter. Idle buckets expire
// after two windows and the least recently used are evicted past the cache
// size.
type RateLimiter struct {
	config  *RateLimitConfig
	mu      sync.Mutex
	buckets *lru.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a new rate limiter. cacheSize <= 0 uses
// DefaultLocalCacheSize.
func NewRateLimiter(config *RateLimitConfig, cacheSize int) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultLocalCacheSize
	}
	return &RateLimiter{
		config:  config,
		buckets: lru.NewLRU[string, *rate.Limiter](cacheSize, nil, 2*config.WindowDuration),
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets.Get(key); ok {
		return b
	}
	every := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
	b := rate.NewLimiter(rate.Every(every), rl.capacity())
	rl.buckets.Add(key, b)
	return b
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(_ context.Context, key string) (Result, error) {
	b := rl.bucket(key)
	now := time.Now()
	allowed := b.AllowN(now, 1)

	tokens := b.TokensAt(now)
	res := Result{
		Allowed:   allowed,
		Limit:     rl.config.RequestsPerWindow,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if !allowed {
		// Time until one token is available.
		res.ResetAfter = time.Duration((1 - tokens) / float64(b.Limit()) * float64(time.Second))
	}
	return res, nil
}

// Len returns the number of tracked buckets
func (rl *RateLimiter) Len() int {
	return rl.buckets.Len()
}

// RateLimitRecorder counts rejected requests. *observability.Metrics
// satisfies it.
type RateLimitRecorder interface {
	RecordRateLimited(limiter string)
}

// RateLimitMiddleware provides HTTP rate limiting. It keys authenticated
// callers by user id and everyone else by client IP, so it must run after
// AuthMiddleware.
type RateLimitMiddleware struct {
	limiter  Limiter
	name     string
	recorder RateLimitRecorder
}

// NewRateLimitMiddleware creates a new rate limit middleware. name labels
// rejections in metrics; recorder may be nil.
func NewRateLimitMiddleware(limiter Limiter, name string, recorder RateLimitRecorder) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, name: name, recorder: recorder}
}

func rateLimitKey(r *http.Request) string {
	if userID := contextkeys.GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + httputil.ClientIP(r)
}

// Handler wraps an HTTP handler with rate limiting. Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := m.limiter.Allow(r.Context(), rateLimitKey(r))
		if err != nil {
			observability.FromContext(r.Context()).
				WithError(err).
				WithField("limiter", m.name).
				Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			if m.recorder != nil {
				m.recorder.RecordRateLimited(m.name)
			}
			retryAfter := int(math.Ceil(res.ResetAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteErrorCode(w, r, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
