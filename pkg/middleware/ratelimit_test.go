package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Hour,
		BurstSize:         2,
	}, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := rl.Allow(ctx, "user:a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res, err := rl.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.ResetAfter, time.Duration(0))

	// Buckets are per key.
	res, err = rl.Allow(ctx, "user:b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, _ := rl.Allow(ctx, "k")
		require.True(t, res.Allowed)
	}
	res, _ := rl.Allow(ctx, "k")
	require.False(t, res.Allowed)

	assert.Eventually(t, func() bool {
		res, _ := rl.Allow(ctx, "k")
		return res.Allowed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig(), 2)
	for i := 0; i < 5; i++ {
		_, err := rl.Allow(context.Background(), fmt.Sprintf("ip:10.0.0.%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 50,
		WindowDuration:    time.Hour,
		BurstSize:         0,
	}, 0)

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := rl.Allow(context.Background(), "shared")
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) RecordRateLimited(limiter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[limiter]++
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("connection refused")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Hour,
		BurstSize:         0,
	}, 0)
	recorder := &countingRecorder{}
	handler := NewRateLimitMiddleware(rl, "local", recorder).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr, userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.RemoteAddr = remoteAddr
		if userID != "" {
			req = req.WithContext(contextkeys.WithUserID(req.Context(), userID))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do("192.0.2.1:5000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("192.0.2.1:5001", "").Code)

	rec = do("192.0.2.1:5002", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decodeError(t, rec).Code)
	assert.Equal(t, 1, recorder.counts["local"])

	// Same address, but an authenticated caller gets their own bucket.
	assert.Equal(t, http.StatusOK, do("192.0.2.1:5003", "5f1a2b3c4d5e6f7a8b9c0d1e").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	called := false
	handler := NewRateLimitMiddleware(failingLimiter{}, "distributed", nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", rateLimitKey(req))

	req = req.WithContext(contextkeys.WithUserID(req.Context(), "u1"))
	assert.Equal(t, "user:u1", rateLimitKey(req))
}
