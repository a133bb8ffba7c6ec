package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRateLimiter_Allow(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRateLimiter(counter, 2, time.Minute)
	fixed := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	ctx := context.Background()
	assert.True(t, rl.Allow(ctx, "u1"))
	assert.True(t, rl.Allow(ctx, "u1"))
	assert.False(t, rl.Allow(ctx, "u1"))
	assert.True(t, rl.Allow(ctx, "u2"))

	assert.Equal(t, time.Minute, counter.expires[rl.key("u1")])

	// Next window starts fresh.
	fixed = fixed.Add(time.Minute)
	assert.True(t, rl.Allow(ctx, "u1"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("connection refused")
	rl := NewRateLimiter(counter, 1, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(context.Background(), "u1"))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(newFakeCounter(), 1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/chat/messages", nil)
	req = req.WithContext(context.WithValue(req.Context(), userIDKey, "u1"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"msg":"Too many requests"}`, rr.Body.String())
}
