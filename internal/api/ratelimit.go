package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter is a per-user fixed-window limiter backed by Redis, so that limits hold across replicas.
type RateLimiter struct {
	client redisCounter
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client redisCounter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (rl *RateLimiter) key(userID string) string {
	bucket := rl.now().UnixNano() / int64(rl.window)
	return "ratelimit:messages:" + userID + ":" + strconv.FormatInt(bucket, 10)
}

// Allow reports whether the user is still within the limit. Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, userID string) bool {
	key := rl.key(userID)
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to set rate limit expiry")
		}
	}
	return count <= int64(rl.limit)
}

// Middleware must run after JWTAuthMiddleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.Context(), userIDFrom(r.Context())) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeMsg(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
