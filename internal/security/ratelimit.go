package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window counter: at most Limit requests per key
// per Window. Windows are aligned to wall-clock multiples of Window so all
// instances sharing the redis agree on boundaries.
type RedisRateLimiter struct {
	Client *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
}

// Allow reports whether one more request under key fits in the current
// window. A nil client or non-positive limit disables limiting.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.Client == nil || l.Limit <= 0 || l.Window <= 0 {
		return true, nil
	}

	window := time.Now().UnixNano() / int64(l.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.Prefix, key, window)

	pipe := l.Client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() <= int64(l.Limit), nil
}

// RateLimit enforces the limiter per request. Requests without a key pass
// through; a limiter outage fails closed with 503 rather than silently
// unmetered.
func RateLimit(l *RedisRateLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if keyFn != nil {
				key = keyFn(r)
			}
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := l.Allow(r.Context(), key)
			if err != nil {
				WriteJSONError(w, r, http.StatusServiceUnavailable, "rate_limiter_unavailable")
				return
			}
			if !allowed {
				WriteJSONError(w, r, http.StatusTooManyRequests, "rate_limited")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
