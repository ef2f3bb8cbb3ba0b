package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T, limit int) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisRateLimiter{
		Client: client,
		Prefix: "test",
		Limit:  limit,
		Window: time.Minute,
	}, mr
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := testLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}

	ok, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l, _ := testLimiter(t, 1)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "client-a")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = l.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowDisabledWithoutClient(t *testing.T) {
	l := &RedisRateLimiter{}
	ok, err := l.Allow(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	l, _ := testLimiter(t, 1)

	handler := RateLimit(l, func(r *http.Request) string { return "1.2.3.4" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitFailsClosedOnOutage(t *testing.T) {
	l, mr := testLimiter(t, 5)
	mr.Close()

	handler := RateLimit(l, func(r *http.Request) string { return "1.2.3.4" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitEmptyKeyPasses(t *testing.T) {
	l, _ := testLimiter(t, 0)

	handler := RateLimit(l, func(r *http.Request) string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
