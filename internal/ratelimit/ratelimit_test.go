package ratelimit_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/ratelimit"
	"github.com/radiant-ai/radiant/internal/testutil"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testutil.StartRedis(t)})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	l := ratelimit.NewRedisLimiter(client, fmt.Sprintf("test-%d", time.Now().UnixNano()), 3, time.Minute)

	for i := range 3 {
		ok, err := l.Allow(ctx, "acme:alice")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
	ok, err := l.Allow(ctx, "acme:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "acme:bob")
	require.NoError(t, err)
	assert.True(t, ok, "keys are counted separately")

	wait := l.RetryAfter()
	assert.Positive(t, wait)
	assert.LessOrEqual(t, wait, time.Minute)
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("down") }
func (errLimiter) Close() error                                { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// headerCaller keys requests by the X-Caller header, the way the server
// keys them by token subject.
func headerCaller(r *http.Request) string { return r.Header.Get("X-Caller") }

func serve(h http.Handler, caller string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkpoints/x/resolve", nil)
	req.Header.Set("X-Caller", caller)
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	limiter := ratelimit.NewMemoryLimiter(0.5, 1, nil)
	defer func() { _ = limiter.Close() }()

	g := ratelimit.NewGuard(limiter, headerCaller, func(*http.Request) string { return "req-1" }, testLogger())
	decide := g.Wrap(ratelimit.ClassDecide, ok)

	assert.Equal(t, http.StatusOK, serve(decide, "acme/alice").Code)
	rec := serve(decide, "acme/alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"), "one token at 0.5/s refills in 2s")
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.Contains(t, rec.Body.String(), "too many decide requests")
	assert.Contains(t, rec.Body.String(), "req-1")

	assert.Equal(t, http.StatusOK, serve(decide, "acme/bob").Code, "callers have their own bucket")
	memory := g.Wrap(ratelimit.ClassMemory, ok)
	assert.Equal(t, http.StatusOK, serve(memory, "acme/alice").Code, "classes have their own bucket")
}

func TestGuardFailsOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := ratelimit.NewGuard(errLimiter{}, headerCaller, nil, testLogger()).Wrap(ratelimit.ClassSubmit, ok)
	assert.Equal(t, http.StatusOK, serve(h, "acme/alice").Code)

	exempt := ratelimit.NewGuard(ratelimit.NewMemoryLimiter(0.001, 1, nil), headerCaller, nil, testLogger()).Wrap(ratelimit.ClassSubmit, ok)
	for range 3 {
		assert.Equal(t, http.StatusOK, serve(exempt, "").Code, "an empty caller is exempt")
	}

	none := ratelimit.NewGuard(nil, headerCaller, nil, testLogger()).Wrap(ratelimit.ClassSubmit, ok)
	assert.Equal(t, http.StatusOK, serve(none, "acme/alice").Code)
}
