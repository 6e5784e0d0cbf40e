package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/querykit/internal/orm/schema"
	webcontext "github.com/conduit-lang/querykit/internal/web/context"
	"github.com/conduit-lang/querykit/internal/web/ratelimit"
)

type scriptedLimiter struct {
	decisions []ratelimit.Decision
	err       error
	keys      []string
}

func (l *scriptedLimiter) Allow(_ context.Context, key string) (ratelimit.Decision, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return ratelimit.Decision{}, l.err
	}
	d := l.decisions[0]
	l.decisions = l.decisions[1:]
	return d, nil
}

func (l *scriptedLimiter) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAllows(t *testing.T) {
	reset := time.Unix(1700000000, 0)
	limiter := &scriptedLimiter{decisions: []ratelimit.Decision{
		{Allowed: true, Limit: 10, Remaining: 9, ResetAt: reset},
	}}

	handler := RateLimit(RateLimitConfig{Limiter: limiter})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/resources/Invoice", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000000", w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ip:10.0.0.7"}, limiter.keys)
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &scriptedLimiter{decisions: []ratelimit.Decision{
		{Allowed: false, Limit: 10, RetryAfter: 1500 * time.Millisecond, ResetAt: time.Now()},
	}}

	handler := RateLimit(RateLimitConfig{Limiter: limiter})(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["code"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &scriptedLimiter{err: errors.New("redis down")}

	handler := RateLimit(RateLimitConfig{Limiter: limiter})(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1", ClientKey(req))

	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "ip:unix-socket", ClientKey(req))

	ctx := webcontext.SetRequestContext(req.Context(), schema.RequestContext{Principal: "alice"})
	assert.Equal(t, "principal:alice", ClientKey(req.WithContext(ctx)))
}

func TestRateLimitWithTokenBucket(t *testing.T) {
	tb, err := ratelimit.NewTokenBucket(ratelimit.Config{Limit: 2, Window: time.Hour})
	require.NoError(t, err)
	defer tb.Close()

	handler := RateLimit(RateLimitConfig{Limiter: tb})(okHandler())

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
