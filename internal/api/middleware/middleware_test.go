package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, 60)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("1.2.3.4")
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, reset := rl.Allow("1.2.3.4")
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, reset.After(now))

	allowed, _, _ = rl.Allow("5.6.7.8")
	assert.True(t, allowed, "other clients have their own bucket")

	now = now.Add(20 * time.Second)
	allowed, _, _ = rl.Allow("1.2.3.4")
	assert.True(t, allowed, "one token refills per window/requests")
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(5, 10)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(15 * time.Second)
	rl.Allow("b")
	now = now.Add(10 * time.Second)

	rl.Prune()
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimit_Middleware(t *testing.T) {
	handler := RateLimit(NewRateLimiter(1, 60))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	assert.Equal(t, "192.168.1.1", clientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "192.168.1.1", clientIP(req), "forwarding headers are ignored")

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(req))
}

func TestRateLimit_IgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(1, 60)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests} {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i)
	}
}

func TestLogging_OmitsQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/verify?token=secret.jwt.value", nil))

	assert.Contains(t, buf.String(), "path=/auth/verify")
	assert.Contains(t, buf.String(), "status=201")
	assert.NotContains(t, buf.String(), "secret.jwt.value")
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/users", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
	assert.Contains(t, buf.String(), "panic recovered")
}
