package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/services"
)

type stubLimiter struct {
	allowSeq []bool
	idx      int
	limit    int64
	enabled  bool
	err      error
	usageErr error
	clients  []string
}

func (s *stubLimiter) Allow(_ context.Context, client string) (*services.RateLimitDecision, error) {
	s.clients = append(s.clients, client)
	if s.err != nil {
		return nil, s.err
	}
	allowed := false
	if s.idx < len(s.allowSeq) {
		allowed = s.allowSeq[s.idx]
	}
	s.idx++
	remaining := s.limit - int64(s.idx)
	if remaining < 0 {
		remaining = 0
	}
	return &services.RateLimitDecision{
		Allowed:   allowed,
		Limit:     s.limit,
		Used:      int64(s.idx),
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Minute),
	}, nil
}

func (s *stubLimiter) Enabled() bool { return s.enabled }

func (s *stubLimiter) Usage(_ context.Context, _ string) (*services.RateLimitDecision, error) {
	if s.usageErr != nil {
		return nil, s.usageErr
	}
	return &services.RateLimitDecision{Allowed: true, Limit: s.limit, Used: 2, Remaining: s.limit - 2, ResetAt: time.Now().Add(time.Minute)}, nil
}

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	limiter := &stubLimiter{allowSeq: []bool{true, false}, limit: 1, enabled: true}

	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RateLimitMiddleware(limiter, newTestLogger())(handler)
	req := httptest.NewRequest(http.MethodGet, "/api/shop", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	rr1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rr1, req)
	if rr1.Code != http.StatusOK || calls != 1 {
		t.Fatalf("first request expected 200, calls=1; got %d, calls=%d", rr1.Code, calls)
	}
	if rr1.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("expected X-RateLimit-Limit header, got %q", rr1.Header().Get("X-RateLimit-Limit"))
	}

	rr2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusTooManyRequests || calls != 1 {
		t.Fatalf("second request expected 429, calls still 1; got %d, calls=%d", rr2.Code, calls)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
	if limiter.clients[0] != "1.2.3.4" {
		t.Fatalf("expected client ip key, got %s", limiter.clients[0])
	}
}

func TestRateLimitMiddleware_DisabledSkips(t *testing.T) {
	limiter := &stubLimiter{enabled: false}
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	RateLimitMiddleware(limiter, newTestLogger())(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/shop", nil))

	if calls != 1 || rr.Code != http.StatusOK || len(limiter.clients) != 0 {
		t.Fatalf("expected middleware to skip limiter, code=%d calls=%d", rr.Code, calls)
	}
}

func TestRateLimitMiddleware_Error(t *testing.T) {
	limiter := &stubLimiter{limit: 1, enabled: true, err: errors.New("fail")}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	RateLimitMiddleware(limiter, newTestLogger())(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/shop", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on limiter error, got %d", rr.Code)
	}
}

func TestRateLimitStatus_Disabled(t *testing.T) {
	handler := NewRateLimitHandler(nil, newTestLogger(), &config.RateLimitConfig{Enabled: false})
	rr := httptest.NewRecorder()

	handler.Status(rr, httptest.NewRequest(http.MethodGet, "/api/rate-limit/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body["enabled"] != false {
		t.Fatalf("expected enabled=false, got %v (err %v)", body, err)
	}
}

func TestRateLimitStatus_Enabled(t *testing.T) {
	limiter := &stubLimiter{limit: 5, enabled: true}
	handler := NewRateLimitHandler(limiter, newTestLogger(), &config.RateLimitConfig{Enabled: true, WindowSeconds: 60})

	rr := httptest.NewRecorder()
	handler.Status(rr, httptest.NewRequest(http.MethodGet, "/api/rate-limit/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["used"] != float64(2) || body["remaining"] != float64(3) {
		t.Fatalf("unexpected usage body: %v", body)
	}
}

func TestRateLimitStatus_Error(t *testing.T) {
	limiter := &stubLimiter{limit: 5, enabled: true, usageErr: errors.New("usage error")}
	handler := NewRateLimitHandler(limiter, newTestLogger(), &config.RateLimitConfig{Enabled: true})

	rr := httptest.NewRecorder()
	handler.Status(rr, httptest.NewRequest(http.MethodGet, "/api/rate-limit/status", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
