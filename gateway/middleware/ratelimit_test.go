package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	handler := limiter.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/pending", nil)
	req.RemoteAddr = "198.51.100.1:4000"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	handler := limiter.Middleware()(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/v1/vault/pending", nil)
	reqA.RemoteAddr = "198.51.100.1:4000"
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)
	if resA.Code != http.StatusOK {
		t.Fatalf("expected client A to succeed, got %d", resA.Code)
	}

	reqB := httptest.NewRequest(http.MethodGet, "/v1/vault/pending", nil)
	reqB.RemoteAddr = "198.51.100.2:4000"
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)
	if resB.Code != http.StatusOK {
		t.Fatalf("expected client B to succeed, got %d", resB.Code)
	}
}

func TestRateLimiterHonorsForwardedFor(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	handler := limiter.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/vault/pending", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected forwarded client to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected same forwarded client to hit limit, got %d", res.Code)
	}
}

func TestRateLimiterDropsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	now := time.Now()
	limiter.clockNow = func() time.Time { return now }

	limiter.obtain("198.51.100.9")
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one visitor, got %d", len(limiter.visitors))
	}

	limiter.clockNow = func() time.Time { return now.Add(visitorIdleTTL + time.Minute) }
	limiter.obtain("198.51.100.10")
	if _, ok := limiter.visitors["198.51.100.9"]; ok {
		t.Fatalf("expected idle visitor to be evicted")
	}
}
