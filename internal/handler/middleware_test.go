package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// --- SecurityHeaders ---

func TestSecurityHeaders_SetsAllHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"X-XSS-Protection":       "0",
		"Permissions-Policy":     "camera=(), microphone=(), geolocation=()",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s: want %q, got %q", name, want, got)
		}
	}
	csp := rec.Header().Get("Content-Security-Policy")
	for _, d := range []string{"default-src", "script-src", "frame-ancestors 'none'"} {
		if !strings.Contains(csp, d) {
			t.Errorf("CSP missing directive %q: %s", d, csp)
		}
	}
	if hsts := rec.Header().Get("Strict-Transport-Security"); !strings.Contains(hsts, "max-age=") {
		t.Errorf("HSTS missing max-age: %q", hsts)
	}
}

func TestSecurityHeaders_PassesThrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	SecurityHeaders(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", rec.Code)
	}
}

// --- RateLimiter ---

func hit(h http.Handler, remoteAddr, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/goals/g1/donations", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	h := NewRateLimiter(t.Context(), 10).Middleware(okHandler)
	for i := 0; i < 10; i++ {
		if rec := hit(h, "192.168.1.1:12345", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	h := NewRateLimiter(t.Context(), 5).Middleware(okHandler)
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = hit(h, "192.168.1.1:12345", "")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 6th request, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
	if !strings.Contains(last.Body.String(), "rate_limited") {
		t.Errorf("unexpected body: %s", last.Body.String())
	}
}

func TestRateLimiter_DifferentIPsAreIndependent(t *testing.T) {
	h := NewRateLimiter(t.Context(), 2).Middleware(okHandler)
	hit(h, "10.0.0.1:1234", "")
	hit(h, "10.0.0.1:1234", "")

	if rec := hit(h, "10.0.0.2:1234", ""); rec.Code != http.StatusOK {
		t.Errorf("different IP should not be rate limited, got %d", rec.Code)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(t.Context(), 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler)

	hit(h, "10.0.0.1:1234", "")
	if rec := hit(h, "10.0.0.1:1234", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	now = now.Add(61 * time.Second)
	if rec := hit(h, "10.0.0.1:1234", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 after the window passed, got %d", rec.Code)
	}
}

func TestRateLimiter_XForwardedFor_SpoofedLeftmostIgnored(t *testing.T) {
	// trustedProxyCount=1 なので右端のエントリがクライアント IP
	h := NewRateLimiter(t.Context(), 1).Middleware(okHandler)

	if rec := hit(h, "10.0.0.99:1234", "203.0.113.50"); rec.Code != http.StatusOK {
		t.Fatalf("first request should succeed, got %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.99:1234", "9.9.9.9, 203.0.113.50"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("spoofed leftmost IP should not bypass rate limit, got %d", rec.Code)
	}
}
