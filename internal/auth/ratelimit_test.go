package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterRejectsAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(60, 2)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		statuses = append(statuses, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "1" {
			t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
		}
	}
	if statuses[0] != http.StatusNoContent || statuses[1] != http.StatusNoContent || statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("statuses = %v", statuses)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("other client status = %d", rr.Code)
	}
}

func TestRateLimiterKeysByPrincipal(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
		req.RemoteAddr = addr
		req = req.WithContext(WithIdentity(req.Context(), Identity{Principal: "finance", Roles: []string{RoleAnalyst}}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		want := http.StatusNoContent
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Fatalf("request %d status = %d, want %d", i, rr.Code, want)
		}
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, 1)
	for i := 0; i < 10; i++ {
		if !limiter.Allow("ip:1") {
			t.Fatalf("request %d rejected with limiter disabled", i)
		}
	}
}

func TestRateLimiterSweepDropsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(60, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("ip:1")
	now = now.Add(limiterIdleTTL + time.Second)
	limiter.Allow("ip:2")
	limiter.Sweep()

	if _, ok := limiter.clients["ip:1"]; ok {
		t.Fatal("expected idle client to be swept")
	}
	if _, ok := limiter.clients["ip:2"]; !ok {
		t.Fatal("expected active client to remain")
	}
}
