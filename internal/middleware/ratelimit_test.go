package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// tinyLimiterConfig keeps buckets small so exhaustion tests stay fast. The
// refill rate is effectively zero within a test's lifetime (1 token/minute).
func tinyLimiterConfig(burst int) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 1,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	}
}

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(tinyLimiterConfig(3))
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("request %d should be within the burst", i+1)
		}
	}
	if rl.Allow("client-a") {
		t.Error("request beyond burst should be denied")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(tinyLimiterConfig(1))
	defer rl.Stop()

	if !rl.Allow("client-a") {
		t.Fatal("first request for client-a should pass")
	}
	if rl.Allow("client-a") {
		t.Error("second request for client-a should be denied")
	}
	if !rl.Allow("client-b") {
		t.Error("client-b has its own bucket and should pass")
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 6000, // 100 tokens/second so a short sleep refills
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	if !rl.Allow("client-a") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("client-a") {
		t.Fatal("bucket should be empty immediately after the burst")
	}

	time.Sleep(50 * time.Millisecond)

	if !rl.Allow("client-a") {
		t.Error("bucket should have refilled after waiting")
	}
}

func TestRemainingTokens_NewClientHasFullBurst(t *testing.T) {
	rl := NewRateLimiter(tinyLimiterConfig(5))
	defer rl.Stop()

	if got := rl.RemainingTokens("never-seen"); got != 5 {
		t.Errorf("expected full burst 5 for unseen client, got %d", got)
	}

	rl.Allow("never-seen")
	if got := rl.RemainingTokens("never-seen"); got != 4 {
		t.Errorf("expected 4 remaining after one request, got %d", got)
	}
}

func newRateLimitRouter(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	rl := NewRateLimiter(tinyLimiterConfig(2))
	defer rl.Stop()
	r := newRateLimitRouter(rl)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("expected X-RateLimit-Limit header, got %q", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected X-RateLimit-Remaining header to be set")
	}
}

func TestRateLimitMiddleware_Rejects429WhenExhausted(t *testing.T) {
	rl := NewRateLimiter(tinyLimiterConfig(1))
	defer rl.Stop()
	r := newRateLimitRouter(rl)

	// Same source IP for both requests.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After 60, got %q", w.Header().Get("Retry-After"))
	}
}

func TestGetRateLimitKey_PrefersProjectOverIP(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:1234"

	if key := getRateLimitKey(c); key != "ip:203.0.113.7" {
		t.Errorf("expected IP key for unauthenticated request, got %q", key)
	}

	c.Set(ProjectIDKey, "proj-1")
	if key := getRateLimitKey(c); key != "project:proj-1" {
		t.Errorf("expected project key for authenticated request, got %q", key)
	}
}
