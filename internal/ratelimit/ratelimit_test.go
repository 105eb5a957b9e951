package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/jeton/internal/auth"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestLimiter creates a Limiter wired to the given fake clock.
func newTestLimiter(rate int, window time.Duration, clock *fakeClock) *Limiter {
	l := New(rate, window)
	l.now = clock.Now
	return l
}

func TestAllowBasic(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !l.Allow("user-1", 0) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if l.Allow("user-1", 0) {
		t.Fatal("4th request should be denied")
	}
}

func TestAllowDifferentKeys(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(1, time.Minute, clock)

	if !l.Allow("a", 0) {
		t.Fatal("first request for key 'a' should be allowed")
	}
	if l.Allow("a", 0) {
		t.Fatal("second request for key 'a' should be denied")
	}
	// Different key should have its own bucket.
	if !l.Allow("b", 0) {
		t.Fatal("first request for key 'b' should be allowed")
	}
}

func TestTokenRefill(t *testing.T) {
	clock := newFakeClock(time.Now())
	// 60 tokens per minute = 1 token per second.
	l := newTestLimiter(60, time.Minute, clock)

	// Exhaust all tokens.
	for i := 0; i < 60; i++ {
		l.Allow("k", 0)
	}
	if l.Allow("k", 0) {
		t.Fatal("should be denied after exhausting tokens")
	}

	// Advance 1 second -> 1 token refilled.
	clock.Advance(1 * time.Second)
	if !l.Allow("k", 0) {
		t.Fatal("should be allowed after 1 second refill")
	}
	if l.Allow("k", 0) {
		t.Fatal("should be denied again after consuming refilled token")
	}

	// Advance 5 seconds -> 5 tokens.
	clock.Advance(5 * time.Second)
	for i := 0; i < 5; i++ {
		if !l.Allow("k", 0) {
			t.Fatalf("request %d should be allowed after 5s refill", i+1)
		}
	}
	if l.Allow("k", 0) {
		t.Fatal("should be denied after consuming 5 refilled tokens")
	}
}

func TestTokenRefillCap(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	// Use 2 tokens.
	l.Allow("k", 0)
	l.Allow("k", 0)

	// Advance a very long time; tokens should cap at rate.
	clock.Advance(10 * time.Minute)

	if d := l.Take("k", 0); d.Remaining != 4 {
		t.Fatalf("remaining should cap at 5 before the take, got %d after", d.Remaining)
	}
}

func TestCustomRateOverride(t *testing.T) {
	tests := []struct {
		name       string
		defaultR   int
		customR    int
		wantAllow  int // how many requests should be allowed
	}{
		{"custom higher than default", 2, 5, 5},
		{"custom lower than default", 10, 3, 3},
		{"zero custom uses default", 5, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(time.Now())
			l := newTestLimiter(tt.defaultR, time.Minute, clock)

			allowed := 0
			for i := 0; i < tt.wantAllow+2; i++ {
				if l.Allow("key", tt.customR) {
					allowed++
				}
			}
			if allowed != tt.wantAllow {
				t.Fatalf("expected %d allowed, got %d", tt.wantAllow, allowed)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(100, time.Minute, clock)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent", 0)
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}

	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

func TestTake(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(10, time.Minute, clock)

	d := l.Take("s", 0)
	if !d.Allowed || d.Limit != 10 || d.Remaining != 9 {
		t.Fatalf("unexpected first decision: %+v", d)
	}

	l.Take("s", 0)
	d = l.Take("s", 0)
	if d.Remaining != 7 {
		t.Fatalf("expected remaining 7, got %d", d.Remaining)
	}

	// 3 tokens at 10/min = 1 token per 6 seconds.
	want := clock.Now().Add(18 * time.Second)
	if diff := d.ResetAt.Sub(want); diff > time.Millisecond || diff < -time.Millisecond {
		t.Fatalf("resetAt off by %v", diff)
	}
}

func TestTakeCustomRate(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(10, time.Minute, clock)

	d := l.Take("s", 20)
	if d.Limit != 20 || d.Remaining != 19 {
		t.Fatalf("expected limit 20 remaining 19, got %+v", d)
	}
}

func TestTakeRateLowered(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(10, time.Minute, clock)

	l.Take("s", 0)
	d := l.Take("s", 2)
	if d.Limit != 2 || d.Remaining != 1 {
		t.Fatalf("lowered rate should clamp tokens, got %+v", d)
	}
}

func TestTakeUnlimited(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 1000; i++ {
		if !l.Allow("free", 0) {
			t.Fatal("zero rate should disable limiting")
		}
	}
	if l.Len() != 0 {
		t.Fatalf("unlimited keys should not allocate buckets, got %d", l.Len())
	}
}

func TestResetAfterIdleRefill(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	l.Take("k", 0)
	clock.Advance(time.Hour)
	l.Take("k", 0)
	d := l.Take("k", 0)
	if d.Remaining != 3 {
		t.Fatalf("expected refill to cap before draining, remaining %d", d.Remaining)
	}
	if !d.ResetAt.After(clock.Now()) {
		t.Fatal("a partly drained bucket should reset in the future")
	}
}

func TestSweep(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(60, time.Minute, clock)

	l.Take("idle", 0)
	for i := 0; i < 60; i++ {
		l.Take("busy", 0)
	}

	clock.Advance(2 * time.Second)
	if n := l.Sweep(time.Second); n != 1 {
		t.Fatalf("expected only the nearly full bucket to be swept, removed %d", n)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 bucket left, got %d", l.Len())
	}

	clock.Advance(time.Minute)
	if n := l.Sweep(time.Second); n != 1 {
		t.Fatalf("expected refilled bucket to be swept, removed %d", n)
	}
}

func TestMiddleware(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(2, time.Minute, clock)
	rejections := &countingRejections{}

	h := Middleware(l, rejections)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(acct *auth.Account) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat", nil)
		if acct != nil {
			req = req.WithContext(auth.ContextWithAccount(req.Context(), acct))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	acct := &auth.Account{ID: "user-1"}
	for i := 0; i < 2; i++ {
		if rr := do(acct); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := do(acct)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
	if rr.Header().Get("Retry-After") != "30" {
		t.Errorf("expected Retry-After 30, got %q", rr.Header().Get("Retry-After"))
	}
	if !strings.Contains(rr.Body.String(), `"rate_limited"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
	if rejections.n != 1 {
		t.Errorf("expected 1 rejection, got %d", rejections.n)
	}

	// Unauthenticated requests pass through untouched.
	if rr := do(nil); rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("anonymous request should bypass limiting, got %d", rr.Code)
	}
}

type countingRejections struct{ n int }

func (c *countingRejections) IncRateLimitRejection() { c.n++ }
