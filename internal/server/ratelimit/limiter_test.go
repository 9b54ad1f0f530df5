package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := NewLimiter(10, time.Minute, 3)
	defer l.Close()

	for i := range 3 {
		if r := l.Allow("ip1"); !r.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	r := l.Allow("ip1")
	if r.Allowed {
		t.Error("request allowed past burst")
	}
	if r.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", r.RetryAfter)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(10, time.Minute, 1)
	defer l.Close()

	if r := l.Allow("ip1"); !r.Allowed {
		t.Fatal("first key denied")
	}
	if r := l.Allow("ip1"); r.Allowed {
		t.Fatal("first key not exhausted")
	}
	if r := l.Allow("ip2"); !r.Allowed {
		t.Error("second key shares the first key's bucket")
	}
}

func TestSetHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetHeaders(w, Result{
		Allowed:    false,
		Limit:      10,
		Remaining:  0,
		ResetAt:    time.Unix(1_700_000_000, 0),
		RetryAfter: 2 * time.Second,
	})
	if got := w.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q", got)
	}
}
