package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(time.Minute)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("k", 5, time.Minute)
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter := l.Allow("k", 5, time.Minute)
	if allowed {
		t.Fatal("sixth request should be denied")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("unexpected retryAfter %v", retryAfter)
	}
}

func TestAllowDeniedDoesNotExtendWindow(t *testing.T) {
	l := New(time.Minute)
	defer l.Stop()

	l.Allow("k", 1, 50*time.Millisecond)
	if allowed, _ := l.Allow("k", 1, 50*time.Millisecond); allowed {
		t.Fatal("second request should be denied")
	}

	time.Sleep(60 * time.Millisecond)
	if allowed, _ := l.Allow("k", 1, 50*time.Millisecond); !allowed {
		t.Fatal("window should have reset")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(time.Minute)
	defer l.Stop()

	l.Allow("a", 1, time.Minute)
	if allowed, _ := l.Allow("a", 1, time.Minute); allowed {
		t.Fatal("key a should be exhausted")
	}
	if allowed, _ := l.Allow("b", 1, time.Minute); !allowed {
		t.Fatal("key b must have its own window")
	}
}
