package ratelimit

import (
	"testing"
	"time"
)

func TestAllowBurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3) {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.Allow("k", 3) {
		t.Fatal("fourth request allowed")
	}

	now = now.Add(20 * time.Second)
	if !l.Allow("k", 3) {
		t.Fatal("request denied after one refill interval")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(time.Minute)
	if !l.Allow("a", 1) || l.Allow("a", 1) {
		t.Fatal("key a should allow exactly one request")
	}
	if !l.Allow("b", 1) {
		t.Fatal("key b throttled by key a")
	}
}

func TestUnlimited(t *testing.T) {
	l := New(time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("k", 0) {
			t.Fatal("limit 0 should not throttle")
		}
	}
	if l.Len() != 0 {
		t.Fatalf("tracked %d keys for unlimited requests", l.Len())
	}
}

func TestEvictIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(time.Minute)
	l.now = func() time.Time { return now }
	l.Allow("old", 5)
	now = now.Add(3 * time.Minute)
	l.Allow("fresh", 5)
	l.evict()
	if l.Len() != 1 {
		t.Fatalf("tracked %d keys after eviction, want 1", l.Len())
	}
}

func TestLimitChangeResetsBucket(t *testing.T) {
	l := New(time.Minute)
	l.Allow("k", 1)
	if !l.Allow("k", 2) {
		t.Fatal("raised limit should start a fresh bucket")
	}
}
