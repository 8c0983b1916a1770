package ratelimit

import "testing"

func TestAllowConsumesBurst(t *testing.T) {
	l := New()
	if !l.Allow("k", 2, 0.001) {
		t.Fatalf("first call should pass")
	}
	if !l.Allow("k", 2, 0.001) {
		t.Fatalf("second call should pass within burst")
	}
	if l.Allow("k", 2, 0.001) {
		t.Fatalf("third call should be throttled")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0.001) {
		t.Fatalf("key a should pass")
	}
	if l.Allow("a", 1, 0.001) {
		t.Fatalf("key a should be throttled")
	}
	if !l.Allow("b", 1, 0.001) {
		t.Fatalf("key b must not share a's bucket")
	}
}

func TestResetRefillsBucket(t *testing.T) {
	l := New()
	l.Allow("k", 1, 0.001)
	if l.Allow("k", 1, 0.001) {
		t.Fatalf("should be throttled before reset")
	}
	l.Reset("k")
	if !l.Allow("k", 1, 0.001) {
		t.Fatalf("reset should refill the bucket")
	}
}
