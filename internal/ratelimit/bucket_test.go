package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket_BurstThenDeny(t *testing.T) {
	b := NewTokenBucket(2, 1)

	if !b.TryConsume() {
		t.Fatal("expected first request admitted")
	}
	if !b.TryConsume() {
		t.Fatal("expected second request admitted (burst=2)")
	}
	if b.TryConsume() {
		t.Fatal("expected third request denied")
	}
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	b := NewTokenBucket(1, 1000) // 1000 tokens/sec -> refills fast
	if !b.TryConsume() {
		t.Fatal("expected first request admitted")
	}
	time.Sleep(5 * time.Millisecond)
	if !b.TryConsume() {
		t.Fatal("expected bucket to have refilled")
	}
}

func TestBucketMap_PerClientIsolation(t *testing.T) {
	m := NewBucketMap(1, 1)

	if !m.Allow("1.1.1.1") {
		t.Fatal("first client's first request should be admitted")
	}
	if m.Allow("1.1.1.1") {
		t.Fatal("first client's second request should be denied")
	}
	if !m.Allow("1.1.1.2") {
		t.Fatal("second client should be unaffected by the first")
	}
}
