package ratelimit

import (
	"sync"
	"time"
)

const (
	evictionThreshold = 1000
	evictionIdleAfter = 60 * time.Second
)

// BucketMap is the per-rule concurrent map of client IP to TokenBucket,
// with size-triggered eviction of idle entries, as described for
// RuleRuntime.buckets.
type BucketMap struct {
	mu            sync.Mutex
	buckets       map[string]*TokenBucket
	rateLimit     float64
	capacity      int
}

// NewBucketMap builds a bucket map for a rule with the given rate
// (tokens/second) and capacity (burst size).
func NewBucketMap(rateLimit float64, capacity int) *BucketMap {
	return &BucketMap{
		buckets:   make(map[string]*TokenBucket),
		rateLimit: rateLimit,
		capacity:  capacity,
	}
}

// Allow gets or creates the bucket for clientIP and attempts to consume a
// token, evicting idle entries first if the map has grown past the
// threshold.
func (m *BucketMap) Allow(clientIP string) bool {
	m.mu.Lock()
	if len(m.buckets) > evictionThreshold {
		m.evictLocked()
	}
	bucket, ok := m.buckets[clientIP]
	if !ok {
		bucket = NewTokenBucket(m.capacity, m.rateLimit)
		m.buckets[clientIP] = bucket
	}
	m.mu.Unlock()

	return bucket.TryConsume()
}

func (m *BucketMap) evictLocked() {
	cutoff := time.Now().Add(-evictionIdleAfter).UnixNano()
	for ip, bucket := range m.buckets {
		if bucket.LastUsedNano() < cutoff {
			delete(m.buckets, ip)
		}
	}
}

func (m *BucketMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
