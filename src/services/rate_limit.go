package services

import (
	"sync"
	"time"
)

type rateBucket struct {
	tokens     float64
	lastRefill time.Time
}

// InviteLimiter is a per-owner token bucket on invitation sends.
// A non-positive burst disables limiting.
type InviteLimiter struct {
	burst              int
	sustainedPerMinute int

	mu      sync.Mutex
	buckets map[int64]*rateBucket
}

func NewInviteLimiter(burst, sustainedPerMinute int) *InviteLimiter {
	return &InviteLimiter{
		burst:              burst,
		sustainedPerMinute: sustainedPerMinute,
		buckets:            make(map[int64]*rateBucket),
	}
}

func (l *InviteLimiter) Allow(ownerID int64, now time.Time) bool {
	if l == nil || l.burst <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[ownerID]
	if !ok {
		bucket = &rateBucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[ownerID] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	if elapsed > 0 {
		refillRate := float64(l.sustainedPerMinute) / 60.0
		bucket.tokens = min(float64(l.burst), bucket.tokens+elapsed*refillRate)
		bucket.lastRefill = now
	}

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}
