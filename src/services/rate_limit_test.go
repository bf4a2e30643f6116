package services

import (
	"testing"
	"time"
)

func TestInviteLimiterBurstAndRefill(t *testing.T) {
	limiter := NewInviteLimiter(2, 60)
	start := time.Unix(1_700_000_000, 0)

	if !limiter.Allow(1, start) || !limiter.Allow(1, start) {
		t.Fatalf("expected burst of two to be allowed")
	}
	if limiter.Allow(1, start) {
		t.Fatalf("expected third invite in the same instant to be limited")
	}
	if !limiter.Allow(2, start) {
		t.Fatalf("buckets must be per owner")
	}
	if !limiter.Allow(1, start.Add(time.Second)) {
		t.Fatalf("expected one token after one second at 60/min")
	}
}

func TestInviteLimiterDisabled(t *testing.T) {
	tests := []struct {
		name    string
		limiter *InviteLimiter
	}{
		{name: "nil limiter", limiter: nil},
		{name: "zero burst", limiter: NewInviteLimiter(0, 10)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Now()
			for i := 0; i < 100; i++ {
				if !tc.limiter.Allow(1, now) {
					t.Fatalf("disabled limiter rejected call %d", i)
				}
			}
		})
	}
}
