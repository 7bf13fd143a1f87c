package scheduler

import (
	"testing"
	"time"
)

func TestNextRetryAt_DoublesPerRetry(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		retryCount int
		base       time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 480 * time.Second},
		{6, 64 * time.Minute},
	}
	for _, tc := range cases {
		got := NextRetryAt(now, tc.retryCount).Sub(now)
		lo, hi := tc.base-backoffJitter, tc.base+backoffJitter
		if got < lo || got > hi {
			t.Errorf("retryCount=%d: delay %v outside [%v, %v]", tc.retryCount, got, lo, hi)
		}
	}
}

func TestNextRetryAt_CapsAtOneDay(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for _, retryCount := range []int{11, 20, 63} {
		got := NextRetryAt(now, retryCount).Sub(now)
		lo, hi := backoffCap-backoffJitter, backoffCap+backoffJitter
		if got < lo || got > hi {
			t.Errorf("retryCount=%d: delay %v outside capped range [%v, %v]", retryCount, got, lo, hi)
		}
	}
}

func TestNextRetryAt_NeverInThePast(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 200; i++ {
		if at := NextRetryAt(now, 0); at.Before(now) {
			t.Fatalf("retry scheduled in the past: %v", at)
		}
	}
}
