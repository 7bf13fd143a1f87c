package scheduler

import (
	"math/rand/v2"
	"time"
)

const (
	backoffBase   = 60 * time.Second
	backoffCap    = 24 * time.Hour
	backoffJitter = 15 * time.Second
)

// NextRetryAt returns the absolute timestamp for a task's next attempt:
// min(60s * 2^retryCount, 24h) plus uniform jitter in [-15s, +15s], floored
// so heavy negative jitter on the first retry cannot schedule in the past.
func NextRetryAt(now time.Time, retryCount int) time.Time {
	delay := backoffBase
	for i := 0; i < retryCount && delay < backoffCap; i++ {
		delay *= 2
	}
	if delay > backoffCap {
		delay = backoffCap
	}

	jitter := time.Duration(rand.Int64N(int64(2*backoffJitter))) - backoffJitter
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return now.Add(delay)
}
