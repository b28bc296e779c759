package service

import (
	"math"
	"time"
)

// Backoff computes the wait before the next retry as
// Initial * Multiplier^failureCount, capped at Max when Max is set.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 5 * time.Second, Multiplier: 2}
}

func (b Backoff) Delay(failureCount int) time.Duration {
	if failureCount < 0 {
		failureCount = 0
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(failureCount))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
