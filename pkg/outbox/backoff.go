package outbox

import (
	"math/rand"
	"time"
)

// retryPolicy computes when a failed message becomes available again:
// 1s doubled per attempt, capped at max, plus up to jitter of noise.
type retryPolicy struct {
	max    time.Duration
	jitter time.Duration
	rand   *rand.Rand
}

func (p retryPolicy) delay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return min(d, p.max)
}

func (p retryPolicy) noise() time.Duration {
	if p.jitter <= 0 || p.rand == nil {
		return 0
	}
	return time.Duration(p.rand.Int63n(int64(p.jitter) + 1)) //nolint:gosec
}

func (p retryPolicy) next(now time.Time, attempts int) time.Time {
	return now.Add(p.delay(attempts) + p.noise())
}
