package backoff

import (
	"math/rand"
	"time"
)

// Backoff computes exponential backoff durations with jitter.
//
// Backoff doesn't block, it only computes the next duration, so callers can
// track many independent deadlines without a goroutine each.
type Backoff struct {
	minBackoff time.Duration
	maxBackoff time.Duration

	// attempts is the number of durations returned so far.
	attempts    int
	lastBackoff time.Duration
}

// New creates a new backoff starting at minBackoff and doubling up to
// maxBackoff. If maxBackoff is less than minBackoff the backoff is fixed at
// minBackoff.
func New(minBackoff time.Duration, maxBackoff time.Duration) *Backoff {
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &Backoff{
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Next returns the duration to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempts++

	var backoff time.Duration
	if b.lastBackoff == 0 {
		backoff = b.minBackoff
	} else {
		backoff = b.lastBackoff * 2
	}
	if backoff > b.maxBackoff {
		backoff = b.maxBackoff
	}
	b.lastBackoff = backoff

	// Add up to 10% jitter to avoid retries synchronising.
	jitterMultipler := 1.0 + (rand.Float64() * 0.1)
	return time.Duration(float64(backoff) * jitterMultipler)
}

// Attempts returns the number of durations returned by Next.
func (b *Backoff) Attempts() int {
	return b.attempts
}
