package worker

import (
	"math/rand/v2"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
	maxJitter   = 250 * time.Millisecond
)

// ExponentialBackoff is the delay before retry number attempt+1:
// 2s, 4s, 8s, ... capped at 5m, plus up to 250ms of jitter.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := backoffCap
	// 2s << 8 already exceeds the cap
	if attempt < 8 {
		delay = backoffBase << attempt
		if delay > backoffCap {
			delay = backoffCap
		}
	}

	// small jitter to avoid thundering herd
	return delay + rand.N(maxJitter)
}
