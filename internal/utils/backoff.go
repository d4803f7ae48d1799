package utils

import "time"

// Backoff returns the exponential delay before retry number attempt
// (1-based): base, 2*base, 4*base, capped at maxDelay. Attempt zero and
// negative values return zero so the first try is immediate.
func Backoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
