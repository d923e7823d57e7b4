package execution

import "time"

// DefaultBackoffBase is the base delay of the exponential backoff schedule.
const DefaultBackoffBase = 500 * time.Millisecond

// backoffDelay computes the delay before retry n (0-based):
// base*2^n plus jitter drawn uniformly from [0, 0.3 * base*2^n].
// rand01 must return a value in [0, 1).
func backoffDelay(base time.Duration, n int, rand01 func() float64) time.Duration {
	exp := base << uint(n)
	jitter := time.Duration(0.3 * float64(exp) * rand01())
	return exp + jitter
}
