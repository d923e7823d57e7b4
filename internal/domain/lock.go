package domain

import "time"

// LockRecord is the single system-wide trading lease. The lease is
// considered free once ExpiresAt has passed, whether or not the holder
// released it; that is what makes crash recovery possible.
type LockRecord struct {
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// ExpiredAt reports whether the lease is past its expiry at the given time.
func (r LockRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
