package gate

import (
	"sync"
	"time"

	"moltapp-trading/internal/domain"
)

// RunRecord is the retained summary of one gate run.
type RunRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Proceed      bool            `json:"proceed"`
	Mode         domain.GateMode `json:"mode"`
	Duration     time.Duration   `json:"duration"`
	FailedChecks []string        `json:"failed_checks,omitempty"`
}

// resultRing is a fixed-capacity history of gate runs. The write cursor
// wraps modulo capacity; the oldest record is evicted first.
type resultRing struct {
	mu     sync.Mutex
	buf    []RunRecord
	cursor int
	filled bool
}

func newResultRing(capacity int) *resultRing {
	return &resultRing{buf: make([]RunRecord, capacity)}
}

func (r *resultRing) push(rec RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.cursor] = rec
	r.cursor++
	if r.cursor == len(r.buf) {
		r.cursor = 0
		r.filled = true
	}
}

// recent returns up to n records, oldest first. n <= 0 returns everything
// retained.
func (r *resultRing) recent(n int) []RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []RunRecord
	if r.filled {
		ordered = make([]RunRecord, 0, len(r.buf))
		ordered = append(ordered, r.buf[r.cursor:]...)
		ordered = append(ordered, r.buf[:r.cursor]...)
	} else {
		ordered = append([]RunRecord(nil), r.buf[:r.cursor]...)
	}

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
