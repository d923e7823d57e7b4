package metrics

import "time"

// MetricSample is one point-in-time copy of all counter values.
type MetricSample struct {
	Timestamp time.Time         `json:"timestamp"`
	Counters  map[string]uint64 `json:"counters"`
}

// snapshotRing is a fixed-capacity buffer of MetricSamples. The write
// cursor wraps modulo capacity so the oldest sample is evicted first;
// reads reconstruct chronological order from the cursor position.
type snapshotRing struct {
	buf    []MetricSample
	cursor int
	filled bool
}

// defaultSnapshotCapacity is used when the caller passes a non-positive
// capacity.
const defaultSnapshotCapacity = 60

func newSnapshotRing(capacity int) *snapshotRing {
	if capacity <= 0 {
		capacity = defaultSnapshotCapacity
	}
	return &snapshotRing{buf: make([]MetricSample, capacity)}
}

func (r *snapshotRing) push(s MetricSample) {
	r.buf[r.cursor] = s
	r.cursor++
	if r.cursor == len(r.buf) {
		r.cursor = 0
		r.filled = true
	}
}

// recent returns up to n samples, oldest first. n <= 0 returns everything
// retained.
func (r *snapshotRing) recent(n int) []MetricSample {
	var ordered []MetricSample
	if r.filled {
		ordered = make([]MetricSample, 0, len(r.buf))
		ordered = append(ordered, r.buf[r.cursor:]...)
		ordered = append(ordered, r.buf[:r.cursor]...)
	} else {
		ordered = append([]MetricSample(nil), r.buf[:r.cursor]...)
	}

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
