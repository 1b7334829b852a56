package analyzer

import "pinscope/pkg/signal"

// Ring is the fixed-capacity RAM sample buffer. One slot is kept as a guard
// so a full buffer is distinguishable from an empty one: a ring created
// with capacity N holds at most N-1 samples. The capture policy is
// stop-on-full, not drop-oldest, so unread samples are never silently
// overwritten; DropOldest exists only for the pre-trigger window.
type Ring struct {
	buf   []signal.Sample
	read  int
	write int
}

// NewRing creates a ring with the given slot count.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring{buf: make([]signal.Sample, capacity)}
}

// Push appends a sample. Returns false, recording nothing, when the ring is
// full.
func (r *Ring) Push(s signal.Sample) bool {
	if r.Full() {
		return false
	}
	r.buf[r.write] = s
	r.write = (r.write + 1) % len(r.buf)
	return true
}

// DropOldest discards the oldest sample, if any.
func (r *Ring) DropOldest() {
	if r.Usage() > 0 {
		r.read = (r.read + 1) % len(r.buf)
	}
}

// Usage returns the number of stored samples, accounting for wraparound.
func (r *Ring) Usage() int {
	d := r.write - r.read
	if d < 0 {
		d += len(r.buf)
	}
	return d
}

// Capacity returns the usable sample count, one less than the slot count.
func (r *Ring) Capacity() int { return len(r.buf) - 1 }

// Full reports whether the next Push would be refused.
func (r *Ring) Full() bool { return r.Usage() >= len(r.buf)-1 }

// Clear resets the indices. Slot memory is not zeroed.
func (r *Ring) Clear() {
	r.read = 0
	r.write = 0
}

// Snapshot returns the stored samples oldest first.
func (r *Ring) Snapshot() []signal.Sample {
	n := r.Usage()
	out := make([]signal.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.read+i)%len(r.buf)]
	}
	return out
}
