package batch

import "sync/atomic"

// Tracker counts finished items of a batch. Every call to Finish is one
// terminal item; the done callback fires exactly once, from the call that
// brings the count to the total.
type Tracker struct {
	total      int64
	count      atomic.Int64
	onProgress func(completed, total int)
	onDone     func()
}

// NewTracker returns a Tracker for total items. Both callbacks are optional.
func NewTracker(total int, onProgress func(completed, total int), onDone func()) *Tracker {
	return &Tracker{total: int64(total), onProgress: onProgress, onDone: onDone}
}

// Finish records one finished item and returns the new count.
func (t *Tracker) Finish() int {
	n := t.count.Add(1)
	if t.onProgress != nil {
		t.onProgress(int(n), int(t.total))
	}
	if n == t.total && t.onDone != nil {
		t.onDone()
	}
	return int(n)
}

// Count returns the number of finished items so far.
func (t *Tracker) Count() int {
	return int(t.count.Load())
}

// Done reports whether every item has finished.
func (t *Tracker) Done() bool {
	return t.count.Load() >= t.total
}
