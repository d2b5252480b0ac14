// Package timer provides a monotonic deadline timer used to bound
// handshake reads and, optionally, application-level wait loops.
package timer

import "time"

// Timer tracks elapsed time since its creation against an optional limit.
type Timer struct {
	start time.Time
	limit *time.Duration
}

// New captures the current instant. A nil limit means unbounded.
func New(limit *time.Duration) *Timer {
	return &Timer{start: time.Now(), limit: limit}
}

// Passed returns the time elapsed since the timer was created.
func (t *Timer) Passed() time.Duration {
	return time.Since(t.start)
}

// Left returns the remaining time before the limit is reached and whether
// a limit is set at all. When no limit is set, ok is false and the
// duration is meaningless.
func (t *Timer) Left() (left time.Duration, ok bool) {
	if t.limit == nil {
		return 0, false
	}
	return *t.limit - t.Passed(), true
}

// TimedOut reports whether the limit, if any, has been exceeded.
func (t *Timer) TimedOut() bool {
	left, ok := t.Left()
	return ok && left < 0
}

// Reset restarts the timer's clock without changing its limit.
func (t *Timer) Reset() {
	t.start = time.Now()
}
