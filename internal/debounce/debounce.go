// Package debounce implements a last-value-wins filter over a sliding quiet window.
//
// The filter holds no timers. Callers pass the current time to every method,
// which keeps it deterministic under a logical clock.
package debounce

import "time"

// Debouncer releases the most recent value once no newer value has been
// pushed for the configured window.
type Debouncer[T any] struct {
	window  time.Duration
	value   T
	last    time.Time
	pending bool
}

// New creates a Debouncer with the given quiet window.
func New[T any](window time.Duration) *Debouncer[T] {
	if window < 0 {
		window = 0
	}
	return &Debouncer[T]{window: window}
}

// Push records v as the latest value observed at now.
func (d *Debouncer[T]) Push(now time.Time, v T) {
	d.value = v
	d.last = now
	d.pending = true
}

// Deadline returns the time at which the pending value settles.
func (d *Debouncer[T]) Deadline() (time.Time, bool) {
	if !d.pending {
		return time.Time{}, false
	}
	return d.last.Add(d.window), true
}

// Settle returns the pending value when the window has elapsed at now and
// clears it. It returns false while values are still arriving.
func (d *Debouncer[T]) Settle(now time.Time) (T, bool) {
	var zero T
	deadline, ok := d.Deadline()
	if !ok || now.Before(deadline) {
		return zero, false
	}
	v := d.value
	d.value = zero
	d.pending = false
	return v, true
}

// Reset drops any pending value.
func (d *Debouncer[T]) Reset() {
	var zero T
	d.value = zero
	d.pending = false
}
