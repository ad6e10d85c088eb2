// Package debounce provides a cancellable scheduled-task primitive used to
// collapse bursts of state changes into a single side effect.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the recommended debounce window for draft persistence.
const DefaultWindow = 300 * time.Millisecond

// Debouncer runs the most recently scheduled function once the window has
// elapsed without any new calls. A new call replaces the pending one.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	pending  func()
	seq      uint64
	duration time.Duration
}

// New creates a debouncer with the specified window.
func New(duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = DefaultWindow
	}
	return &Debouncer{duration: duration}
}

// Debounce schedules fn after the window. Rapid successive calls reset the timer
// and only the last fn runs.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = fn
	d.timer = time.AfterFunc(d.duration, func() { d.fire(seq) })
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	// A timer that already fired cannot be stopped; seq tells us it was replaced.
	if seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel drops any pending call without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq++
}

// Flush runs the pending call now, if there is one. Reports whether it ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq++
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Immediate executes fn now and cancels any pending call.
func (d *Debouncer) Immediate(fn func()) {
	d.Cancel()
	fn()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// SetDuration changes the window for calls scheduled from now on.
func (d *Debouncer) SetDuration(duration time.Duration) {
	if duration <= 0 {
		return
	}
	d.mu.Lock()
	d.duration = duration
	d.mu.Unlock()
}

// Duration returns the current window.
func (d *Debouncer) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}
