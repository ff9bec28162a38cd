package internal

import (
	"sync"
	"time"
)

// Debouncer runs fn once after calls have been quiet for the configured window
type Debouncer struct {
	mu     sync.Mutex
	clock  Clock
	window time.Duration
	fn     func()
	stop   func() bool
	gen    uint64
}

// NewDebouncer creates a Debouncer
func NewDebouncer(clock Clock, window time.Duration, fn func()) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{clock: clock, window: window, fn: fn}
}

// Trigger (re)starts the quiet window
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		d.stop()
	}
	d.gen++
	gen := d.gen
	d.stop = d.clock.AfterFunc(d.window, func() { d.fire(gen) })
}

// Flush runs fn now if a call is pending
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stop == nil {
		d.mu.Unlock()
		return
	}
	d.stop()
	d.stop = nil
	d.gen++
	d.mu.Unlock()
	d.fn()
}

// Cancel drops a pending call
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.gen++
}

// Pending reports whether a call is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.stop = nil
	d.mu.Unlock()
	d.fn()
}
