package testutil

import (
	"sort"
	"sync"
	"time"
)

type fakeTimer struct {
	id      uint64
	at      time.Time
	f       func()
	stopped bool
}

// FakeClock is a manually advanced clock. Callbacks run synchronously
// inside Advance, in due-time order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID uint64
	timers []*fakeTimer
}

// NewFakeClock creates a clock set to start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d
func (c *FakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{id: c.nextID, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves the clock forward and fires due callbacks
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		var due *fakeTimer
		for i, t := range c.timers {
			if t.stopped {
				continue
			}
			if !t.at.After(target) {
				due = t
				c.timers = append(c.timers[:i:i], c.timers[i+1:]...)
			}
			break
		}
		if due == nil {
			c.now = target
			c.timers = compact(c.timers)
			c.mu.Unlock()
			return
		}
		due.stopped = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.f()
	}
}

// Pending returns the number of scheduled callbacks
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func compact(timers []*fakeTimer) []*fakeTimer {
	out := timers[:0]
	for _, t := range timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// InstantTimer satisfies the backoff timer interface without sleeping and
// records every requested wait
type InstantTimer struct {
	mu    sync.Mutex
	c     chan time.Time
	waits []time.Duration
}

// NewInstantTimer creates an InstantTimer
func NewInstantTimer() *InstantTimer {
	return &InstantTimer{c: make(chan time.Time, 1)}
}

// Start records d and fires immediately
func (t *InstantTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

// Stop is a no-op
func (t *InstantTimer) Stop() {}

// C returns the firing channel
func (t *InstantTimer) C() <-chan time.Time {
	return t.c
}

// Waits returns the recorded waits
func (t *InstantTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}
