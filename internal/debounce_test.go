package internal

import (
	"testing"
	"time"

	"github.com/iksnae/codetask-session/testutil"
)

func TestDebouncer_Coalesces(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	calls := 0
	d := NewDebouncer(clock, 500*time.Millisecond, func() { calls++ })

	d.Trigger()
	clock.Advance(300 * time.Millisecond)
	d.Trigger()
	clock.Advance(300 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("fn ran %d times before the window closed", calls)
	}
	if !d.Pending() {
		t.Error("Pending() = false, want true")
	}

	clock.Advance(200 * time.Millisecond)
	if calls != 1 {
		t.Errorf("fn ran %d times, want 1", calls)
	}
	if d.Pending() {
		t.Error("Pending() = true after firing")
	}
}

func TestDebouncer_Flush(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	calls := 0
	d := NewDebouncer(clock, time.Second, func() { calls++ })

	d.Flush()
	if calls != 0 {
		t.Error("Flush() with nothing pending ran fn")
	}

	d.Trigger()
	d.Flush()
	if calls != 1 {
		t.Errorf("Flush() ran fn %d times, want 1", calls)
	}
	clock.Advance(2 * time.Second)
	if calls != 1 {
		t.Errorf("fn ran again after Flush(): %d", calls)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	calls := 0
	d := NewDebouncer(clock, time.Second, func() { calls++ })

	d.Trigger()
	d.Cancel()
	clock.Advance(2 * time.Second)
	if calls != 0 {
		t.Errorf("fn ran %d times after Cancel()", calls)
	}
}
