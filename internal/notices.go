package internal

import (
	"sync"
	"time"
)

// NoticeKind classifies a notice
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeWarning NoticeKind = "warning"
	NoticeSuccess NoticeKind = "success"
	NoticeInfo    NoticeKind = "info"
)

// DefaultNoticeDuration is how long terminal notices stay visible
const DefaultNoticeDuration = 7500 * time.Millisecond

// Notice is a transient user-visible message
type Notice struct {
	Kind     NoticeKind
	Message  string
	Duration time.Duration
	ShownAt  time.Time
}

// Notifier shows one notice at a time. A new notice replaces the current one.
type Notifier struct {
	mu         sync.Mutex
	clock      Clock
	bus        *Bus
	terminal   time.Duration
	current    *Notice
	generation uint64
	stop       func() bool
}

// NewNotifier creates a Notifier. A zero terminal duration uses DefaultNoticeDuration.
func NewNotifier(clock Clock, bus *Bus, terminal time.Duration) *Notifier {
	if clock == nil {
		clock = RealClock()
	}
	if terminal <= 0 {
		terminal = DefaultNoticeDuration
	}
	return &Notifier{clock: clock, bus: bus, terminal: terminal}
}

// Error shows a terminal error notice
func (n *Notifier) Error(message string) {
	n.Show(NoticeError, message, n.terminal)
}

// Warning shows a warning notice for d, or the terminal duration if d is zero
func (n *Notifier) Warning(message string, d time.Duration) {
	if d <= 0 {
		d = n.terminal
	}
	n.Show(NoticeWarning, message, d)
}

// Success shows a success notice for d
func (n *Notifier) Success(message string, d time.Duration) {
	n.Show(NoticeSuccess, message, d)
}

// Show replaces the current notice and schedules its expiry
func (n *Notifier) Show(kind NoticeKind, message string, d time.Duration) {
	logNotice(kind, message)

	n.mu.Lock()
	if n.stop != nil {
		n.stop()
	}
	n.generation++
	gen := n.generation
	notice := Notice{Kind: kind, Message: message, Duration: d, ShownAt: n.clock.Now()}
	n.current = &notice
	n.stop = n.clock.AfterFunc(d, func() { n.expire(gen) })
	n.mu.Unlock()

	n.bus.Publish(EventNoticeShown, notice)
}

// Current returns the visible notice, if any
func (n *Notifier) Current() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notice{}, false
	}
	return *n.current, true
}

// Dismiss hides the current notice early
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	if n.current == nil {
		n.mu.Unlock()
		return
	}
	if n.stop != nil {
		n.stop()
		n.stop = nil
	}
	hidden := *n.current
	n.current = nil
	n.generation++
	n.mu.Unlock()

	n.bus.Publish(EventNoticeHidden, hidden)
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.generation || n.current == nil {
		n.mu.Unlock()
		return
	}
	hidden := *n.current
	n.current = nil
	n.stop = nil
	n.mu.Unlock()

	n.bus.Publish(EventNoticeHidden, hidden)
}

func logNotice(kind NoticeKind, message string) {
	switch kind {
	case NoticeError:
		LogError("%s", message)
	case NoticeWarning:
		LogWarn("%s", message)
	default:
		LogDebug("%s", message)
	}
}
