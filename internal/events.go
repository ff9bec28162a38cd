package internal

import "sync"

// EventType names a state-change notification
type EventType string

const (
	EventStateChanged       EventType = "state.changed"
	EventLoadingChanged     EventType = "state.loading"
	EventFocusPrompt        EventType = "prompt.focus"
	EventExplorerChanged    EventType = "explorer.changed"
	EventFileOpened         EventType = "workspace.file_opened"
	EventNoticeShown        EventType = "notice.shown"
	EventNoticeHidden       EventType = "notice.hidden"
	EventConfirmationOpened EventType = "confirmation.opened"
	EventConfirmationClosed EventType = "confirmation.closed"
)

// Event is delivered to subscribers. Payload depends on Type:
// SessionState, ExplorerState, Notice, ConfirmationRequest, bool or string.
type Event struct {
	Type    EventType
	Payload any
}

// Handler receives events
type Handler func(Event)

type subscription struct {
	id      uint64
	typ     EventType // empty means all events
	handler Handler
}

// Bus is a synchronous publish/subscribe hub for state changes.
// Publishers must not hold their own locks while publishing.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for one event type and returns its unsubscribe function
func (b *Bus) Subscribe(typ EventType, h Handler) func() {
	return b.add(typ, h)
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.add("", h)
}

func (b *Bus) add(typ EventType, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, typ: typ, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers an event to matching subscribers in registration order
func (b *Bus) Publish(typ EventType, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.typ == "" || s.typ == typ {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	ev := Event{Type: typ, Payload: payload}
	for _, h := range handlers {
		h(ev)
	}
}
