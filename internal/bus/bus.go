package bus

import (
	"sync"
	"time"
)

// EventType identifies the kind of event pushed to UI listeners.
type EventType string

const (
	EventStateChanged     EventType = "state_changed"
	EventEngineLoading    EventType = "engine_loading"
	EventEngineReady      EventType = "engine_ready"
	EventFragmentAppended EventType = "fragment_appended"
	EventSpeakerChanged   EventType = "speaker_changed"
	EventNotesReady       EventType = "notes_ready"
	EventError            EventType = "error"
)

// Event is a fire-and-forget notification. Delivery is best-effort: a
// slow subscriber drops events rather than stalling the pipeline.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriber channels are buffered; Publish never blocks.
const subscriberBuffer = 64

// Bus fans events out to any number of subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// New creates an event bus with no subscribers.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new listener. The returned channel is closed
// when the bus is closed.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers evt to all subscribers without blocking. Events for
// subscribers with a full buffer are dropped.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
