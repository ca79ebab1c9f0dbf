// Package bus provides an internal event bus for component communication
package bus

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies different event types
type EventType string

// Event types for the presence engine
const (
	// Output channel events
	EventTypeEmotionChanged EventType = "presence.emotion_changed"
	EventTypeAudioCue       EventType = "presence.audio_cue"
	EventTypeHapticPulse    EventType = "presence.haptic_pulse"

	// Derived state events
	EventTypeContextChanged EventType = "presence.context_changed"
	EventTypeFlowChanged    EventType = "presence.flow_changed"

	// Classification events
	EventTypeUserClassified     EventType = "presence.user_classified"
	EventTypeResponseClassified EventType = "presence.response_classified"

	// Preference events
	EventTypePreferencesChanged EventType = "presence.preferences_changed"
)

// EventTypes returns every known event type in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventTypeEmotionChanged, EventTypeAudioCue, EventTypeHapticPulse,
		EventTypeContextChanged, EventTypeFlowChanged,
		EventTypeUserClassified, EventTypeResponseClassified,
		EventTypePreferencesChanged,
	}
}

// Event represents a bus event
type Event struct {
	ID   string         `json:"id"`
	Type EventType      `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a new event with a unique ID.
func NewEvent(eventType EventType, at time.Time, data map[string]any) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Time: at, Data: data}
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus. It also retains the last event of
// each type so late subscribers can catch up.
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	all      []subscription
	last     map[EventType]Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
		last:     make(map[EventType]Event),
	}
}

// Subscribe adds a handler for an event type. The returned func removes it.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[eventType] = remove(b.handlers[eventType], id)
	}
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// SubscribeAll adds a handler that receives every event.
func (b *EventBus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.collect(event) {
		// Call handlers in goroutines to avoid blocking
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete.
// Consecutive PublishSync calls from one goroutine are therefore delivered in order.
func (b *EventBus) PublishSync(event Event) {
	handlers := b.collect(event)

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Last returns the most recent event of the given type.
func (b *EventBus) Last(eventType EventType) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.last[eventType]
	return ev, ok
}

// Snapshot returns the most recent event of every type that has been
// published, oldest first.
func (b *EventBus) Snapshot() []Event {
	b.mu.RLock()
	out := make([]Event, 0, len(b.last))
	for _, ev := range b.last {
		out = append(out, ev)
	}
	b.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Clear removes all handlers and retained events
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
	b.all = nil
	b.last = make(map[EventType]Event)
}

func (b *EventBus) collect(event Event) []Handler {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last[event.Type] = event

	subs := b.handlers[event.Type]
	handlers := make([]Handler, 0, len(subs)+len(b.all))
	for _, s := range subs {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.all {
		handlers = append(handlers, s.handler)
	}
	return handlers
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
