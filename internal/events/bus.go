package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run on the emitter's goroutine and
// must not block.
type Handler func(event *Event)

// Bus is an in-process publish/subscribe hub
type Bus struct {
	handlers map[EventType]map[uint64]Handler
	log      zerolog.Logger
	nextID   uint64
	mu       sync.RWMutex
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[uint64]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type and returns a function that removes it
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// SubscribeMany registers one handler for several event types
func (b *Bus) SubscribeMany(eventTypes []EventType, handler Handler) func() {
	unsubscribers := make([]func(), 0, len(eventTypes))
	for _, eventType := range eventTypes {
		unsubscribers = append(unsubscribers, b.Subscribe(eventType, handler))
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

// Emit publishes an event to every handler subscribed to its type
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Timestamp: time.Now().UTC(),
		Data:      data,
		Type:      eventType,
		Module:    module,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[eventType]))
	for _, h := range b.handlers[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, event)
	}
}

// SubscriberCount returns the number of handlers for an event type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

func (b *Bus) dispatch(h Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}
