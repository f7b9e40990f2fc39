package core

import (
	"log"
	"sync"
)

// Handler processes a single event. A non-nil error is reported by the bus
// but never propagated to the publisher or to other handlers.
type Handler func(event Event) error

// Bus is the synchronous in-process publish/subscribe dispatcher at the heart
// of LemOS. Publish invokes every handler registered for the event's type, in
// registration order, before returning.
//
// Module isolation is a load-bearing property: a handler that fails (error or
// panic) must never break delivery to the handlers after it. The bus catches
// and logs per-handler failures instead of re-raising them.
//
// Handlers registered during a dispatch are not invoked for that same
// in-flight publish: Publish works from a snapshot of the registration list
// taken at dispatch start. This is deliberate, to keep reentrant
// subscribe-from-handler code from observing half-delivered events.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]subscriber
}

type subscriber struct {
	id uint64
	fn Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]subscriber),
	}
}

// Subscribe registers a handler for an event type. Handlers for the same
// type are invoked in the order they were registered. The returned
// Subscription removes the registration when closed.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{
		id: b.nextID,
		fn: handler,
	})

	return &Subscription{
		bus:       b,
		eventType: eventType,
		id:        b.nextID,
	}
}

// Publish delivers the event to every handler currently registered for
// event.Type, synchronously, and returns once the last handler has returned.
// Events of other types are unaffected; there is no ordering guarantee across
// event types.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	registered := b.handlers[event.Type]
	snapshot := make([]subscriber, len(registered))
	copy(snapshot, registered)
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.dispatch(sub, event)
	}
}

// dispatch invokes a single handler, containing both returned errors and
// panics so delivery continues to the remaining handlers.
func (b *Bus) dispatch(sub subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Bus] handler panic for %q: %v", event.Type, r)
		}
	}()

	if err := sub.fn(event); err != nil {
		log.Printf("[Bus] handler error for %q: %v", event.Type, err)
	}
}

// unsubscribe removes a registration by id. Unknown ids are a no-op.
func (b *Bus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Subscription is a handle to a single bus registration.
// Safe to close multiple times - subsequent calls are no-ops.
type Subscription struct {
	bus       *Bus
	eventType string
	id        uint64
	once      sync.Once
}

// Close removes the registration from the bus. Implements io.Closer.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.unsubscribe(s.eventType, s.id)
	})
	return nil
}
