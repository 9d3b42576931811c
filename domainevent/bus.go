package domainevent

import (
	"sync"

	"github.com/h4mn/skybridge/logger"
)

// Handler processes one published Event. A Handler should not block
// indefinitely; Publish runs each handler in its own goroutine but does not
// itself impose a timeout.
type Handler func(Event)

// Bus is a workspace-scoped registry of (event type -> handlers). It is
// safe for concurrent Subscribe and Publish calls.
type Bus struct {
	log logger.Logger

	mu       sync.RWMutex
	handlers map[Type][]Handler
}

// NewBus returns an empty Bus that logs handler panics through l.
func NewBus(l logger.Logger) *Bus {
	return &Bus{
		log:      l,
		handlers: make(map[Type][]Handler),
	}
}

// Subscribe registers handler to run asynchronously whenever an event of
// eventType is published. Handlers for the same event type run
// concurrently; order between them is not specified.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish schedules every registered handler for event.EventType and
// returns once they have been scheduled — not once they have completed. A
// panicking handler is recovered and logged; it never
// affects sibling handlers or the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	// Snapshot under the read lock so a concurrent Subscribe doesn't race
	// with iteration, and so Publish never blocks a later Subscribe.
	handlers := make([]Handler, len(b.handlers[event.EventType]))
	copy(handlers, b.handlers[event.EventType])
	b.mu.RUnlock()

	for _, h := range handlers {
		go b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("domainevent: handler for %s panicked: %v", event.EventType, r)
		}
	}()
	h(event)
}
