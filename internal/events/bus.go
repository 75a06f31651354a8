// Package events provides a small in-process publish/subscribe bus used to
// drive the optional live-inbox websocket stream without coupling the core
// domain model to any particular transport.
package events

import "sync"

// BusEvent is anything the bus can publish. Domain events (message
// delivered, reservation conflict, thread state changed) each implement
// this with their own EventType constant.
type BusEvent interface {
	EventType() string
}

// EventBus fans a published BusEvent out to every handler subscribed to its
// event type plus every handler subscribed to all events. Publish is
// synchronous per handler, gated by a semaphore sized at construction so a
// slow subscriber (a stalled websocket write) can't unbound the number of
// concurrently-running handlers.
type EventBus struct {
	mu         sync.RWMutex
	handlers   map[string][]func(BusEvent)
	all        []func(BusEvent)
	handlerSem chan struct{}
}

// NewEventBus creates a bus that runs at most concurrency handlers at once.
func NewEventBus(concurrency int) *EventBus {
	if concurrency < 1 {
		concurrency = 16
	}
	return &EventBus{
		handlers:   make(map[string][]func(BusEvent)),
		handlerSem: make(chan struct{}, concurrency),
	}
}

// DefaultBus is the process-wide bus used by DefaultEmitter.
var DefaultBus = NewEventBus(16)

// Subscribe registers handler for events of the given type, returning an
// unsubscribe function.
func (b *EventBus) Subscribe(eventType string, handler func(BusEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	idx := len(b.handlers[eventType]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[eventType]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

// SubscribeAll registers handler for every event type published on the bus.
func (b *EventBus) SubscribeAll(handler func(BusEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
	idx := len(b.all) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.all) {
			b.all[idx] = nil
		}
	}
}

// Publish dispatches ev to every matching handler, in registration order,
// each gated by the bus's concurrency semaphore.
func (b *EventBus) Publish(ev BusEvent) {
	b.mu.RLock()
	typed := append([]func(BusEvent){}, b.handlers[ev.EventType()]...)
	all := append([]func(BusEvent){}, b.all...)
	b.mu.RUnlock()

	for _, h := range typed {
		b.call(h, ev)
	}
	for _, h := range all {
		b.call(h, ev)
	}
}

func (b *EventBus) call(h func(BusEvent), ev BusEvent) {
	if h == nil {
		return
	}
	b.handlerSem <- struct{}{}
	defer func() { <-b.handlerSem }()
	h(ev)
}
