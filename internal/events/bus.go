// Package events is the in-process publish/subscribe channel between the
// processing loop and live observers (the SSE endpoint, tests).
//
// Delivery is synchronous and at-most-once per currently registered handler.
// There is no buffering or replay: a handler registered after an event fires
// never sees it, so new observers should request a snapshot via
// BroadcastState on connection.
package events

import (
	"sync"

	"lectern/internal/queue"
)

// Kind identifies an event variant.
type Kind string

const (
	KindState        Kind = "state"
	KindProgress     Kind = "progress"
	KindJobComplete  Kind = "jobComplete"
	KindJobFailed    Kind = "jobFailed"
	KindJobCancelled Kind = "jobCancelled"
)

// Event carries one queue occurrence. State is set for state events, Job for
// progress and terminal events, Progress for progress events, and Error for
// failures.
type Event struct {
	Kind     Kind            `json:"kind"`
	State    *queue.State    `json:"state,omitempty"`
	Job      *queue.Job      `json:"job,omitempty"`
	Progress *queue.Progress `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Handler receives published events.
type Handler func(Event)

// Bus fans events out to subscribed handlers.
type Bus struct {
	store *queue.Store

	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewBus constructs a bus over the given store. The store is only used by
// BroadcastState.
func NewBus(store *queue.Store) *Bus {
	return &Bus{
		store:    store,
		handlers: make(map[uint64]Handler),
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribe is idempotent.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Emit delivers the event to every handler registered at call time. Handlers
// are iterated from a snapshot, so subscribing or unsubscribing during
// delivery cannot corrupt iteration.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	snapshot := make([]Handler, 0, len(b.handlers))
	for _, handler := range b.handlers {
		snapshot = append(snapshot, handler)
	}
	b.mu.Unlock()

	for _, handler := range snapshot {
		handler(event)
	}
}

// BroadcastState loads a fresh queue snapshot and emits it as a state event.
// Used after state was mutated outside the loop, e.g. a direct delete.
func (b *Bus) BroadcastState() {
	if b.store == nil {
		return
	}
	b.Emit(Event{Kind: KindState, State: b.store.Load()})
}
