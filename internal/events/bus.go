package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Event types emitted for UI consumers.
const (
	ProfileUpdated   = "profile_updated"
	ProductsUpdated  = "products_updated"
	DonationsUpdated = "donations_updated"
	MessagesUpdated  = "messages_updated"
)

// Event is a coarse-grained change notification. UserIDs lists the users
// whose view is affected.
type Event struct {
	Type          string    `json:"type"`
	UserIDs       []string  `json:"user_ids"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ThreadID      string    `json:"thread_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(ctx context.Context, evt Event)

// Bus is an in-process observer registry.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish delivers evt to every subscriber in registration order.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, evt)
	}
}
