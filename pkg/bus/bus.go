// Package bus provides the process-local update bus that decouples state
// producers (ledger, recommendation cache) from consumers (handlers,
// analytics). Delivery is synchronous and in subscription order.
package bus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventItemDeleted          EventKind = "item-deleted"
	EventProjectUpdated       EventKind = "project-updated"
	EventProjectDeleted       EventKind = "project-deleted"
	EventAlternativesComputed EventKind = "alternatives-computed"
	EventPredictionsComputed  EventKind = "predictions-computed"
	EventRefreshRequested     EventKind = "refresh-requested"
	EventPreferencesUpdated   EventKind = "preferences-updated"
)

// Event is a tagged update notification. ItemID and ProjectID are set when
// relevant to the kind; Payload carries a snapshot of the data that changed.
type Event struct {
	Kind      EventKind
	ItemID    uuid.UUID
	ProjectID uuid.UUID
	Payload   any
}

// Listener receives published events. A listener that panics is isolated:
// the panic is recovered, logged, and remaining listeners still run.
type Listener func(Event)

// Token identifies a subscription for later removal.
type Token int

// Bus is a synchronous publish/subscribe hub. The zero value is not usable;
// construct with New.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Token]Listener
	order     []Token
	next      Token
	logger    *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		listeners: make(map[Token]Listener),
		logger:    logger.Named("bus"),
	}
}

// Subscribe registers a listener and returns its unsubscribe token.
func (b *Bus) Subscribe(fn Listener) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	token := b.next
	b.listeners[token] = fn
	b.order = append(b.order, token)
	return token
}

// Unsubscribe removes the listener for token. Unknown tokens are ignored.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[token]; !ok {
		return
	}
	delete(b.listeners, token)
	for i, t := range b.order {
		if t == token {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers event to every current subscriber synchronously, in
// subscription order. One listener's failure never prevents delivery to the
// rest and never crashes the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	tokens := make([]Token, len(b.order))
	copy(tokens, b.order)
	listeners := make(map[Token]Listener, len(b.listeners))
	for t, fn := range b.listeners {
		listeners[t] = fn
	}
	b.mu.RUnlock()

	for _, token := range tokens {
		fn, ok := listeners[token]
		if !ok {
			continue
		}
		b.deliver(token, fn, event)
	}
}

func (b *Bus) deliver(token Token, fn Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				zap.Int("token", int(token)),
				zap.String("kind", string(event.Kind)),
				zap.Any("panic", r))
		}
	}()
	fn(event)
}
