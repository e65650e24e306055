// Package eventbus fans live timeline events out to conversation observers.
//
// Delivery is at-most-once and best-effort: the timeline is advisory and
// UI-facing, so a slow or absent subscriber loses events instead of blocking
// persona execution or the HTTP layer.
package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"agentorg/internal/domain"
)

// subscriberBuffer is the per-subscriber queue depth. Events beyond it are
// dropped rather than blocking the emitter.
const subscriberBuffer = 64

// Subscription is one observer's private ordered event queue.
type Subscription struct {
	id uint64
	C  chan domain.Event
}

// Broadcaster owns per-conversation subscriber sets. Multiple subscribers to
// the same conversation each receive every event independently.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription
	nextID uint64
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string][]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a new observer for the conversation and returns its
// subscription handle.
func (b *Broadcaster) Subscribe(conversationID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id: b.nextID,
		C:  make(chan domain.Event, subscriberBuffer),
	}
	b.subs[conversationID] = append(b.subs[conversationID], sub)
	b.logger.Debug("event subscriber added", "conversation_id", conversationID)
	return sub
}

// Unsubscribe removes the handle from the conversation's subscriber set and
// drops the set once empty. Idempotent, and safe to call concurrently with an
// in-flight Emit.
func (b *Broadcaster) Unsubscribe(conversationID string, sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[conversationID]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[conversationID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[conversationID]) == 0 {
		delete(b.subs, conversationID)
	}
}

// Emit stamps the event with the current time and pushes a copy to every
// current subscriber of the conversation. The send is non-blocking: events
// for a full buffer or an unobserved conversation are dropped. Safe to call
// from any goroutine, including one blocked inside a persona execution.
func (b *Broadcaster) Emit(conversationID string, event domain.Event) {
	event.Timestamp = time.Now().UTC()

	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs[conversationID]))
	copy(subs, b.subs[conversationID])
	b.mu.Unlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers, dropping event",
			"conversation_id", conversationID,
			"event", string(event.Type),
		)
		return
	}

	for _, sub := range subs {
		select {
		case sub.C <- event:
		default:
			b.logger.Debug("subscriber buffer full, dropping event",
				"conversation_id", conversationID,
				"event", string(event.Type),
			)
		}
	}
}
