// Package bus provides in-process publish/subscribe fan-out of live session
// events, filtered per session.
package bus

import (
	"log"
	"sync"

	"github.com/replaykit/replayd/internal/domain"
)

const subscriberBuffer = 256

// Subscriber receives the events of one session. C is closed when the
// subscriber is dropped, either by Unsubscribe or because it fell too far
// behind.
type Subscriber struct {
	C chan domain.StoredEvent

	sessionID string
	closed    bool
}

// Bus fans out published events to the subscribers of each session. Publish
// order is preserved per session; no ordering holds across sessions. Safe
// for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber for a session's events.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		C:         make(chan domain.StoredEvent, subscriberBuffer),
		sessionID: sessionID,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscriber]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(sub)
}

// Publish delivers an event to every subscriber of its session. A subscriber
// whose buffer is full is dropped rather than blocking the publisher.
func (b *Bus) Publish(event domain.StoredEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[event.SessionID] {
		select {
		case sub.C <- event:
		default:
			log.Printf("WARN: subscriber for session %s fell behind, dropping", event.SessionID)
			b.drop(sub)
		}
	}
}

// drop must be called with b.mu held.
func (b *Bus) drop(sub *Subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	if set := b.subs[sub.sessionID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.sessionID)
		}
	}
	close(sub.C)
}
