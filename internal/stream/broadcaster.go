// Package stream fans newly persisted alerts out to live subscribers.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/disaster-reports/internal/models"
)

const subscriberBuffer = 32

type Broadcaster struct {
	subscribers map[uint64]chan models.AlertSummary
	nextID      atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan models.AlertSummary),
	}
}

// Subscribe registers a new listener. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan models.AlertSummary) {
	id := b.nextID.Add(1)
	ch := make(chan models.AlertSummary, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Broadcast delivers a to every subscriber with room in its buffer and
// returns how many received it.
func (b *Broadcaster) Broadcast(a models.AlertSummary) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subscribers {
		select {
		case ch <- a:
			delivered++
		default:
			// slow subscriber, drop
		}
	}
	return delivered
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels so open streams end.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
