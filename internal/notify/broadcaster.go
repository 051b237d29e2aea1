package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

// Broadcaster delivers events in-process to subscribers of a session.
// Slow subscribers lose events rather than block publishers.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe returns a channel of events for sessionID and a cancel func
// that closes it.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[uint64]chan Event)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Broadcaster) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
