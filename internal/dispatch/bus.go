package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate name.
	ErrSubscriberExists = errors.New("subscriber already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown name.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrBusClosed is returned when subscribing to a closed bus.
	ErrBusClosed = errors.New("bus is closed")
)

// BusStats is a snapshot of the bus counters.
type BusStats struct {
	Published   uint64                     `json:"published"`
	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

// SubscriberStats counts deliveries to one subscriber.
type SubscriberStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	ch      chan NoteEvent
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus fans NoteEvents out to named subscribers. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	closed    bool
	published atomic.Uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers a subscriber with a buffer of the given size and
// returns its channel. The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe(name string, buffer int) (<-chan NoteEvent, error) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subs[name]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber{ch: make(chan NoteEvent, buffer)}
	b.subs[name] = sub
	return sub.ch, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subs[name]
	if !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subs, name)
	close(sub.ch)
	return nil
}

// Publish delivers ev to every subscriber that has room. Publishing to a
// closed bus does nothing.
func (b *Bus) Publish(ev NoteEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subs)),
	}
	for name, sub := range b.subs {
		stats.Subscribers[name] = SubscriberStats{
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		}
	}
	return stats
}

// Close closes every subscriber channel. Later Subscribe calls fail with
// ErrBusClosed and Publish becomes a no-op. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for name, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, name)
	}
}
