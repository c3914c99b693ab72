// Package signal broadcasts provider lifecycle events to any number of
// subscribers without ever blocking the publisher.
package signal

import (
	"log/slog"
	"sync"
)

// Event is a lifecycle notification. It carries no payload.
type Event int

const (
	// Stale is published when a read observes an expired bundle.
	Stale Event = iota + 1
	// ContextChanged is published after a successful evaluate.
	ContextChanged
)

func (e Event) String() string {
	switch e {
	case Stale:
		return "stale"
	case ContextChanged:
		return "context_changed"
	default:
		return "unknown"
	}
}

// DefaultBufferSize is the per-subscriber channel buffer used when
// Subscribe is given a size below one.
const DefaultBufferSize = 16

// Broadcaster fans published values out to subscribers. A subscriber whose
// buffer is full misses the value; the publisher never waits.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]chan T
	closed      bool
	logger      *slog.Logger
}

// New returns an open broadcaster. A nil logger falls back to slog.Default.
func New[T any](logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		subscribers: make(map[uint64]chan T),
		logger:      logger,
	}
}

// Subscribe registers a listener and returns its channel and an unsubscribe
// func. The channel is closed by unsubscribe or by Close. Subscribing to a
// closed broadcaster returns an already closed channel.
func (b *Broadcaster[T]) Subscribe(bufferSize int) (<-chan T, func()) {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan T, bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(c)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers v to every subscriber with buffer space and returns the
// number of subscribers that received it.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for id, ch := range b.subscribers {
		select {
		case ch <- v:
			delivered++
		default:
			b.logger.Debug("event dropped for slow subscriber", "subscriber_id", id, "event", v)
		}
	}
	return delivered
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	n := len(b.subscribers)
	b.mu.RUnlock()
	return n
}

// Close closes every subscriber channel. Safe to call more than once.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
