package audit

import (
	"sync"
	"sync/atomic"

	"github.com/smykla-skalski/hookgate/pkg/hook"
)

// DefaultSubscriberBuffer is the channel buffer used when Subscribe is given
// a non-positive size.
const DefaultSubscriberBuffer = 64

// Broadcaster is the live record stream. Delivery never blocks: a record
// that does not fit in a subscriber's buffer is dropped and counted.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[uint64]chan *hook.InvocationRecord
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan *hook.InvocationRecord)}
}

// Subscribe returns a channel receiving every subsequent record and a func
// that unsubscribes and closes it. On a closed Broadcaster the channel is
// already closed.
func (b *Broadcaster) Subscribe(buffer int) (<-chan *hook.InvocationRecord, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	ch := make(chan *hook.InvocationRecord, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)

		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Record delivers rec to every subscriber with room for it.
func (b *Broadcaster) Record(rec *hook.InvocationRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- rec:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of deliveries skipped because a subscriber
// was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscriber channel. Later records are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
