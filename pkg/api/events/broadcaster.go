// Package events fans toast stack changes out to websocket subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/actiond/pkg/toast"
)

// Event is one message of the toast stream. Seq increases by one per
// broadcast so a client can tell when it missed events.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

const defaultBuffer = 16

// Broadcaster delivers events to in-process subscribers without blocking.
// A subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel receiving every later event. buffer <= 0
// selects a small default.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown or
// already removed channels are ignored.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Broadcast stamps event and offers it to every subscriber.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Seq = b.seq.Add(1)

	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send. They never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped on full buffers.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// ToastPayload is the payload of toast events.
type ToastPayload struct {
	Toast          toast.Toast `json:"toast"`
	TimeoutExpired bool        `json:"timeout_expired,omitempty"`
}

// BroadcastToast emits a toast stack change.
func (b *Broadcaster) BroadcastToast(ev toast.Event) {
	b.Broadcast(Event{
		Type:    string(ev.Type),
		Payload: ToastPayload{Toast: ev.Toast, TimeoutExpired: ev.TimeoutExpired},
	})
}

// Attach forwards every change of stack to subscribers until the returned
// function is called.
func (b *Broadcaster) Attach(stack *toast.Stack) func() {
	return stack.Subscribe(b.BroadcastToast)
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
