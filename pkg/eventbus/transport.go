package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goclaw/actiond/pkg/action"
)

// Message is a delivered remote message.
type Message struct {
	Subject   string
	Payload   []byte
	Timestamp time.Time
}

// Subscription is a stream of remote messages.
type Subscription interface {
	C() <-chan Message
	Close() error
}

// RemoteTransport publishes and subscribes by subject pattern.
type RemoteTransport interface {
	Transport
	Subscribe(ctx context.Context, pattern string, buffer int) (Subscription, error)
}

type memorySubscription struct {
	pattern string
	ch      chan Message
	bus     *MemoryTransport
	once    sync.Once
}

func (s *memorySubscription) C() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.unsubscribe(s.pattern, s.ch)
		close(s.ch)
	})
	return nil
}

// MemoryTransport is an in-memory RemoteTransport for tests and single-process setups.
type MemoryTransport struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Message
}

var _ RemoteTransport = (*MemoryTransport)(nil)

// NewMemoryTransport creates an in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		subscribers: make(map[string][]chan Message),
	}
}

// Publish publishes to all matching subscriptions. Slow subscribers drop messages.
func (b *MemoryTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}

	b.mu.RLock()
	targets := make([]chan Message, 0)
	for pattern, channels := range b.subscribers {
		if !action.SubjectMatches(pattern, subject) {
			continue
		}
		targets = append(targets, channels...)
	}
	b.mu.RUnlock()

	msg := Message{
		Subject:   subject,
		Payload:   append([]byte(nil), payload...),
		Timestamp: time.Now().UTC(),
	}
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe subscribes by subject pattern.
func (b *MemoryTransport) Subscribe(ctx context.Context, pattern string, buffer int) (Subscription, error) {
	if pattern == "" {
		return nil, fmt.Errorf("eventbus: subscription pattern cannot be empty")
	}
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Message, buffer)

	b.mu.Lock()
	b.subscribers[pattern] = append(b.subscribers[pattern], ch)
	b.mu.Unlock()

	return &memorySubscription{
		pattern: pattern,
		ch:      ch,
		bus:     b,
	}, nil
}

func (b *MemoryTransport) unsubscribe(pattern string, target chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	channels := b.subscribers[pattern]
	filtered := channels[:0]
	for _, ch := range channels {
		if ch == target {
			continue
		}
		filtered = append(filtered, ch)
	}
	if len(filtered) == 0 {
		delete(b.subscribers, pattern)
		return
	}
	b.subscribers[pattern] = filtered
}
