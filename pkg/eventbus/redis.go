package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTransport is a Redis Pub/Sub backed RemoteTransport.
type RedisTransport struct {
	client redis.UniversalClient

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

var _ RemoteTransport = (*RedisTransport)(nil)

// NewRedisTransport creates a transport on client. The caller owns the client.
func NewRedisTransport(client redis.UniversalClient) *RedisTransport {
	return &RedisTransport{
		client: client,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

// Publish sends payload on the Redis channel named subject.
func (t *RedisTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("eventbus: redis transport is closed")
	}
	return t.client.Publish(ctx, subject, payload).Err()
}

// Subscribe pattern-subscribes to pattern. Subject wildcards are mapped to Redis globs.
func (t *RedisTransport) Subscribe(ctx context.Context, pattern string, buffer int) (Subscription, error) {
	if pattern == "" {
		return nil, fmt.Errorf("eventbus: subscription pattern cannot be empty")
	}
	if buffer <= 0 {
		buffer = 32
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("eventbus: redis transport is closed")
	}

	pubsub := t.client.PSubscribe(ctx, RedisGlob(pattern))
	// Wait for the subscription confirmation so publishes right after
	// Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("eventbus: redis subscribe %s: %w", pattern, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		transport: t,
		pubsub:    pubsub,
		ch:        make(chan Message, buffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	t.subs[sub] = struct{}{}
	go sub.forward(subCtx)
	return sub, nil
}

// Healthy checks if the Redis connection is alive.
func (t *RedisTransport) Healthy(ctx context.Context) bool {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return false
	}
	return t.client.Ping(ctx).Err() == nil
}

// Close closes every subscription. The client stays open.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*redisSubscription, 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

// RedisGlob converts a subject pattern to a Redis PSUBSCRIBE glob.
func RedisGlob(pattern string) string {
	if pattern == ">" {
		return "*"
	}
	pattern = strings.TrimSuffix(pattern, ">")
	parts := strings.Split(pattern, ".")
	for i, p := range parts {
		if p == "" && i == len(parts)-1 {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

type redisSubscription struct {
	transport *RedisTransport
	pubsub    *redis.PubSub
	ch        chan Message
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

func (s *redisSubscription) C() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
		<-s.done
		s.transport.mu.Lock()
		delete(s.transport.subs, s)
		s.transport.mu.Unlock()
	})
	return nil
}

func (s *redisSubscription) forward(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	redisCh := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			m := Message{
				Subject:   msg.Channel,
				Payload:   []byte(msg.Payload),
				Timestamp: time.Now().UTC(),
			}
			select {
			case s.ch <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}
