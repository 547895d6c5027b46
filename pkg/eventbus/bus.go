// Package eventbus carries actions between the components of actiond.
//
// Bus is the in-process stream: publish is synchronous and delivers to the
// subscribers registered at publish time, in subscription order. The remote
// half of the package (Envelope, Publisher, EnvelopeConsumer, the transports
// and Bridge) moves actions between processes.
package eventbus

import (
	"sync"

	"github.com/goclaw/actiond/pkg/action"
)

// Handler receives a published action.
type Handler func(a action.Action)

type subscription struct {
	id      uint64
	matcher action.Matcher
	handler Handler
	once    bool
	active  bool
}

// Bus is an ordered, synchronous, in-memory action stream. It keeps no history.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	nextID uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a persistent handler and returns a function removing it.
func (b *Bus) Subscribe(m action.Matcher, h Handler) func() {
	return b.add(m, h, false)
}

// SubscribeOnce registers a handler removed before it runs for the first
// matching action.
func (b *Bus) SubscribeOnce(m action.Matcher, h Handler) func() {
	return b.add(m, h, true)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers a to every matching subscriber before returning.
// Subscriptions added while a publish is in progress do not see that action;
// subscriptions removed while it is in progress are skipped.
func (b *Bus) Publish(a action.Action) int {
	if a == nil {
		return 0
	}
	t := a.Type()

	b.mu.Lock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	delivered := 0
	for _, sub := range snapshot {
		if sub.matcher != nil && !sub.matcher.Match(t) {
			continue
		}
		b.mu.Lock()
		if !sub.active {
			b.mu.Unlock()
			continue
		}
		if sub.once {
			b.removeLocked(sub.id)
		}
		b.mu.Unlock()

		sub.handler(a)
		delivered++
	}
	return delivered
}

func (b *Bus) add(m action.Matcher, h Handler, once bool) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		matcher: m,
		handler: h,
		once:    once,
		active:  true,
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var unsub sync.Once
	return func() {
		unsub.Do(func() {
			b.mu.Lock()
			b.removeLocked(sub.id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) removeLocked(id uint64) {
	for i, sub := range b.subs {
		if sub.id != id {
			continue
		}
		sub.active = false
		b.subs = append(b.subs[:i], b.subs[i+1:]...)
		return
	}
}
