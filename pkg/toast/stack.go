package toast

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no visible toast has the requested key.
	ErrNotFound = errors.New("toast not found")
	// ErrNoAction is returned when clicking a toast that has no clickable action.
	ErrNoAction = errors.New("toast has no clickable action")
)

// EventType identifies a change of the visible toast set.
type EventType string

const (
	EventShown     EventType = "toast.shown"
	EventUpdated   EventType = "toast.updated"
	EventDismissed EventType = "toast.dismissed"
)

// Event describes a change of the visible toast set.
type Event struct {
	Type           EventType `json:"type"`
	Toast          Toast     `json:"toast"`
	TimeoutExpired bool      `json:"timeout_expired,omitempty"`
}

// Listener observes toast events. Listeners run outside the stack lock and
// must not block.
type Listener func(Event)

type entry struct {
	key   string
	props Props
	shown time.Time
	timer *time.Timer
}

func (e *entry) snapshot() Toast {
	t := Toast{
		Key:     e.key,
		Intent:  e.props.Intent,
		Icon:    e.props.Icon,
		Message: e.props.Message,
		ShownAt: e.shown,
		Timeout: e.props.Timeout.Milliseconds(),
	}
	if e.props.Action != nil {
		a := *e.props.Action
		t.Action = &a
		t.Clickable = a.OnClick != nil
	}
	return t
}

// StackOption customizes a Stack.
type StackOption func(*Stack)

// WithMaxToasts bounds the number of visible toasts; the oldest is dismissed
// when a new one would exceed it. Zero means unbounded.
func WithMaxToasts(max int) StackOption {
	return func(s *Stack) {
		if max >= 0 {
			s.maxToasts = max
		}
	}
}

// WithNow overrides the clock used for ShownAt timestamps.
func WithNow(now func() time.Time) StackOption {
	return func(s *Stack) {
		if now != nil {
			s.now = now
		}
	}
}

// Stack is an in-memory Toaster. Toasts are kept in show order.
type Stack struct {
	mu        sync.Mutex
	toasts    []*entry
	listeners map[int]Listener
	nextID    int
	maxToasts int
	now       func() time.Time
}

var _ Toaster = (*Stack)(nil)

// NewStack creates an empty toast stack.
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Show shows or updates a toast.
func (s *Stack) Show(props Props, key string) string {
	if key == "" {
		key = "toast-" + uuid.NewString()
	}

	s.mu.Lock()
	var (
		ev      Event
		evicted []*entry
	)
	if e := s.find(key); e != nil {
		stopTimer(e)
		e.props = props
		s.arm(e)
		ev = Event{Type: EventUpdated, Toast: e.snapshot()}
	} else {
		e := &entry{key: key, props: props, shown: s.now().UTC()}
		s.toasts = append(s.toasts, e)
		s.arm(e)
		ev = Event{Type: EventShown, Toast: e.snapshot()}
		for s.maxToasts > 0 && len(s.toasts) > s.maxToasts {
			evicted = append(evicted, s.removeAt(0))
		}
	}
	s.mu.Unlock()

	for _, e := range evicted {
		s.finish(e, false)
	}
	s.emit(ev)
	return key
}

// Dismiss removes the toast with key.
func (s *Stack) Dismiss(key string) {
	s.dismiss(key, false)
}

// Keys lists visible keys in show order.
func (s *Stack) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.toasts))
	for _, e := range s.toasts {
		keys = append(keys, e.key)
	}
	return keys
}

// List returns snapshots of the visible toasts in show order.
func (s *Stack) List() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, 0, len(s.toasts))
	for _, e := range s.toasts {
		out = append(out, e.snapshot())
	}
	return out
}

// Get returns the snapshot of one visible toast.
func (s *Stack) Get(key string) (Toast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(key)
	if e == nil {
		return Toast{}, false
	}
	return e.snapshot(), true
}

// Click runs the action handler of a toast and dismisses it, the way a user
// clicking the toast button would.
func (s *Stack) Click(key string) error {
	s.mu.Lock()
	e := s.find(key)
	if e == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	if e.props.Action == nil || e.props.Action.OnClick == nil {
		s.mu.Unlock()
		return ErrNoAction
	}
	onClick := e.props.Action.OnClick
	s.mu.Unlock()

	onClick()
	s.dismiss(key, false)
	return nil
}

// Clear dismisses every visible toast.
func (s *Stack) Clear() {
	for _, key := range s.Keys() {
		s.dismiss(key, false)
	}
}

// Subscribe registers a listener and returns a function removing it.
func (s *Stack) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Stack) dismiss(key string, timeoutExpired bool) {
	s.mu.Lock()
	idx := s.index(key)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	e := s.removeAt(idx)
	s.mu.Unlock()

	s.finish(e, timeoutExpired)
}

// finish runs the dismiss hook and notifies listeners for a removed entry.
func (s *Stack) finish(e *entry, timeoutExpired bool) {
	stopTimer(e)
	if e.props.OnDismiss != nil {
		e.props.OnDismiss(timeoutExpired)
	}
	s.emit(Event{Type: EventDismissed, Toast: e.snapshot(), TimeoutExpired: timeoutExpired})
}

func (s *Stack) emit(ev Event) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// arm starts the expiry timer for e. Caller holds s.mu.
func (s *Stack) arm(e *entry) {
	if e.props.Timeout <= 0 {
		return
	}
	key := e.key
	var timer *time.Timer
	timer = time.AfterFunc(e.props.Timeout, func() {
		s.mu.Lock()
		cur := s.find(key)
		stale := cur == nil || cur.timer != timer
		s.mu.Unlock()
		if !stale {
			s.dismiss(key, true)
		}
	})
	e.timer = timer
}

func stopTimer(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
}

func (s *Stack) find(key string) *entry {
	if idx := s.index(key); idx >= 0 {
		return s.toasts[idx]
	}
	return nil
}

func (s *Stack) index(key string) int {
	for i, e := range s.toasts {
		if e.key == key {
			return i
		}
	}
	return -1
}

func (s *Stack) removeAt(idx int) *entry {
	e := s.toasts[idx]
	s.toasts = append(s.toasts[:idx], s.toasts[idx+1:]...)
	return e
}
