package saga

import (
	"fmt"

	"github.com/goclaw/actiond/pkg/action"
)

// Policy decides what happens to running instances when a watcher matches again.
type Policy int

const (
	// PolicyEvery spawns a new concurrent instance per match.
	PolicyEvery Policy = iota
	// PolicyLatest cancels the still running previous instance first.
	PolicyLatest
)

// String returns the string form of Policy.
func (p Policy) String() string {
	switch p {
	case PolicyEvery:
		return "every"
	case PolicyLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// Handler is the body of a watcher instance, started with the matching action.
type Handler func(t *Task, a action.Action) error

// Body is the body of a forked or spawned task.
type Body func(t *Task) error

type watcher struct {
	name    string
	matcher action.Matcher
	handler Handler
	policy  Policy

	// latest is the previous instance for PolicyLatest. Loop-owned.
	latest *Task
}

type fork struct {
	name string
	body Body
}

// WatcherInfo describes a registered watcher.
type WatcherInfo struct {
	Name    string `json:"name"`
	Matcher string `json:"matcher"`
	Policy  string `json:"policy"`
}

// TakeEvery registers a watcher spawning a new instance of h for every
// matching action.
func (s *Scheduler) TakeEvery(name string, m action.Matcher, h Handler) error {
	return s.register(name, m, h, PolicyEvery)
}

// TakeLatest registers a watcher that cancels its previous instance, if still
// running, before spawning the next one.
func (s *Scheduler) TakeLatest(name string, m action.Matcher, h Handler) error {
	return s.register(name, m, h, PolicyLatest)
}

// Fork registers a task started once when Run begins.
func (s *Scheduler) Fork(name string, body Body) error {
	if name == "" {
		return fmt.Errorf("saga: fork name is required")
	}
	if body == nil {
		return fmt.Errorf("saga: fork %s: body cannot be nil", name)
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if s.phase != phaseIdle {
		return ErrAlreadyRunning
	}
	s.forks = append(s.forks, fork{name: name, body: body})
	return nil
}

// Watchers lists the registered watchers in registration order.
func (s *Scheduler) Watchers() []WatcherInfo {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	out := make([]WatcherInfo, 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, WatcherInfo{Name: w.name, Matcher: w.matcher.String(), Policy: w.policy.String()})
	}
	return out
}

func (s *Scheduler) register(name string, m action.Matcher, h Handler, policy Policy) error {
	if name == "" {
		return fmt.Errorf("saga: watcher name is required")
	}
	if m == nil {
		return fmt.Errorf("saga: watcher %s: matcher cannot be nil", name)
	}
	if h == nil {
		return fmt.Errorf("saga: watcher %s: handler cannot be nil", name)
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if s.phase != phaseIdle {
		return ErrAlreadyRunning
	}
	for _, w := range s.watchers {
		if w.name == name {
			return fmt.Errorf("saga: watcher %s already registered", name)
		}
	}
	s.watchers = append(s.watchers, &watcher{name: name, matcher: m, handler: h, policy: policy})
	return nil
}

// spawnWatcher runs on the loop for every action matching w.
func (s *Scheduler) spawnWatcher(w *watcher, a action.Action) {
	if w.policy == PolicyLatest && w.latest != nil && !w.latest.state.IsTerminal() {
		_ = s.cancelTask(w.latest)
	}
	t := s.newTask(w.name, a, func(t *Task) error { return w.handler(t, a) }, nil)
	if w.policy == PolicyLatest {
		w.latest = t
	}
	s.start(t)
}
