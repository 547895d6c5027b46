// Package app holds the application-wide tasks.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/saga"
)

// Registration is one installed background update worker.
type Registration interface {
	Scope() string
	Unregister(ctx context.Context) error
}

// Registry lists the installed update worker registrations.
type Registry interface {
	Registrations(ctx context.Context) ([]Registration, error)
}

// Reloader performs the full application reload.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context) error

func (f ReloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// ReloadState is the progress of one reload.
type ReloadState int

const (
	ReloadIdle ReloadState = iota
	ReloadUnregistering
	ReloadReloading
)

var reloadTransitions = map[ReloadState]ReloadState{
	ReloadIdle:          ReloadUnregistering,
	ReloadUnregistering: ReloadReloading,
}

// String returns the string form of ReloadState.
func (s ReloadState) String() string {
	switch s {
	case ReloadIdle:
		return "idle"
	case ReloadUnregistering:
		return "unregistering"
	case ReloadReloading:
		return "reloading"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is terminal.
func (s ReloadState) IsTerminal() bool {
	return s == ReloadReloading
}

// CanTransitionTo checks whether a state transition is valid.
func (s ReloadState) CanTransitionTo(next ReloadState) bool {
	to, ok := reloadTransitions[s]
	return ok && to == next
}

// TransitionFunc observes reload state changes.
type TransitionFunc func(from, to ReloadState)

// ReloadOption customizes the reload watcher.
type ReloadOption func(*Reload)

// WithTransitionHook observes every state change of every reload.
func WithTransitionHook(fn TransitionFunc) ReloadOption {
	return func(r *Reload) {
		if fn != nil {
			r.onTransition = fn
		}
	}
}

// Reload unregisters every update worker and reloads the application when a
// reload is requested.
type Reload struct {
	registry     Registry
	reloader     Reloader
	onTransition TransitionFunc
}

// NewReload creates the reload watcher.
func NewReload(registry Registry, reloader Reloader, opts ...ReloadOption) (*Reload, error) {
	if registry == nil {
		return nil, fmt.Errorf("app: registry is required")
	}
	if reloader == nil {
		return nil, fmt.Errorf("app: reloader is required")
	}
	r := &Reload{
		registry:     registry,
		reloader:     reloader,
		onTransition: func(ReloadState, ReloadState) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Register adds the reload watcher to s.
func (r *Reload) Register(s *saga.Scheduler) error {
	return s.TakeEvery("app.reload", action.Is(action.TypeAppReload), r.run)
}

func (r *Reload) run(t *saga.Task, _ action.Action) error {
	state := ReloadIdle
	transition := func(next ReloadState) error {
		if !state.CanTransitionTo(next) {
			return fmt.Errorf("app: invalid reload transition %s -> %s", state, next)
		}
		t.Logger().Debug("reload state changed", "from", state.String(), "to", next.String())
		r.onTransition(state, next)
		state = next
		return nil
	}

	if err := transition(ReloadUnregistering); err != nil {
		return err
	}
	registrations, err := saga.CallResult(t, r.registry.Registrations)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	// Unregister calls are independent; the reload waits for all of them.
	_, err = t.Call(func(ctx context.Context) (any, error) {
		// A plain group: one failed unregister must not cancel the others.
		var g errgroup.Group
		for _, reg := range registrations {
			g.Go(func() error {
				if err := reg.Unregister(ctx); err != nil {
					return fmt.Errorf("unregister %s: %w", reg.Scope(), err)
				}
				return nil
			})
		}
		return nil, g.Wait()
	})
	if err != nil {
		return err
	}
	t.Logger().Info("update workers unregistered", "count", len(registrations))

	if err := transition(ReloadReloading); err != nil {
		return err
	}
	if _, err := t.Call(func(ctx context.Context) (any, error) {
		return nil, r.reloader.Reload(ctx)
	}); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}
