package storage

import (
	"context"

	"github.com/goclaw/actiond/pkg/app"
)

// Registry adapts a store to the registry the reload task unregisters from.
func Registry(store Store) app.Registry {
	return &registry{store: store}
}

type registry struct {
	store Store
}

func (r *registry) Registrations(ctx context.Context) ([]app.Registration, error) {
	regs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]app.Registration, 0, len(regs))
	for _, reg := range regs {
		out = append(out, &storedRegistration{store: r.store, scope: reg.Scope})
	}
	return out, nil
}

type storedRegistration struct {
	store Store
	scope string
}

func (r *storedRegistration) Scope() string { return r.scope }

func (r *storedRegistration) Unregister(ctx context.Context) error {
	return r.store.Unregister(ctx, r.scope)
}
