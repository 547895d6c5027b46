// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/actiond/pkg/storage"
)

var errClosed = errors.New("memory storage closed")

// MemoryStorage implements the Store interface using an in-memory map.
type MemoryStorage struct {
	mu            sync.RWMutex
	registrations map[string]*storage.Registration
	closed        bool
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		registrations: make(map[string]*storage.Registration),
	}
}

// Register saves a registration to memory.
func (m *MemoryStorage) Register(ctx context.Context, r *storage.Registration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &storage.StorageUnavailableError{Cause: errClosed}
	}

	// Copy to avoid external modifications
	copied := *r
	if copied.InstalledAt.IsZero() {
		copied.InstalledAt = time.Now().UTC()
	}
	m.registrations[r.Scope] = &copied
	return nil
}

// Get retrieves a registration by scope.
func (m *MemoryStorage) Get(ctx context.Context, scope string) (*storage.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, &storage.StorageUnavailableError{Cause: errClosed}
	}

	r, exists := m.registrations[scope]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "registration", ID: scope}
	}
	copied := *r
	return &copied, nil
}

// List lists the registrations ordered by scope.
func (m *MemoryStorage) List(ctx context.Context) ([]*storage.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, &storage.StorageUnavailableError{Cause: errClosed}
	}

	result := make([]*storage.Registration, 0, len(m.registrations))
	for _, r := range m.registrations {
		copied := *r
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Scope < result[j].Scope })
	return result, nil
}

// Unregister deletes a registration.
func (m *MemoryStorage) Unregister(ctx context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &storage.StorageUnavailableError{Cause: errClosed}
	}

	if _, exists := m.registrations[scope]; !exists {
		return &storage.NotFoundError{EntityType: "registration", ID: scope}
	}
	delete(m.registrations, scope)
	return nil
}

// Close marks the storage closed. Later operations fail.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
