// Package storage persists the installed update worker registrations.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Store defines the persistent registration operations.
type Store interface {
	// Register saves r, replacing a registration with the same scope.
	Register(ctx context.Context, r *Registration) error
	Get(ctx context.Context, scope string) (*Registration, error)
	// List returns every registration ordered by scope.
	List(ctx context.Context) ([]*Registration, error)
	Unregister(ctx context.Context, scope string) error

	// Lifecycle
	Close() error
}

// Registration is a persisted update worker registration.
type Registration struct {
	Scope       string    `json:"scope"`
	ScriptURL   string    `json:"script_url"`
	InstalledAt time.Time `json:"installed_at"`
}

// Validate checks the required fields.
func (r *Registration) Validate() error {
	if r == nil {
		return fmt.Errorf("registration cannot be nil")
	}
	if r.Scope == "" {
		return fmt.Errorf("registration scope is required")
	}
	if r.ScriptURL == "" {
		return fmt.Errorf("registration %s: script url is required", r.Scope)
	}
	return nil
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
