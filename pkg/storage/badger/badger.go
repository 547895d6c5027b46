// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/goclaw/actiond/pkg/storage"
)

const registrationPrefix = "registration:"

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements the Store interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("badger storage path is required")
	}
	opts := badger.DefaultOptions(config.Path).WithLogger(nil)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

func registrationKey(scope string) []byte {
	return []byte(registrationPrefix + scope)
}

// Serialization helpers
func serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// classify keeps typed storage errors and marks everything else as a backend failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var notFound *storage.NotFoundError
	var serialization *storage.SerializationError
	if errors.As(err, &notFound) || errors.As(err, &serialization) {
		return err
	}
	return &storage.StorageUnavailableError{Cause: err}
}

// Register saves a registration to Badger.
func (b *BadgerStorage) Register(ctx context.Context, r *storage.Registration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	copied := *r
	if copied.InstalledAt.IsZero() {
		copied.InstalledAt = time.Now().UTC()
	}
	data, err := serialize(&copied)
	if err != nil {
		return err
	}

	return classify(b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(registrationKey(r.Scope), data)
	}))
}

// Get retrieves a registration by scope.
func (b *BadgerStorage) Get(ctx context.Context, scope string) (*storage.Registration, error) {
	var r storage.Registration

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(registrationKey(scope))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{
					EntityType: "registration",
					ID:         scope,
				}
			}
			return err
		}

		return item.Value(func(val []byte) error {
			return deserialize(val, &r)
		})
	})
	if err != nil {
		return nil, classify(err)
	}

	return &r, nil
}

// List lists the registrations ordered by scope. Badger iterates keys in
// byte order, so no sort is needed.
func (b *BadgerStorage) List(ctx context.Context) ([]*storage.Registration, error) {
	registrations := []*storage.Registration{}

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(registrationPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r storage.Registration
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &r)
			}); err != nil {
				return err
			}
			registrations = append(registrations, &r)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return registrations, nil
}

// Unregister deletes a registration.
func (b *BadgerStorage) Unregister(ctx context.Context, scope string) error {
	return classify(b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(registrationKey(scope)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{
					EntityType: "registration",
					ID:         scope,
				}
			}
			return err
		}
		return txn.Delete(registrationKey(scope))
	}))
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	// Garbage collection before closing is best effort.
	_ = b.db.RunValueLogGC(0.5)
	return b.db.Close()
}
