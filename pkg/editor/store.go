// Package editor keeps the stored program in sync with its file on disk.
package editor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store holds the program text last loaded from or saved to its file.
type Store struct {
	path string

	mu       sync.RWMutex
	content  string
	sum      [sha256.Size]byte
	loadedAt time.Time
}

// NewStore creates a store for the program file at path. The file does not
// need to exist yet.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("editor: program path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("editor: resolve %s: %w", path, err)
	}
	return &Store{path: abs}, nil
}

// Path returns the absolute program file path.
func (s *Store) Path() string { return s.path }

// Load reads the program file into the store. A missing file loads as an
// empty program.
func (s *Store) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("editor: read %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = string(data)
	s.sum = sha256.Sum256(data)
	s.loadedAt = time.Now().UTC()
	return s.content, nil
}

// Save writes content to the program file and keeps it as the current program.
func (s *Store) Save(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("editor: create program dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".program-*")
	if err != nil {
		return fmt.Errorf("editor: create temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("editor: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("editor: close temp file: %w", err)
	}

	// The new sum is in place before the rename so the change watcher never
	// reports our own write.
	s.mu.Lock()
	defer s.mu.Unlock()
	prevSum := s.sum
	s.sum = sha256.Sum256([]byte(content))
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.sum = prevSum
		os.Remove(tmp.Name())
		return fmt.Errorf("editor: replace %s: %w", s.path, err)
	}
	s.content = content
	s.loadedAt = time.Now().UTC()
	return nil
}

// Content returns the current program text.
func (s *Store) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// LoadedAt returns when the program was last loaded or saved.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// differs reports whether data is not the program last loaded or saved.
func (s *Store) differs(data []byte) bool {
	sum := sha256.Sum256(data)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sum != s.sum
}
