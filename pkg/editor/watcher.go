package editor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/eventbus"
	"github.com/goclaw/actiond/pkg/logger"
)

const changeSource = "fsnotify"

// ChangeWatcher dispatches editor.action.storageChanged when the program file
// changes on disk to something other than what the store holds.
type ChangeWatcher struct {
	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	store      *Store
	dispatcher eventbus.Dispatcher
	debounce   time.Duration
	log        logger.Logger
	running    bool

	// notified is the content last reported, so repeated writes of the same
	// external change are reported once.
	notified [sha256.Size]byte
}

// WatcherOption is a functional option for ChangeWatcher configuration.
type WatcherOption func(*ChangeWatcher)

// WithDebounce sets the debounce duration for file change events.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *ChangeWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l logger.Logger) WatcherOption {
	return func(w *ChangeWatcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewChangeWatcher creates a watcher for the file of store.
func NewChangeWatcher(store *Store, dispatcher eventbus.Dispatcher, opts ...WatcherOption) (*ChangeWatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("editor: store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("editor: dispatcher is required")
	}

	fswatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &ChangeWatcher{
		watcher:    fswatcher,
		store:      store,
		dispatcher: dispatcher,
		debounce:   250 * time.Millisecond,
		log:        logger.Global(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.log = w.log.With("component", "editor.watcher", "path", store.Path())
	return w, nil
}

// Watch monitors the program file until ctx is done. The parent directory is
// watched so editors replacing the file by rename are seen too.
func (w *ChangeWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer w.watcher.Close()

	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch program dir %s: %w", dir, err)
	}
	w.log.Info("watching program file")

	// Debounce timer
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.store.Path() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.check(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			// Log error but continue watching
			w.log.Warn("program watcher error", "error", err)
		}
	}
}

func (w *ChangeWatcher) check(ctx context.Context) {
	data, err := os.ReadFile(w.store.Path())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("failed to read program file", "error", err)
		}
		return
	}
	if !w.store.differs(data) {
		return
	}
	sum := sha256.Sum256(data)
	if sum == w.notified {
		return
	}
	w.notified = sum

	w.log.Info("program changed on disk")
	if err := w.dispatcher.Dispatch(ctx, action.EditorStorageChanged{Source: changeSource}); err != nil {
		w.log.Error("failed to dispatch storage change", "error", err)
	}
}
