package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/actiond/pkg/logger"
)

func TestNewWatcher(t *testing.T) {
	loader := NewLoader()

	t.Run("valid config path", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.ConfigPath() != configPath {
			t.Errorf("expected config path %s, got %s", configPath, watcher.ConfigPath())
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher("", loader); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})

	t.Run("with debounce option", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader, WithDebounce(100*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.debounce != 100*time.Millisecond {
			t.Errorf("expected debounce 100ms, got %v", watcher.debounce)
		}
	})
}

func TestWatcher_Watch(t *testing.T) {
	t.Run("detects file changes", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "log:\n  level: info\n")

		watcher, err := NewWatcher(configPath, NewLoader(),
			WithDebounce(50*time.Millisecond),
			WithLogger(logger.Discard()),
			WithOverrides(map[string]interface{}{"server.port": 9200}),
		)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		var mu sync.Mutex
		var received []*Config
		watcher.OnChange(func(cfg *Config) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, cfg)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		go func() { _ = watcher.Watch(ctx) }()

		time.Sleep(100 * time.Millisecond)
		if !watcher.IsRunning() {
			t.Fatal("expected watcher to be running")
		}

		if err := os.WriteFile(configPath, []byte("log:\n  level: debug\n"), 0644); err != nil {
			t.Fatalf("failed to update config: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			n := len(received)
			mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(received) != 1 {
			t.Fatalf("expected one reload, got %d", len(received))
		}
		if received[0].Log.Level != "debug" {
			t.Errorf("expected log level 'debug', got %q", received[0].Log.Level)
		}
		if received[0].Server.Port != 9200 {
			t.Errorf("expected overrides to be re-applied, got port %d", received[0].Server.Port)
		}
	})

	t.Run("invalid file keeps callbacks quiet", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "log:\n  level: info\n")

		watcher, err := NewWatcher(configPath, NewLoader(), WithDebounce(20*time.Millisecond), WithLogger(logger.Discard()))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		called := make(chan struct{}, 1)
		watcher.OnChange(func(*Config) { called <- struct{}{} })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = watcher.Watch(ctx) }()
		time.Sleep(100 * time.Millisecond)

		if err := os.WriteFile(configPath, []byte("log:\n  level: loud\n"), 0644); err != nil {
			t.Fatalf("failed to update config: %v", err)
		}

		select {
		case <-called:
			t.Error("callback should not run for an invalid config")
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("other files are ignored", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "log:\n  level: info\n")

		watcher, err := NewWatcher(configPath, NewLoader(), WithDebounce(20*time.Millisecond), WithLogger(logger.Discard()))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		called := make(chan struct{}, 1)
		watcher.OnChange(func(*Config) { called <- struct{}{} })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = watcher.Watch(ctx) }()
		time.Sleep(100 * time.Millisecond)

		other := filepath.Join(filepath.Dir(configPath), "notes.txt")
		if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		select {
		case <-called:
			t.Error("callback should not run for unrelated files")
		case <-time.After(300 * time.Millisecond):
		}
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "log:\n  level: info\n")

		watcher, err := NewWatcher(configPath, NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- watcher.Watch(ctx) }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != context.Canceled {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("watcher did not stop")
		}
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		configPath := writeConfig(t, "actiond.yaml", "log:\n  level: info\n")
		watcher, err := NewWatcher(configPath, NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		if err := watcher.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		if err := watcher.Stop(); err != nil {
			t.Fatalf("second Stop failed: %v", err)
		}
	})
}

func TestHotReloadableConfig(t *testing.T) {
	base := DefaultConfig()
	h1 := ExtractHotReloadable(base)

	same := DefaultConfig()
	if h1.Changed(ExtractHotReloadable(same)) {
		t.Error("expected no change for identical configs")
	}

	changed := DefaultConfig()
	changed.Log.Level = "debug"
	if !h1.Changed(ExtractHotReloadable(changed)) {
		t.Error("expected change when log level differs")
	}

	limited := DefaultConfig()
	limited.Server.RateLimit.Burst = 1
	if !h1.Changed(ExtractHotReloadable(limited)) {
		t.Error("expected change when rate limit differs")
	}
}
