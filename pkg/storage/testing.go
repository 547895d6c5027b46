package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// StoreTestSuite defines a test suite that can be run against any Store implementation.
type StoreTestSuite struct {
	NewStore func(t *testing.T) Store
}

// RunAllTests runs all storage tests against the provided store implementation.
func (s *StoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("RegisterGet", s.TestRegisterGet)
	t.Run("RegisterReplaces", s.TestRegisterReplaces)
	t.Run("ListOrdered", s.TestListOrdered)
	t.Run("Unregister", s.TestUnregister)
	t.Run("Validation", s.TestValidation)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("Registry", s.TestRegistry)
}

// TestRegisterGet tests saving and loading one registration.
func (s *StoreTestSuite) TestRegisterGet(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	installed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.Register(ctx, &Registration{Scope: "/app/", ScriptURL: "/app/sw.js", InstalledAt: installed}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := store.Get(ctx, "/app/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ScriptURL != "/app/sw.js" {
		t.Errorf("expected script url /app/sw.js, got %s", got.ScriptURL)
	}
	if !got.InstalledAt.Equal(installed) {
		t.Errorf("expected installed at %s, got %s", installed, got.InstalledAt)
	}

	_, err = store.Get(ctx, "/missing/")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// TestRegisterReplaces tests that registering a known scope replaces it.
func (s *StoreTestSuite) TestRegisterReplaces(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Register(ctx, &Registration{Scope: "/", ScriptURL: "/sw-1.js"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.Register(ctx, &Registration{Scope: "/", ScriptURL: "/sw-2.js"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(all))
	}
	if all[0].ScriptURL != "/sw-2.js" {
		t.Errorf("expected replaced script url, got %s", all[0].ScriptURL)
	}
	if all[0].InstalledAt.IsZero() {
		t.Error("expected installed at to be set")
	}
}

// TestListOrdered tests that List orders by scope.
func (s *StoreTestSuite) TestListOrdered(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	empty, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty list, got %d", len(empty))
	}

	for _, scope := range []string{"/c/", "/a/", "/b/"} {
		if err := store.Register(ctx, &Registration{Scope: scope, ScriptURL: scope + "sw.js"}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var scopes []string
	for _, r := range all {
		scopes = append(scopes, r.Scope)
	}
	if fmt.Sprint(scopes) != "[/a/ /b/ /c/]" {
		t.Errorf("expected ordered scopes, got %v", scopes)
	}
}

// TestUnregister tests deleting registrations.
func (s *StoreTestSuite) TestUnregister(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Register(ctx, &Registration{Scope: "/", ScriptURL: "/sw.js"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.Unregister(ctx, "/"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	var notFound *NotFoundError
	if err := store.Unregister(ctx, "/"); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError on second unregister, got %v", err)
	}
	if _, err := store.Get(ctx, "/"); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError after unregister, got %v", err)
	}
}

// TestValidation tests that incomplete registrations are rejected.
func (s *StoreTestSuite) TestValidation(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Register(ctx, nil); err == nil {
		t.Error("expected error for nil registration")
	}
	if err := store.Register(ctx, &Registration{ScriptURL: "/sw.js"}); err == nil {
		t.Error("expected error for missing scope")
	}
	if err := store.Register(ctx, &Registration{Scope: "/"}); err == nil {
		t.Error("expected error for missing script url")
	}
}

// TestConcurrentAccess tests concurrent registration and listing.
func (s *StoreTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			scope := fmt.Sprintf("/scope-%02d/", i)
			errCh <- store.Register(ctx, &Registration{Scope: scope, ScriptURL: scope + "sw.js"})
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.List(ctx)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent operation failed: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 20 {
		t.Errorf("expected 20 registrations, got %d", len(all))
	}
}

// TestRegistry tests the registry adapter used by the reload task.
func (s *StoreTestSuite) TestRegistry(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, scope := range []string{"/a/", "/b/"} {
		if err := store.Register(ctx, &Registration{Scope: scope, ScriptURL: scope + "sw.js"}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	regs, err := Registry(store).Registrations(ctx)
	if err != nil {
		t.Fatalf("Registrations failed: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(regs))
	}
	if regs[0].Scope() != "/a/" {
		t.Errorf("expected first scope /a/, got %s", regs[0].Scope())
	}
	for _, r := range regs {
		if err := r.Unregister(ctx); err != nil {
			t.Fatalf("Unregister %s failed: %v", r.Scope(), err)
		}
	}

	left, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expected no registrations left, got %d", len(left))
	}
}
