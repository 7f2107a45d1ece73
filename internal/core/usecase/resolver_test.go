package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

func TestResolveCreatesGroupOnce(t *testing.T) {
	store := newFakeGroupStore()
	resolver := NewGroupResolver(store, nil)

	id1, err := resolver.Resolve(context.Background(), "SKU123", "SKU123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := resolver.Resolve(context.Background(), "sku123 ", "SKU123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %q vs %q", id1, id2)
	}

	finds, creates := store.counts()
	if creates != 1 {
		t.Errorf("create calls = %d, want 1", creates)
	}
	// Second resolution must come from the cache.
	if finds != 1 {
		t.Errorf("find calls = %d, want 1", finds)
	}
}

func TestResolveCollapsesConcurrentCallers(t *testing.T) {
	store := newFakeGroupStore()
	store.findGate = make(chan struct{})
	resolver := NewGroupResolver(store, nil)

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var started, finished sync.WaitGroup
	started.Add(callers)
	finished.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			started.Done()
			defer finished.Done()
			ids[i], errs[i] = resolver.Resolve(context.Background(), "SKU123", "SKU123")
		}(i)
	}
	started.Wait()
	close(store.findGate)
	finished.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d got id %q, want %q", i, ids[i], ids[0])
		}
	}
	if _, creates := store.counts(); creates != 1 {
		t.Errorf("create calls = %d, want 1", creates)
	}
}

func TestResolveDifferentKeysDoNotBlock(t *testing.T) {
	store := newFakeGroupStore()
	resolver := NewGroupResolver(store, nil)

	var wg sync.WaitGroup
	keys := []string{"SKU1", "SKU2", "SKU3", "SKU4"}
	got := make([]string, len(keys))
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			id, err := resolver.Resolve(context.Background(), key, key)
			if err != nil {
				t.Errorf("resolve %q: %v", key, err)
				return
			}
			got[i] = id
		}(i, key)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range got {
		if id == "" {
			t.Fatal("missing id")
		}
		if seen[id] {
			t.Errorf("duplicate id %q across distinct keys", id)
		}
		seen[id] = true
	}
	if _, creates := store.counts(); creates != len(keys) {
		t.Errorf("create calls = %d, want %d", creates, len(keys))
	}
}

func TestResolveFailureIsNotCached(t *testing.T) {
	store := newFakeGroupStore()
	store.createErr = errors.New("db down")
	resolver := NewGroupResolver(store, nil)

	if _, err := resolver.Resolve(context.Background(), "SKU123", "SKU123"); err == nil {
		t.Fatal("expected error")
	}

	store.mu.Lock()
	store.createErr = nil
	store.mu.Unlock()

	id, err := resolver.Resolve(context.Background(), "SKU123", "SKU123")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}
}

func TestResolveFindsGroupByDerivedName(t *testing.T) {
	store := newFakeGroupStore()
	existing := &domain.Group{ID: "g-1", Key: "", Name: " sku123 "}
	store.groups[existing.ID] = existing
	resolver := NewGroupResolver(store, nil)

	id, err := resolver.Resolve(context.Background(), "SKU123", "SKU123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "g-1" {
		t.Errorf("id = %q, want g-1", id)
	}
	if _, creates := store.counts(); creates != 0 {
		t.Errorf("create calls = %d, want 0", creates)
	}
}

func TestResolveRejectsEmptyKey(t *testing.T) {
	resolver := NewGroupResolver(newFakeGroupStore(), nil)
	if _, err := resolver.Resolve(context.Background(), "   ", "name"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want invalid input", err)
	}
}
