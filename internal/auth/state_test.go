package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStateStoreConsumeOnce(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	login := PendingLogin{
		State:        "state-1",
		CodeVerifier: "verifier-1",
		ExpiresAt:    time.Now().Add(time.Minute),
	}
	if err := store.Issue(ctx, login); err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	got, err := store.Consume(ctx, "state-1")
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if got.CodeVerifier != "verifier-1" {
		t.Errorf("expected verifier back, got %q", got.CodeVerifier)
	}

	// a state is one-shot
	if _, err := store.Consume(ctx, "state-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound on second consume, got %v", err)
	}
}

func TestMemoryStateStoreUnknownState(t *testing.T) {
	store := NewMemoryStateStore()
	if _, err := store.Consume(context.Background(), "never-issued"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Issue(ctx, PendingLogin{State: "s", ExpiresAt: now.Add(10 * time.Minute)}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(11 * time.Minute)
	if _, err := store.Consume(ctx, "s"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected expired state to be rejected, got %v", err)
	}
}

func TestMemoryStateStoreSweep(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Issue(ctx, PendingLogin{State: "old", ExpiresAt: now.Add(time.Minute)})
	now = now.Add(2 * time.Minute)
	_ = store.Issue(ctx, PendingLogin{State: "new", ExpiresAt: now.Add(time.Minute)})

	if len(store.logins) != 1 {
		t.Errorf("expected expired login swept on issue, have %d entries", len(store.logins))
	}
}
