package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client), mr
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-1", "usr-1", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	userID, err := store.Get(ctx, "hash-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if userID != "usr-1" {
		t.Fatalf("got user %q, want usr-1", userID)
	}
}

func TestGetUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExpiredToken(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-2", "usr-2", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "hash-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-a", "usr-3", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "hash-b", "usr-3", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "hash-c", "usr-other", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "usr-3"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	if _, err := store.Get(ctx, "hash-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("hash-a should be gone, got %v", err)
	}
	if _, err := store.Get(ctx, "hash-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("hash-b should be gone, got %v", err)
	}
	if _, err := store.Get(ctx, "hash-c"); err != nil {
		t.Fatalf("hash-c should survive, got %v", err)
	}
}
