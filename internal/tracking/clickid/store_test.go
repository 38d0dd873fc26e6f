package clickid

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client, ttl), mr
}

func TestStore_SetAndGet(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, "visitor-1:ctwa_clid", "ctwa-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, err := store.Get(ctx, "visitor-1:ctwa_clid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "ctwa-123" {
		t.Fatalf("expected ctwa-123, got %q", value)
	}
}

func TestStore_GetMissingKeyReturnsEmpty(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	value, err := store.Get(context.Background(), "visitor-unknown:ctwa_clid")
	if err != nil {
		t.Fatalf("expected absent key to be silent, got error: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value, got %q", value)
	}
}

func TestStore_EntriesExpire(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, "visitor-1:ctwa_clid", "ctwa-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	value, err := store.Get(ctx, "visitor-1:ctwa_clid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "" {
		t.Fatalf("expected value to expire, got %q", value)
	}
}

func TestStore_NilStoreIsSilent(t *testing.T) {
	var store *Store

	if err := store.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("expected nil store writes to be silent, got %v", err)
	}
	value, err := store.Get(context.Background(), "k")
	if err != nil || value != "" {
		t.Fatalf("expected nil store reads to be silent, got %q, %v", value, err)
	}
}

func TestStore_KeysAreNamespaced(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)

	if err := store.Set(context.Background(), "visitor-1:gclid", "g-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("clickid:visitor-1:gclid") {
		t.Fatal("expected key stored under the clickid namespace")
	}
}
