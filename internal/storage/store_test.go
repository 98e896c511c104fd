package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock lets tests move time past a session's expiry
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSQLiteStore(t *testing.T, c *fakeClock) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store.now = c.now
	return store
}

func newTestMemoryStore(c *fakeClock) *MemoryStore {
	store := NewMemoryStore()
	store.now = c.now
	return store
}

func TestStores(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T, c *fakeClock) Store
	}{
		{"sqlite", func(t *testing.T, c *fakeClock) Store { return newTestSQLiteStore(t, c) }},
		{"memory", func(t *testing.T, c *fakeClock) Store { return newTestMemoryStore(c) }},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			runStoreSuite(t, b.open)
		})
	}
}

func runStoreSuite(t *testing.T, open func(t *testing.T, c *fakeClock) Store) {
	ctx := context.Background()
	const sess = "6f1c0a7e-1d2b-4c1e-9a55-0f6d7b2a8c11"
	const other = "0b3a2e91-7c44-4f0e-8f2d-5a9e1c3b4d22"

	t.Run("SaveAndGet", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		data := []byte(`[{"name":"owner","value":"alice"}]`)
		if err := store.SaveSnapshot(ctx, sess, "/land#landForm", data, time.Hour); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}

		got, err := store.GetSnapshot(ctx, sess, "/land#landForm")
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if string(got.Data) != string(data) {
			t.Errorf("GetSnapshot().Data = %s, want %s", got.Data, data)
		}
		if got.ContentHash != computeHash(data) {
			t.Errorf("GetSnapshot().ContentHash = %v, want %v", got.ContentHash, computeHash(data))
		}
		if !got.UpdatedAt.Equal(c.t) {
			t.Errorf("GetSnapshot().UpdatedAt = %v, want %v", got.UpdatedAt, c.t)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/kyc#0", []byte(`[1]`), time.Hour)
		_ = store.SaveSnapshot(ctx, sess, "/kyc#0", []byte(`[2]`), time.Hour)

		got, err := store.GetSnapshot(ctx, sess, "/kyc#0")
		if err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if string(got.Data) != `[2]` {
			t.Errorf("GetSnapshot().Data = %s, want [2]", got.Data)
		}

		keys, _ := store.ListSnapshotKeys(ctx, sess)
		if len(keys) != 1 {
			t.Errorf("ListSnapshotKeys() = %v, want one key", keys)
		}
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/land#landForm", []byte(`[]`), time.Hour)

		if _, err := store.GetSnapshot(ctx, other, "/land#landForm"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSnapshot(other) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ExpiredSessionIsGone", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/a#f", []byte(`[]`), time.Minute)
		c.advance(2 * time.Minute)

		if _, err := store.GetSnapshot(ctx, sess, "/a#f"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSnapshot() after expiry error = %v, want ErrNotFound", err)
		}
		keys, err := store.ListSnapshotKeys(ctx, sess)
		if err != nil {
			t.Fatalf("ListSnapshotKeys() error = %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("ListSnapshotKeys() after expiry = %v, want none", keys)
		}
	})

	t.Run("SaveAfterExpiryDoesNotReviveOldSnapshots", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/a#old", []byte(`[]`), time.Minute)
		c.advance(2 * time.Minute)
		_ = store.SaveSnapshot(ctx, sess, "/a#new", []byte(`[]`), time.Minute)

		if _, err := store.GetSnapshot(ctx, sess, "/a#old"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSnapshot(old) error = %v, want ErrNotFound", err)
		}
		keys, _ := store.ListSnapshotKeys(ctx, sess)
		if len(keys) != 1 || keys[0] != "/a#new" {
			t.Errorf("ListSnapshotKeys() = %v, want [/a#new]", keys)
		}
	})

	t.Run("SaveExtendsSession", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/a#1", []byte(`[]`), 10*time.Minute)
		c.advance(8 * time.Minute)
		_ = store.SaveSnapshot(ctx, sess, "/a#2", []byte(`[]`), 10*time.Minute)
		c.advance(8 * time.Minute)

		if _, err := store.GetSnapshot(ctx, sess, "/a#1"); err != nil {
			t.Errorf("GetSnapshot() after extension error = %v", err)
		}
	})

	t.Run("DeleteSnapshotAndSession", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/a#1", []byte(`[]`), time.Hour)
		_ = store.SaveSnapshot(ctx, sess, "/a#2", []byte(`[]`), time.Hour)

		if err := store.DeleteSnapshot(ctx, sess, "/a#1"); err != nil {
			t.Fatalf("DeleteSnapshot() error = %v", err)
		}
		keys, _ := store.ListSnapshotKeys(ctx, sess)
		if len(keys) != 1 || keys[0] != "/a#2" {
			t.Errorf("ListSnapshotKeys() = %v, want [/a#2]", keys)
		}

		if err := store.DeleteSession(ctx, sess); err != nil {
			t.Fatalf("DeleteSession() error = %v", err)
		}
		if _, err := store.GetSnapshot(ctx, sess, "/a#2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSnapshot() after DeleteSession error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PurgeExpired", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		_ = store.SaveSnapshot(ctx, sess, "/a#1", []byte(`[]`), time.Minute)
		_ = store.SaveSnapshot(ctx, other, "/a#1", []byte(`[]`), time.Hour)
		c.advance(2 * time.Minute)

		n, err := store.PurgeExpired(ctx)
		if err != nil {
			t.Fatalf("PurgeExpired() error = %v", err)
		}
		if n != 1 {
			t.Errorf("PurgeExpired() = %d, want 1", n)
		}
		if _, err := store.GetSnapshot(ctx, other, "/a#1"); err != nil {
			t.Errorf("GetSnapshot(live session) error = %v", err)
		}
	})

	t.Run("RejectsNonPositiveTTL", func(t *testing.T) {
		c := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
		store := open(t, c)

		if err := store.SaveSnapshot(ctx, sess, "/a#1", []byte(`[]`), 0); !errors.Is(err, ErrNoTTL) {
			t.Errorf("SaveSnapshot(ttl=0) error = %v, want ErrNoTTL", err)
		}
	})
}

func TestComputeHash(t *testing.T) {
	got := computeHash([]byte("hello"))
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("computeHash() = %v, want %v", got, want)
	}
}
