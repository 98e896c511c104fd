//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/dappkit/internal/storage"
)

func backends() map[string]storage.Store {
	return map[string]storage.Store{
		"postgres": env.Postgres,
		"redis":    env.Redis,
	}
}

func TestStoreSnapshots(t *testing.T) {
	for name, store := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session := uniqueSession()

			require.NoError(t, store.SaveSnapshot(ctx, session, "/register#landForm", []byte(`{"owner":"Ravi"}`), time.Hour))

			snap, err := store.GetSnapshot(ctx, session, "/register#landForm")
			require.NoError(t, err)
			assert.JSONEq(t, `{"owner":"Ravi"}`, string(snap.Data))
			assert.Equal(t, session, snap.SessionID)
			assert.NotEmpty(t, snap.ContentHash)

			// Overwrite replaces the whole snapshot
			require.NoError(t, store.SaveSnapshot(ctx, session, "/register#landForm", []byte(`{"area":"1200"}`), time.Hour))
			snap, err = store.GetSnapshot(ctx, session, "/register#landForm")
			require.NoError(t, err)
			assert.JSONEq(t, `{"area":"1200"}`, string(snap.Data))

			require.NoError(t, store.SaveSnapshot(ctx, session, "/kyc#0", []byte(`{"name":"Asha"}`), time.Hour))
			keys, err := store.ListSnapshotKeys(ctx, session)
			require.NoError(t, err)
			assert.Equal(t, []string{"/kyc#0", "/register#landForm"}, keys)

			require.NoError(t, store.DeleteSnapshot(ctx, session, "/kyc#0"))
			_, err = store.GetSnapshot(ctx, session, "/kyc#0")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, store.DeleteSession(ctx, session))
			keys, err = store.ListSnapshotKeys(ctx, session)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestStoreSessionIsolation(t *testing.T) {
	for name, store := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, b := uniqueSession(), uniqueSession()

			require.NoError(t, store.SaveSnapshot(ctx, a, "/register#0", []byte(`{"owner":"A"}`), time.Hour))

			_, err := store.GetSnapshot(ctx, b, "/register#0")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, store.DeleteSession(ctx, b))
			_, err = store.GetSnapshot(ctx, a, "/register#0")
			assert.NoError(t, err)
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	for name, store := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session := uniqueSession()

			require.NoError(t, store.SaveSnapshot(ctx, session, "/register#0", []byte(`{"owner":"Ravi"}`), time.Second))
			time.Sleep(1500 * time.Millisecond)

			_, err := store.GetSnapshot(ctx, session, "/register#0")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			keys, err := store.ListSnapshotKeys(ctx, session)
			require.NoError(t, err)
			assert.Empty(t, keys)

			// A save after expiry starts the session afresh
			require.NoError(t, store.SaveSnapshot(ctx, session, "/kyc#0", []byte(`{}`), time.Hour))
			keys, err = store.ListSnapshotKeys(ctx, session)
			require.NoError(t, err)
			assert.Equal(t, []string{"/kyc#0"}, keys)
		})
	}
}

func TestStoreRejectsZeroTTL(t *testing.T) {
	for name, store := range backends() {
		t.Run(name, func(t *testing.T) {
			err := store.SaveSnapshot(context.Background(), uniqueSession(), "/register#0", []byte(`{}`), 0)
			assert.ErrorIs(t, err, storage.ErrNoTTL)
		})
	}
}

func TestPostgresPurgeExpired(t *testing.T) {
	ctx := context.Background()
	expired, live := uniqueSession(), uniqueSession()

	require.NoError(t, env.Postgres.SaveSnapshot(ctx, expired, "/register#0", []byte(`{}`), time.Second))
	require.NoError(t, env.Postgres.SaveSnapshot(ctx, live, "/register#0", []byte(`{}`), time.Hour))
	time.Sleep(1500 * time.Millisecond)

	n, err := env.Postgres.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = env.Postgres.GetSnapshot(ctx, live, "/register#0")
	assert.NoError(t, err)
}

func TestStorePing(t *testing.T) {
	for name, store := range backends() {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Ping(context.Background()))
		})
	}
}
