package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSQLite(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := setupTestSQLite(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "sess-1")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, "sess-1", testSnapshot()))
	snap, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, 2, snap.Lines[0].Quantity)

	// upsert replaces the previous payload
	next := testSnapshot()
	next.Lines = next.Lines[:1]
	require.NoError(t, store.Set(ctx, "sess-1", next))
	snap, err = store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 1)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	store := setupTestSQLite(t)
	assert.NoError(t, store.RunMigrations())
}
