package credentials

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range openStores(t) {
		t.Run(name+"/get absent returns empty", func(t *testing.T) {
			v, err := store.Get(ctx, "absent")
			require.NoError(t, err)
			assert.Equal(t, "", v)
		})

		t.Run(name+"/set then get", func(t *testing.T) {
			require.NoError(t, store.Set(ctx, KeyToken, "abc"))
			v, err := store.Get(ctx, KeyToken)
			require.NoError(t, err)
			assert.Equal(t, "abc", v)
		})

		t.Run(name+"/set overwrites", func(t *testing.T) {
			require.NoError(t, store.Set(ctx, KeyRedirect, "/old"))
			require.NoError(t, store.Set(ctx, KeyRedirect, "/new"))
			v, err := store.Get(ctx, KeyRedirect)
			require.NoError(t, err)
			assert.Equal(t, "/new", v)
		})

		t.Run(name+"/delete is idempotent", func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "x", "1"))
			require.NoError(t, store.Delete(ctx, "x"))
			require.NoError(t, store.Delete(ctx, "x"))

			v, err := store.Get(ctx, "x")
			require.NoError(t, err)
			assert.Equal(t, "", v)
		})
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "creds.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyToken, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "persisted", v)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	ctx := context.Background()

	store, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, KeyToken, "t"))
	v, err := store.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "t", v)
}
