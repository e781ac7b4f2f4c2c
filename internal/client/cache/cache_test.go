package cache

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE vault_cache (
  id             INTEGER PRIMARY KEY CHECK (id = 1),
  encrypted_data BLOB    NOT NULL,
  iv             BLOB    NOT NULL,
  version        INTEGER NOT NULL,
  updated_at     INTEGER NOT NULL,
  last_synced_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestLoad_Empty_ReturnsNilNil(t *testing.T) {
	c := NewSQLiteCache(setupDB(t))

	rec, err := c.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	c := NewSQLiteCache(setupDB(t))
	ctx := context.Background()

	in := &Record{
		EncryptedData: []byte{0xDE, 0xAD},
		IV:            []byte{0x01, 0x02, 0x03},
		Version:       7,
		UpdatedAt:     1700000000000,
		LastSyncedAt:  1700000001000,
	}
	require.NoError(t, c.Save(ctx, in))

	out, err := c.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestSave_UpsertKeepsSingleRow(t *testing.T) {
	db := setupDB(t)
	c := NewSQLiteCache(db)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, &Record{EncryptedData: []byte{1}, IV: []byte{1}, Version: 1}))
	require.NoError(t, c.Save(ctx, &Record{EncryptedData: []byte{2}, IV: []byte{2}, Version: 2}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM vault_cache`).Scan(&count))
	require.Equal(t, 1, count)

	out, err := c.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), out.Version)
	require.Equal(t, []byte{2}, out.EncryptedData)
}

func TestClear_RemovesSnapshot_AndIsIdempotent(t *testing.T) {
	c := NewSQLiteCache(setupDB(t))
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, &Record{EncryptedData: []byte{1}, IV: []byte{1}, Version: 1}))
	require.NoError(t, c.Clear(ctx))

	rec, err := c.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, c.Clear(ctx))
}

func TestInitDatabase_AppliesMigrations(t *testing.T) {
	ctx := context.Background()

	c, db, err := InitDatabase(ctx, "file:cachetest?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, c.Save(ctx, &Record{EncryptedData: []byte{9}, IV: []byte{9}, Version: 3}))

	out, err := c.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), out.Version)
}

func TestLoad_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	c := NewSQLiteCache(db)

	require.NoError(t, db.Close())

	_, err := c.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load vault cache")
}
