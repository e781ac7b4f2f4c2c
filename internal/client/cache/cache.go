// Package cache persists the last successfully synced encrypted vault
// document on disk, enabling offline unlock. Only ciphertext ever touches
// the database; plaintext and keys stay in memory.
package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ivlasov/passvault/internal/client/cache/migrations"
	"github.com/ivlasov/passvault/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Record is the single cached vault snapshot. Version is the server version
// the snapshot was synced at; timestamps are epoch milliseconds.
type Record struct {
	EncryptedData []byte
	IV            []byte
	Version       int64
	UpdatedAt     int64
	LastSyncedAt  int64
}

// Cache is the vault snapshot store contract.
type Cache interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context) (*Record, error)
	Clear(ctx context.Context) error
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite database at dsn, applies migrations and
// returns a ready SQLiteCache. The caller owns the returned *sql.DB.
func InitDatabase(ctx context.Context, dsn string) (*SQLiteCache, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache db: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate cache db: %w", err)
	}
	return NewSQLiteCache(db), db, nil
}

// SQLiteCache stores the snapshot in a single-row table.
type SQLiteCache struct {
	db dbx.DBTX
}

var _ Cache = (*SQLiteCache)(nil)

func NewSQLiteCache(db dbx.DBTX) *SQLiteCache {
	return &SQLiteCache{db: db}
}

// Save upserts the snapshot. The fixed id keeps the table at one row.
func (c *SQLiteCache) Save(ctx context.Context, rec *Record) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO vault_cache (id, encrypted_data, iv, version, updated_at, last_synced_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			encrypted_data = excluded.encrypted_data,
			iv             = excluded.iv,
			version        = excluded.version,
			updated_at     = excluded.updated_at,
			last_synced_at = excluded.last_synced_at
	`, rec.EncryptedData, rec.IV, rec.Version, rec.UpdatedAt, rec.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("failed to save vault cache: %w", err)
	}
	return nil
}

// Load returns the cached snapshot, or (nil, nil) when nothing is cached.
func (c *SQLiteCache) Load(ctx context.Context) (*Record, error) {
	rec := &Record{}
	err := c.db.QueryRowContext(ctx, `
		SELECT encrypted_data, iv, version, updated_at, last_synced_at
		FROM vault_cache WHERE id = 1
	`).Scan(&rec.EncryptedData, &rec.IV, &rec.Version, &rec.UpdatedAt, &rec.LastSyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault cache: %w", err)
	}
	return rec, nil
}

// Clear drops the cached snapshot. Clearing an empty cache is not an error.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM vault_cache`)
	if err != nil {
		return fmt.Errorf("failed to clear vault cache: %w", err)
	}
	return nil
}
