package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/dbx"
	"github.com/ivlasov/passvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.VaultRecord, error) {
	query :=
		`SELECT user_id, encrypted_data, iv, version, updated_at FROM vaults
		 WHERE user_id = $1
		 `

	rec := &models.VaultRecord{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID, &rec.EncryptedData, &rec.IV, &rec.Version, &rec.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error) {
	query :=
		`INSERT INTO vaults (user_id, encrypted_data, iv, version, updated_at)
		 VALUES ($1, $2, $3, 1, $4)
		 RETURNING version
		 `

	err := r.db.QueryRowContext(ctx, query,
		rec.UserID, rec.EncryptedData, rec.IV, rec.UpdatedAt).Scan(&rec.Version)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

// CompareAndSwap runs the version check and the replace in one UPDATE; the
// WHERE clause is what makes concurrent writers serialise correctly.
func (r *PostgresRepository) CompareAndSwap(ctx context.Context, userID string, data, iv []byte, expectedVersion, updatedAt int64) (*models.VaultRecord, error) {
	query :=
		`UPDATE vaults
		 SET encrypted_data = $1, iv = $2, version = version + 1, updated_at = $3
		 WHERE user_id = $4 AND version = $5
		 RETURNING version
		 `

	rec := &models.VaultRecord{UserID: userID, EncryptedData: data, IV: iv, UpdatedAt: updatedAt}
	err := r.db.QueryRowContext(ctx, query,
		data, iv, updatedAt, userID, expectedVersion).Scan(&rec.Version)

	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// No row matched: either the vault is missing or the version is stale.
	current, gerr := r.Get(ctx, userID)
	if gerr != nil {
		return nil, gerr
	}
	return nil, &common.VersionConflictError{
		ServerVersion: current.Version,
		LocalVersion:  expectedVersion,
	}
}
