package vaults

import (
	"context"

	"github.com/ivlasov/passvault/internal/server/models"
)

// Repository is the persistence contract for encrypted vault blobs.
type Repository interface {
	// Get returns common.ErrNotFound when the user has no vault yet.
	Get(ctx context.Context, userID string) (*models.VaultRecord, error)

	// Create provisions the first blob at version 1. A second create for
	// the same user fails on the primary key.
	Create(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error)

	// CompareAndSwap replaces the blob only if the stored version still
	// equals expectedVersion, returning the updated record. A stale
	// expectedVersion yields *common.VersionConflictError carrying the
	// current server version.
	CompareAndSwap(ctx context.Context, userID string, data, iv []byte, expectedVersion, updatedAt int64) (*models.VaultRecord, error)
}
