package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/ivlasov/passvault/internal/server/models"
	"github.com/ivlasov/passvault/internal/server/repositories/repomanager"
)

// VaultService stores and serves the per-user encrypted vault blob. The
// version counter is authoritative here; all writes go through the
// repository's compare-and-swap.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager) *VaultService {
	return &VaultService{db: db, repomanager: m}
}

// Get returns the user's current vault document, common.ErrNotFound when
// the vault was never set up.
func (s *VaultService) Get(ctx context.Context, userID string) (*models.VaultRecord, error) {
	repo := s.repomanager.Vaults(s.db)
	return repo.Get(ctx, userID)
}

// Put replaces the blob if expectedVersion still matches, stamping the
// server-side update time. Stale writes surface as *VersionConflictError.
func (s *VaultService) Put(ctx context.Context, userID string, data, iv []byte, expectedVersion int64) (*models.VaultRecord, error) {
	repo := s.repomanager.Vaults(s.db)
	return repo.CompareAndSwap(ctx, userID, data, iv, expectedVersion, time.Now().UnixMilli())
}

// Setup provisions the first blob at version 1.
func (s *VaultService) Setup(ctx context.Context, userID string, data, iv []byte) (*models.VaultRecord, error) {
	repo := s.repomanager.Vaults(s.db)
	rec := &models.VaultRecord{
		UserID:        userID,
		EncryptedData: data,
		IV:            iv,
		UpdatedAt:     time.Now().UnixMilli(),
	}
	return repo.Create(ctx, rec)
}
