package repomanager

import (
	"context"
	"database/sql"

	"github.com/ivlasov/passvault/internal/dbx"
	"github.com/ivlasov/passvault/internal/server/repositories/users"
	"github.com/ivlasov/passvault/internal/server/repositories/vaults"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run several repositories inside one transaction.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Vaults(db dbx.DBTX) vaults.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
