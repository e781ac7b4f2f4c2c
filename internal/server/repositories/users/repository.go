package users

import (
	"context"

	"github.com/ivlasov/passvault/internal/server/models"
)

// Repository is the persistence contract for user accounts.
type Repository interface {
	// Create inserts the user and fills in its generated ID.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByUsername returns common.ErrNotFound for unknown accounts.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
