// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and issuing JWTs. The
// server never sees passwords or keys, only the SHA-256 verifier the client
// derives from its key.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/dbx"
	"github.com/ivlasov/passvault/internal/server/auth"
	"github.com/ivlasov/passvault/internal/server/config"
	"github.com/ivlasov/passvault/internal/server/models"
	"github.com/ivlasov/passvault/internal/server/repositories/repomanager"
)

type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a user account carrying its key-derivation parameters.
func (s *UserService) Register(ctx context.Context, username string, verifier, keySalt []byte, kdfIterations int) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user := &models.User{
			UserName:      username,
			KeySalt:       keySalt,
			Verifier:      verifier,
			KDFIterations: kdfIterations,
		}
		_, err := repo.Create(ctx, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

// Login checks the verifier in constant time and mints a session token.
// Unknown users and bad verifiers are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, username string, verifier []byte) (string, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrUnauthorized
		}
		return "", fmt.Errorf("error searching user: %w", err)
	}

	if subtle.ConstantTimeCompare(user.Verifier, verifier) != 1 {
		return "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}
	return token, nil
}

// KeyInfo returns the account's key-derivation parameters. It backs the
// pre-auth keyinfo endpoint, so it exposes nothing beyond the salt and cost.
func (s *UserService) KeyInfo(ctx context.Context, username string) (keySalt []byte, kdfIterations int, err error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, 0, err
	}
	return user.KeySalt, user.KDFIterations, nil
}
