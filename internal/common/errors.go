// Package common defines shared constants, sentinel errors and small
// helpers used across client and server layers of passvault. Callers
// should match sentinel values with errors.Is and typed errors with
// errors.As.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotAuthenticated means no session credential is available to call
	// the remote store. Distinct from ErrUnauthorized, which is the remote
	// store rejecting a credential it was given.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoEncryptionKey is returned when a vault operation is attempted
	// while the vault is locked.
	ErrNoEncryptionKey = errors.New("no encryption key")

	// ErrVaultNotSetup means the remote store has no key-derivation info
	// provisioned for this account (404-equivalent on key-info).
	ErrVaultNotSetup = errors.New("vault not set up")

	// ErrDecryptionFailed covers every AEAD authentication failure: wrong
	// password, tampered ciphertext, wrong IV. Deliberately a single value
	// so callers cannot build a decryption oracle out of the error shape.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidVaultData means a server response or stored blob could not
	// be parsed (malformed base64/JSON).
	ErrInvalidVaultData = errors.New("invalid vault data")

	// ErrNetwork wraps transport failures and request timeouts. Retryable;
	// never to be confused with a version conflict or an auth failure.
	ErrNetwork = errors.New("network error")

	// ErrCrypto is a primitive-level failure (bad key size and the like).
	// Near-impossible in practice given fixed key widths.
	ErrCrypto = errors.New("crypto error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// VersionConflictError is the optimistic-concurrency rejection: the remote
// store's version moved past the one the client last observed. The local
// vault is left untouched; recover by pulling and replaying the change.
type VersionConflictError struct {
	ServerVersion int64
	LocalVersion  int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("vault version conflict: server=%d local=%d", e.ServerVersion, e.LocalVersion)
}

// IsVersionConflict reports whether err is (or wraps) a VersionConflictError.
func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}
