// Package remote defines the client's view of the remote vault store and an
// HTTP JSON implementation of it. The store is zero-knowledge: it only ever
// receives ciphertext, the IV it was produced under, key-derivation
// parameters, and a login verifier.
package remote

import (
	"context"

	"github.com/ivlasov/passvault/internal/cryptox"
)

// KeyInfo is the key-derivation material the server hands out before unlock.
type KeyInfo struct {
	KeySalt       []byte
	KDFIterations int
}

// VaultDocument is the stored encrypted vault plus its authoritative
// version. UpdatedAt is epoch milliseconds, set by the server.
type VaultDocument struct {
	EncryptedData []byte
	IV            []byte
	Version       int64
	UpdatedAt     int64
}

// Envelope converts the document's payload into a crypto envelope.
func (d *VaultDocument) Envelope() *cryptox.Envelope {
	return &cryptox.Envelope{Ciphertext: d.EncryptedData, IV: d.IV}
}

// Store is the transport-agnostic remote vault store contract.
//
// Error mapping contract:
//   - missing key-info or vault blob: common.ErrVaultNotSetup
//   - stale expectedVersion on PutVault: *common.VersionConflictError
//   - transport/timeout failures: wrapped common.ErrNetwork
//   - rejected credentials: common.ErrUnauthorized
type Store interface {
	// Register creates an account and provisions its key-derivation info.
	Register(ctx context.Context, username string, verifier, keySalt []byte, kdfIterations int) error

	// Login exchanges the verifier for a session credential, retained by
	// the implementation for subsequent calls.
	Login(ctx context.Context, username string, verifier []byte) error

	// GetKeyInfo fetches the salt and KDF cost for the named account. It is
	// callable before Login so the client can derive its verifier.
	GetKeyInfo(ctx context.Context, username string) (*KeyInfo, error)

	// GetVault fetches the current encrypted vault document.
	GetVault(ctx context.Context) (*VaultDocument, error)

	// PutVault replaces the vault if expectedVersion still matches the
	// server's version, returning the stored document with its new version.
	PutVault(ctx context.Context, env *cryptox.Envelope, expectedVersion int64) (*VaultDocument, error)

	// SetupVault provisions the first encrypted vault blob (version 1).
	SetupVault(ctx context.Context, env *cryptox.Envelope) (*VaultDocument, error)

	// GetUploadURL returns a fresh object-store key and a presigned PUT URL
	// for a file attachment blob.
	GetUploadURL(ctx context.Context) (key, url string, err error)

	// GetDownloadURL returns a presigned GET URL for a stored attachment.
	GetDownloadURL(ctx context.Context, key string) (string, error)

	// Ping checks server reachability.
	Ping(ctx context.Context) error
}
