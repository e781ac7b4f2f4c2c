// Package cryptox implements the vault's cryptographic core: password-based
// key derivation and authenticated envelope encryption.
//
// The server never sees the derived key. It stores only the salt, the
// iteration count and ciphertext, so everything here runs client-side.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ivlasov/passvault/internal/common"
)

const (
	// KeySize is the AES-256 key width produced by DeriveKey.
	KeySize = 32

	// NonceSize is the GCM nonce width (96 bits).
	NonceSize = 12

	// DefaultIterations is used when the server does not supply a PBKDF2
	// cost. A server-provided value always wins so the cost can be tuned
	// without client upgrades.
	DefaultIterations = 600_000

	// SaltSize is the salt width generated for new vaults.
	SaltSize = 32
)

// Envelope is one encrypted unit: the AEAD output (ciphertext plus tag) and
// the nonce it was produced under. The same nonce is never used twice for
// the same key; Encrypt draws a fresh random one per call.
type Envelope struct {
	Ciphertext []byte
	IV         []byte
}

// DeriveKey stretches a master password into a 32-byte AES key using
// PBKDF2-HMAC-SHA256. Deterministic: identical inputs yield identical keys.
// iterations <= 0 falls back to DefaultIterations.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// MakeVerifier returns a value safe to share with the server for login
// checks: a SHA-256 hash of the derived key. It does not reveal the key.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh random
// 12-byte nonce. Ciphertext (with tag) and nonce are returned separately.
func Encrypt(plaintext, key []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)
	return &Envelope{Ciphertext: ciphertext, IV: nonce}, nil
}

// Decrypt opens an envelope. Any authentication failure (wrong key,
// tampered ciphertext, wrong IV) comes back as the single
// common.ErrDecryptionFailed value, so callers cannot tell a wrong
// password apart from corrupted data.
func Decrypt(env *Envelope, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}

	if len(env.IV) != aesgcm.NonceSize() {
		return nil, common.ErrDecryptionFailed
	}

	plaintext, err := aesgcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

// GenerateSalt returns a fresh random salt for first-time vault setup.
func GenerateSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// Wipe removes key material from a buffer after use.
func Wipe(b []byte) {
	common.WipeByteArray(b)
}
