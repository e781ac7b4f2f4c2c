// Package keystore wraps the OS keyring as the vault's protected key store:
// the place a derived key may be parked between sessions, released only
// after a user-interaction gate (biometrics or the OS prompt).
package keystore

import (
	"context"
	"errors"

	"github.com/99designs/keyring"
)

var (
	// ErrKeyNotFound: no key saved under the slot. Distinguishable from a
	// denied prompt so callers can offer the right fallback.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrPromptDenied: the user-interaction gate failed or was cancelled.
	ErrPromptDenied = errors.New("keystore: prompt denied")
)

// Store is the protected key store contract.
type Store interface {
	// Save parks raw key bytes under slot.
	Save(slot string, key []byte) error

	// Load retrieves the key. It may block on user interaction; the engine
	// awaits it exactly once per unlock attempt and ctx bounds the wait.
	Load(ctx context.Context, slot string) ([]byte, error)

	// Exists reports whether a key is saved under slot. Never prompts.
	Exists(slot string) (bool, error)

	// Delete removes the saved key. Removing an absent key is not an error.
	Delete(slot string) error
}

// KeyringStore is a Store over the platform keyring (Keychain, wincred,
// Secret Service, or an encrypted file fallback in headless setups).
type KeyringStore struct {
	open func() (keyring.Keyring, error)
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore opens the named service's keyring. fileDir and
// filePassword configure the encrypted-file fallback backend used where no
// OS keyring is available.
func NewKeyringStore(serviceName, fileDir string, filePassword keyring.PromptFunc) *KeyringStore {
	cfg := keyring.Config{
		ServiceName:      serviceName,
		FileDir:          fileDir,
		FilePasswordFunc: filePassword,
	}
	return &KeyringStore{
		open: func() (keyring.Keyring, error) { return keyring.Open(cfg) },
	}
}

// NewStoreWithKeyring wires an already-open keyring; used by tests with
// keyring.NewArrayKeyring.
func NewStoreWithKeyring(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func (s *KeyringStore) Save(slot string, key []byte) error {
	ring, err := s.open()
	if err != nil {
		return err
	}
	return ring.Set(keyring.Item{
		Key:   slot,
		Data:  append([]byte(nil), key...),
		Label: "passvault key",
	})
}

// Load runs the keyring access in its own goroutine so a hung or cancelled
// prompt cannot wedge the caller. A cancelled wait reads as a denied prompt;
// the late result, if any, is discarded.
func (s *KeyringStore) Load(ctx context.Context, slot string) ([]byte, error) {
	type result struct {
		key []byte
		err error
	}
	ch := make(chan result, 1)

	go func() {
		ring, err := s.open()
		if err != nil {
			ch <- result{nil, err}
			return
		}
		item, err := ring.Get(slot)
		if err != nil {
			if errors.Is(err, keyring.ErrKeyNotFound) {
				ch <- result{nil, ErrKeyNotFound}
				return
			}
			ch <- result{nil, errors.Join(ErrPromptDenied, err)}
			return
		}
		ch <- result{item.Data, nil}
	}()

	select {
	case r := <-ch:
		return r.key, r.err
	case <-ctx.Done():
		return nil, errors.Join(ErrPromptDenied, ctx.Err())
	}
}

func (s *KeyringStore) Exists(slot string) (bool, error) {
	ring, err := s.open()
	if err != nil {
		return false, err
	}
	keys, err := ring.Keys()
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == slot {
			return true, nil
		}
	}
	return false, nil
}

func (s *KeyringStore) Delete(slot string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}
	if err := ring.Remove(slot); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}
