// Package engine owns the client's vault session: key lifecycle, the
// decrypted in-memory vault, optimistic-concurrency sync against the remote
// store, the on-disk encrypted cache, and the credential index feed.
//
// All exported methods are safe for concurrent use. The zero-knowledge
// boundary is enforced here: plaintext and the derived key exist only inside
// this process while the session is unlocked.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivlasov/passvault/internal/client/cache"
	"github.com/ivlasov/passvault/internal/client/index"
	"github.com/ivlasov/passvault/internal/client/keystore"
	"github.com/ivlasov/passvault/internal/client/remote"
	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/cryptox"
	"github.com/ivlasov/passvault/internal/health"
	"github.com/ivlasov/passvault/internal/logging"
	"github.com/ivlasov/passvault/internal/totp"
	"github.com/ivlasov/passvault/internal/vault"
)

// DefaultKeySlot is the keyring slot the derived key is parked in.
const DefaultKeySlot = "vault-key"

// ErrNoTOTP is returned when a code is requested for an item that has no
// authenticator secret attached.
var ErrNoTOTP = errors.New("item has no totp secret")

// Options wires an Engine. Store, Cache, Keys and Logger are required;
// Sink may be nil when no autofill surface exists.
type Options struct {
	Store    remote.Store
	Cache    cache.Cache
	Keys     keystore.Store
	Sink     index.Sink
	Logger   logging.Logger
	Username string
	KeySlot  string
	// Now is a clock seam for tests.
	Now func() time.Time
}

// Engine is the vault session state machine. A session is either locked
// (no key, no plaintext) or unlocked. The generation counter is bumped on
// every lock and unlock; slow network completions compare generations and
// drop their results when the session changed underneath them.
type Engine struct {
	store  remote.Store
	cache  cache.Cache
	keys   keystore.Store
	sink   index.Sink
	logger logging.Logger

	username string
	keySlot  string
	now      func() time.Time

	mu            sync.Mutex
	key           []byte
	vault         *vault.Vault
	serverVersion int64
	dirty         bool
	generation    uint64

	// pushMu serialises remote writes so pushes leave the client in the
	// order their mutations were applied.
	pushMu sync.Mutex
}

func New(opts Options) *Engine {
	e := &Engine{
		store:    opts.Store,
		cache:    opts.Cache,
		keys:     opts.Keys,
		sink:     opts.Sink,
		logger:   opts.Logger,
		username: opts.Username,
		keySlot:  opts.KeySlot,
		now:      opts.Now,
	}
	if e.keySlot == "" {
		e.keySlot = DefaultKeySlot
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Unlocked reports whether a key is currently held.
func (e *Engine) Unlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key != nil
}

// ServerVersion returns the version counter of the last synced document.
func (e *Engine) ServerVersion() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serverVersion
}

// Dirty reports whether local changes are awaiting a successful push.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Setup registers the account, provisions its first (empty) encrypted vault
// and leaves the session unlocked. The salt is generated locally; the server
// only ever sees the verifier, never the key or password.
func (e *Engine) Setup(ctx context.Context, password []byte) error {
	salt := cryptox.GenerateSalt()
	key := cryptox.DeriveKey(password, salt, cryptox.DefaultIterations)
	verifier := cryptox.MakeVerifier(key)

	if err := e.store.Register(ctx, e.username, verifier, salt, cryptox.DefaultIterations); err != nil {
		cryptox.Wipe(key)
		return err
	}
	if err := e.store.Login(ctx, e.username, verifier); err != nil {
		cryptox.Wipe(key)
		return err
	}

	v := vault.New()
	v.LastModified = e.now().UnixMilli()
	plaintext, err := json.Marshal(v)
	if err != nil {
		cryptox.Wipe(key)
		return fmt.Errorf("%w: %v", common.ErrInvalidVaultData, err)
	}
	env, err := cryptox.Encrypt(plaintext, key)
	cryptox.Wipe(plaintext)
	if err != nil {
		cryptox.Wipe(key)
		return err
	}
	doc, err := e.store.SetupVault(ctx, env)
	if err != nil {
		cryptox.Wipe(key)
		return err
	}
	v.Version = doc.Version

	e.install(key, v, doc.Version)
	e.persistSnapshot(ctx, doc)
	e.saveKey(ctx, key)
	e.notifyIndex(ctx, v)
	return nil
}

// Unlock performs a full password unlock: fetch key info, derive the key,
// authenticate, fetch and decrypt the vault. A wrong password surfaces as
// ErrUnauthorized from login; tampered or mismatched ciphertext surfaces as
// the single ErrDecryptionFailed.
func (e *Engine) Unlock(ctx context.Context, password []byte) error {
	info, err := e.store.GetKeyInfo(ctx, e.username)
	if err != nil {
		return err
	}
	key := cryptox.DeriveKey(password, info.KeySalt, info.KDFIterations)
	verifier := cryptox.MakeVerifier(key)
	if err := e.store.Login(ctx, e.username, verifier); err != nil {
		cryptox.Wipe(key)
		return err
	}

	gen := e.currentGeneration()
	doc, err := e.store.GetVault(ctx)
	if err != nil {
		cryptox.Wipe(key)
		return err
	}
	v, err := decryptVault(doc.Envelope(), key)
	if err != nil {
		cryptox.Wipe(key)
		return err
	}
	v.Version = doc.Version

	if !e.installIfCurrent(gen, key, v, doc.Version) {
		cryptox.Wipe(key)
		return common.ErrNotAuthenticated
	}
	e.persistSnapshot(ctx, doc)
	e.saveKey(ctx, key)
	e.notifyIndex(ctx, v)
	return nil
}

// UnlockWithCache unlocks from the keyring-parked key and the on-disk
// snapshot, never touching the network on the happy path. The keyring load
// is attempted exactly once; ctx bounds its user-interaction prompt.
//
// If the cached snapshot no longer decrypts under the parked key the cache
// is cleared (it is unreadable forever under this key) and one remote fetch
// is attempted instead. On a cache-path unlock a background sync is kicked
// off and not awaited.
func (e *Engine) UnlockWithCache(ctx context.Context) error {
	key, err := e.keys.Load(ctx, e.keySlot)
	if err != nil {
		return err
	}

	gen := e.currentGeneration()

	rec, err := e.cache.Load(ctx)
	if err != nil {
		e.logger.Warn(ctx, "cache load failed", "error", err)
	}
	if rec != nil {
		env := &cryptox.Envelope{Ciphertext: rec.EncryptedData, IV: rec.IV}
		v, derr := decryptVault(env, key)
		if derr == nil {
			v.Version = rec.Version
			if !e.installIfCurrent(gen, key, v, rec.Version) {
				cryptox.Wipe(key)
				return common.ErrNotAuthenticated
			}
			e.notifyIndex(ctx, v)
			go e.backgroundSync()
			return nil
		}
		e.logger.Warn(ctx, "cached vault no longer decrypts, clearing cache")
		if cerr := e.cache.Clear(ctx); cerr != nil {
			e.logger.Error(ctx, "cache clear failed", "error", cerr)
		}
	}

	// No usable snapshot. One remote fetch; without a live session this
	// reads as ErrUnauthorized and the caller falls back to password unlock.
	doc, err := e.store.GetVault(ctx)
	if err != nil {
		cryptox.Wipe(key)
		return err
	}
	v, err := decryptVault(doc.Envelope(), key)
	if err != nil {
		cryptox.Wipe(key)
		return err
	}
	v.Version = doc.Version
	if !e.installIfCurrent(gen, key, v, doc.Version) {
		cryptox.Wipe(key)
		return common.ErrNotAuthenticated
	}
	e.persistSnapshot(ctx, doc)
	e.notifyIndex(ctx, v)
	return nil
}

// Lock drops the key and plaintext immediately. In-flight remote
// completions from before the lock are discarded by the generation check.
func (e *Engine) Lock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wipeSessionLocked()
}

// SignOutAndClear locks the session and removes everything recoverable on
// this device: the cached snapshot and the parked key.
func (e *Engine) SignOutAndClear(ctx context.Context) error {
	e.Lock()
	var errs []error
	if err := e.cache.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.keys.Delete(e.keySlot); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sync reconciles with the remote store. Local unpushed changes are pushed
// first; a version conflict, or a clean session, results in a pull that
// wholesale-replaces local state with the server document.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.key == nil {
		e.mu.Unlock()
		return common.ErrNoEncryptionKey
	}
	gen := e.generation
	dirty := e.dirty
	e.mu.Unlock()

	if dirty {
		err := e.push(ctx, gen)
		if err == nil {
			return nil
		}
		if !common.IsVersionConflict(err) {
			return err
		}
		// Stale version: the server document wins and local edits made
		// since the last sync are discarded.
	}
	return e.pull(ctx, gen)
}

// mutate applies a vault mutation locally, marks the session dirty, then
// attempts one push. The local change is never rolled back: any push failure,
// version conflicts included, leaves the edit applied and the session dirty.
// A conflict is only resolved by an explicit Sync, which replaces local state
// with the server document.
func (e *Engine) mutate(ctx context.Context, apply func(v *vault.Vault, now int64) error) error {
	e.mu.Lock()
	if e.key == nil {
		e.mu.Unlock()
		return common.ErrNoEncryptionKey
	}
	now := e.now().UnixMilli()
	if err := apply(e.vault, now); err != nil {
		e.mu.Unlock()
		return err
	}
	e.vault.LastModified = now
	e.dirty = true
	gen := e.generation
	e.mu.Unlock()

	err := e.push(ctx, gen)
	if err == nil {
		return nil
	}
	if common.IsVersionConflict(err) {
		// Surface the conflict but keep the edit and the dirty flag; the
		// caller decides when to Sync, which is what discards stale state.
		return err
	}
	e.logger.Warn(ctx, "push failed, change kept locally", "error", err)
	return err
}

// push encrypts the current vault and PUTs it with the last known server
// version. Serialised so concurrent mutations hit the server in order.
func (e *Engine) push(ctx context.Context, gen uint64) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	if e.key == nil || e.generation != gen {
		e.mu.Unlock()
		return common.ErrNoEncryptionKey
	}
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	plaintext, err := json.Marshal(e.vault)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", common.ErrInvalidVaultData, err)
	}
	key := append([]byte(nil), e.key...)
	expected := e.serverVersion
	e.mu.Unlock()

	env, err := cryptox.Encrypt(plaintext, key)
	cryptox.Wipe(plaintext)
	cryptox.Wipe(key)
	if err != nil {
		return err
	}

	doc, err := e.store.PutVault(ctx, env, expected)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.generation == gen {
		e.serverVersion = doc.Version
		e.vault.Version = doc.Version
		e.dirty = false
	}
	v := e.vault
	stale := e.generation != gen
	e.mu.Unlock()
	if stale {
		return nil
	}

	e.persistSnapshot(ctx, doc)
	e.notifyIndex(ctx, v)
	return nil
}

// pull fetches the server document and replaces local state with it.
func (e *Engine) pull(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	if e.key == nil || e.generation != gen {
		e.mu.Unlock()
		return common.ErrNoEncryptionKey
	}
	key := append([]byte(nil), e.key...)
	e.mu.Unlock()
	defer cryptox.Wipe(key)

	doc, err := e.store.GetVault(ctx)
	if err != nil {
		return err
	}
	v, err := decryptVault(doc.Envelope(), key)
	if err != nil {
		return err
	}
	v.Version = doc.Version

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return nil
	}
	e.vault = v
	e.serverVersion = doc.Version
	e.dirty = false
	e.mu.Unlock()

	e.persistSnapshot(ctx, doc)
	e.notifyIndex(ctx, v)
	return nil
}

// backgroundSync runs a best-effort sync after a cache-path unlock.
func (e *Engine) backgroundSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Sync(ctx); err != nil {
		e.logger.Debug(ctx, "background sync skipped", "error", err)
	}
}

// Item operations. Each one requires an unlocked session and follows the
// local-apply-then-push contract of mutate.

func (e *Engine) AddItem(ctx context.Context, item vault.Item) (string, error) {
	var id string
	err := e.mutate(ctx, func(v *vault.Vault, now int64) error {
		id = v.AddItem(item, now)
		return nil
	})
	return id, err
}

func (e *Engine) UpdateItem(ctx context.Context, id, name string, folderID *string, data vault.ItemData) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.UpdateItem(id, name, folderID, data, now)
	})
}

func (e *Engine) SoftDeleteItem(ctx context.Context, id string) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.SoftDelete(id, now)
	})
}

func (e *Engine) RestoreItem(ctx context.Context, id string) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.Restore(id, now)
	})
}

func (e *Engine) PermanentlyDeleteItem(ctx context.Context, id string) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.PermanentlyDelete(id, now)
	})
}

func (e *Engine) EmptyTrash(ctx context.Context) (int, error) {
	var n int
	err := e.mutate(ctx, func(v *vault.Vault, now int64) error {
		n = v.EmptyTrash(now)
		return nil
	})
	return n, err
}

func (e *Engine) ToggleFavorite(ctx context.Context, id string) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.ToggleFavorite(id, now)
	})
}

func (e *Engine) AddFolder(ctx context.Context, name string, parentID *string) (vault.Folder, error) {
	var f vault.Folder
	err := e.mutate(ctx, func(v *vault.Vault, now int64) error {
		f = v.AddFolder(name, parentID, now)
		return nil
	})
	return f, err
}

func (e *Engine) RenameFolder(ctx context.Context, id, name string) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.RenameFolder(id, name, now)
	})
}

func (e *Engine) DeleteFolder(ctx context.Context, id string) error {
	return e.mutate(ctx, func(v *vault.Vault, now int64) error {
		return v.DeleteFolder(id, now)
	})
}

// AttachmentUploadURL asks the server for a fresh object key and a
// presigned PUT URL. The caller encrypts the blob before uploading; the
// object store only ever sees ciphertext.
func (e *Engine) AttachmentUploadURL(ctx context.Context) (key, url string, err error) {
	if !e.Unlocked() {
		return "", "", common.ErrNoEncryptionKey
	}
	return e.store.GetUploadURL(ctx)
}

// AttachmentDownloadURL returns a presigned GET URL for a stored blob.
func (e *Engine) AttachmentDownloadURL(ctx context.Context, key string) (string, error) {
	if !e.Unlocked() {
		return "", common.ErrNoEncryptionKey
	}
	return e.store.GetDownloadURL(ctx, key)
}

// Read accessors. Slices are fresh copies; callers may hold them across
// engine calls.

func (e *Engine) Items() ([]vault.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return nil, common.ErrNoEncryptionKey
	}
	return e.vault.ActiveItems(), nil
}

func (e *Engine) TrashItems() ([]vault.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return nil, common.ErrNoEncryptionKey
	}
	return e.vault.TrashItems(), nil
}

func (e *Engine) Folders() ([]vault.Folder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return nil, common.ErrNoEncryptionKey
	}
	return append([]vault.Folder(nil), e.vault.Folders...), nil
}

func (e *Engine) FindItem(id string) (vault.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return vault.Item{}, common.ErrNoEncryptionKey
	}
	item, ok := e.vault.FindItem(id)
	if !ok {
		return vault.Item{}, vault.ErrItemNotFound
	}
	return *item, nil
}

// HealthReport analyses the active password items.
func (e *Engine) HealthReport() (health.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key == nil {
		return health.Report{}, common.ErrNoEncryptionKey
	}
	return health.Analyze(e.vault.Items, e.now()), nil
}

// TOTPCode returns the current authenticator code for a password item,
// along with the seconds left before it rotates.
func (e *Engine) TOTPCode(id string) (code string, secondsLeft int, err error) {
	e.mu.Lock()
	if e.key == nil {
		e.mu.Unlock()
		return "", 0, common.ErrNoEncryptionKey
	}
	item, ok := e.vault.FindItem(id)
	if !ok {
		e.mu.Unlock()
		return "", 0, vault.ErrItemNotFound
	}
	data, ok := item.Data.(*vault.PasswordData)
	if !ok || data.TOTP == nil {
		e.mu.Unlock()
		return "", 0, ErrNoTOTP
	}
	cfg := *data.TOTP
	e.mu.Unlock()

	at := e.now()
	code, err = totp.GenerateCode(cfg, at)
	if err != nil {
		return "", 0, err
	}
	period := cfg.Period
	if period <= 0 {
		period = totp.DefaultPeriod
	}
	return code, totp.SecondsRemaining(period, at), nil
}

// install/installIfCurrent commit an unlock result into the session.

func (e *Engine) install(key []byte, v *vault.Vault, version int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wipeSessionLocked()
	e.key = key
	e.vault = v
	e.serverVersion = version
	e.dirty = false
	e.generation++
}

// installIfCurrent commits only if no lock/unlock happened since gen was
// observed; a stale unlock result is dropped.
func (e *Engine) installIfCurrent(gen uint64, key []byte, v *vault.Vault, version int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return false
	}
	cryptox.Wipe(e.key)
	e.key = key
	e.vault = v
	e.serverVersion = version
	e.dirty = false
	e.generation++
	return true
}

func (e *Engine) currentGeneration() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// wipeSessionLocked must be called with mu held.
func (e *Engine) wipeSessionLocked() {
	cryptox.Wipe(e.key)
	e.key = nil
	e.vault = nil
	e.serverVersion = 0
	e.dirty = false
	e.generation++
}

// persistSnapshot overwrites the on-disk cache with the server document.
// Cache failures are logged, never fatal: the cache is an optimisation.
func (e *Engine) persistSnapshot(ctx context.Context, doc *remote.VaultDocument) {
	if e.cache == nil {
		return
	}
	rec := &cache.Record{
		EncryptedData: doc.EncryptedData,
		IV:            doc.IV,
		Version:       doc.Version,
		UpdatedAt:     doc.UpdatedAt,
		LastSyncedAt:  e.now().UnixMilli(),
	}
	if err := e.cache.Save(ctx, rec); err != nil {
		e.logger.Warn(ctx, "cache save failed", "error", err)
	}
}

// saveKey parks the key in the protected key store for cached unlocks.
func (e *Engine) saveKey(ctx context.Context, key []byte) {
	if e.keys == nil {
		return
	}
	if err := e.keys.Save(e.keySlot, key); err != nil {
		e.logger.Warn(ctx, "keyring save failed", "error", err)
	}
}

// notifyIndex pushes a fresh credential index to the platform sink.
func (e *Engine) notifyIndex(ctx context.Context, v *vault.Vault) {
	if e.sink == nil {
		return
	}
	e.mu.Lock()
	entries := index.Build(v)
	e.mu.Unlock()
	if err := e.sink.ReplaceIndex(ctx, entries); err != nil {
		e.logger.Warn(ctx, "credential index update failed", "error", err)
	}
}

// decryptVault decrypts and parses a vault document. Both failure modes
// surface as ErrDecryptionFailed or ErrInvalidVaultData respectively; the
// plaintext is wiped before returning.
func decryptVault(env *cryptox.Envelope, key []byte) (*vault.Vault, error) {
	plaintext, err := cryptox.Decrypt(env, key)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(plaintext)
	v := &vault.Vault{}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidVaultData, err)
	}
	if v.Items == nil {
		v.Items = []vault.Item{}
	}
	if v.Folders == nil {
		v.Folders = []vault.Folder{}
	}
	return v, nil
}
