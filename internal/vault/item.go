// Package vault defines the decrypted vault data model: the root aggregate,
// folders, and the closed set of secret item variants. Everything here lives
// only in process memory between unlock and lock; the persisted and
// transmitted form is always an encrypted envelope produced elsewhere.
package vault

import (
	"encoding/json"
	"errors"

	"github.com/ivlasov/passvault/internal/totp"
)

// ItemKind discriminates the secret variants.
type ItemKind string

const (
	KindPassword     ItemKind = "password"
	KindPasskey      ItemKind = "passkey"
	KindNote         ItemKind = "note"
	KindCard         ItemKind = "card"
	KindBankAccount  ItemKind = "bank_account"
	KindFile         ItemKind = "file"
	KindCryptoWallet ItemKind = "crypto_wallet"

	// KindCorrupted is not a real variant: it is the degraded form of an
	// item whose stored payload failed to parse. It keeps the vault loadable
	// and the raw bytes recoverable, but supports nothing except permanent
	// deletion.
	KindCorrupted ItemKind = "corrupted"
)

var (
	ErrItemNotFound   = errors.New("vault: item not found")
	ErrFolderNotFound = errors.New("vault: folder not found")
	ErrNotRestorable  = errors.New("vault: item cannot be restored")
	ErrNotFavoritable = errors.New("vault: item cannot be favorited")
)

// ItemData is the sealed payload union. Exactly one implementation exists
// per ItemKind; adding a variant means touching every exhaustive switch in
// this package. Items carry payloads as pointers (*PasswordData and so on):
// decode returns pointers and every dispatch site switches on pointers, so
// creation sites must use the same form.
type ItemData interface {
	Kind() ItemKind
}

// PasswordData is a classic site login.
type PasswordData struct {
	Username string       `json:"username"`
	Password string       `json:"password"`
	URLs     []string     `json:"urls"`
	Notes    string       `json:"notes,omitempty"`
	TOTP     *totp.Config `json:"totp,omitempty"`
}

// PasskeyData carries WebAuthn credential material.
type PasskeyData struct {
	RelyingPartyID   string `json:"rpId"`
	RelyingPartyName string `json:"rpName"`
	CredentialID     string `json:"credentialId"`
	PublicKey        string `json:"publicKey"`
	PrivateKey       string `json:"privateKey"`
	UserHandle       string `json:"userHandle"`
	UserName         string `json:"userName"`
	SignCount        uint32 `json:"signCount"`
}

type NoteData struct {
	Content string `json:"content"`
}

type CardData struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpiryMonth    int    `json:"expiryMonth"`
	ExpiryYear     int    `json:"expiryYear"`
	CVV            string `json:"cvv"`
}

type BankAccountData struct {
	AccountHolder string `json:"accountHolder,omitempty"`
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	IBAN          string `json:"iban,omitempty"`
}

// FileData is attachment metadata only; the encrypted blob itself lives in
// the external object store under ObjectStoreKey.
type FileData struct {
	FileName       string `json:"fileName"`
	FileSize       int64  `json:"fileSize"`
	MimeType       string `json:"mimeType"`
	ObjectStoreKey string `json:"objectStoreKey"`
	EncryptionIV   []byte `json:"encryptionIv"`
}

type CryptoWalletData struct {
	Address    string `json:"address"`
	SeedPhrase string `json:"seedPhrase,omitempty"`
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// CorruptedData preserves the raw stored form of an item that failed to
// parse into any known variant.
type CorruptedData struct {
	Raw json.RawMessage `json:"raw"`
}

func (PasswordData) Kind() ItemKind     { return KindPassword }
func (PasskeyData) Kind() ItemKind      { return KindPasskey }
func (NoteData) Kind() ItemKind         { return KindNote }
func (CardData) Kind() ItemKind         { return KindCard }
func (BankAccountData) Kind() ItemKind  { return KindBankAccount }
func (FileData) Kind() ItemKind         { return KindFile }
func (CryptoWalletData) Kind() ItemKind { return KindCryptoWallet }
func (CorruptedData) Kind() ItemKind    { return KindCorrupted }

// Item is the common envelope shared by every variant. Timestamps are epoch
// milliseconds. A non-nil DeletedAt means the item is in the trash.
type Item struct {
	ID        string
	Name      string
	FolderID  *string
	Favorite  bool
	CreatedAt int64
	UpdatedAt int64
	DeletedAt *int64
	Data      ItemData
}

// Deleted reports whether the item is in the trash.
func (i *Item) Deleted() bool { return i.DeletedAt != nil }

// Kind returns the variant discriminant. Items deserialized from storage
// always have non-nil Data.
func (i *Item) Kind() ItemKind {
	if i.Data == nil {
		return KindCorrupted
	}
	return i.Data.Kind()
}

// CanRestore reports whether the variant supports leaving the trash.
// The switch is exhaustive over every variant on purpose. Payloads are
// always carried as pointers; decode produces them and creation sites
// follow the same convention.
func (i *Item) CanRestore() bool {
	switch i.Data.(type) {
	case *PasswordData,
		*PasskeyData,
		*NoteData,
		*CardData,
		*BankAccountData,
		*FileData,
		*CryptoWalletData:
		return true
	case *CorruptedData:
		return false
	default:
		return false
	}
}

// CanFavorite reports whether the variant supports the favorite flag.
func (i *Item) CanFavorite() bool {
	return i.CanRestore()
}

// wireItem is the serialized form. The payload rides under "data" next to a
// type tag; envelope fields stay flat so storage stays diffable.
type wireItem struct {
	Type      ItemKind        `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	FolderID  *string         `json:"folderId,omitempty"`
	Favorite  bool            `json:"favorite,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
	DeletedAt *int64          `json:"deletedAt,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func (i Item) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(i.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireItem{
		Type:      i.Kind(),
		ID:        i.ID,
		Name:      i.Name,
		FolderID:  i.FolderID,
		Favorite:  i.Favorite,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		DeletedAt: i.DeletedAt,
		Data:      data,
	})
}

// UnmarshalJSON parses one stored item. A payload that does not match any
// known variant degrades to CorruptedData instead of failing, so one bad
// record never takes the whole vault down. Only a structurally broken JSON
// document is an error.
func (i *Item) UnmarshalJSON(raw []byte) error {
	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}

	i.ID = w.ID
	i.Name = w.Name
	i.FolderID = w.FolderID
	i.Favorite = w.Favorite
	i.CreatedAt = w.CreatedAt
	i.UpdatedAt = w.UpdatedAt
	i.DeletedAt = w.DeletedAt
	i.Data = decodeItemData(w.Type, w.Data, raw)
	return nil
}

func decodeItemData(kind ItemKind, data json.RawMessage, whole []byte) ItemData {
	corrupted := func() ItemData {
		return &CorruptedData{Raw: append(json.RawMessage(nil), whole...)}
	}
	if len(data) == 0 {
		return corrupted()
	}

	switch kind {
	case KindPassword:
		var d PasswordData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindPasskey:
		var d PasskeyData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindNote:
		var d NoteData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindCard:
		var d CardData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindBankAccount:
		var d BankAccountData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindFile:
		var d FileData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindCryptoWallet:
		var d CryptoWalletData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	case KindCorrupted:
		var d CorruptedData
		if json.Unmarshal(data, &d) != nil {
			return corrupted()
		}
		return &d
	default:
		return corrupted()
	}
}
