package models

// VaultRecord is one user's encrypted vault blob. Version is the
// compare-and-swap counter: every accepted PUT increments it by one.
// UpdatedAt is epoch milliseconds.
type VaultRecord struct {
	UserID        string
	EncryptedData []byte
	IV            []byte
	Version       int64
	UpdatedAt     int64
}
