// Package httpapi exposes the vault server over JSON HTTP. Byte-slice
// fields ride as base64 strings, matching the client's wire contract.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/logging"
	"github.com/ivlasov/passvault/internal/server/models"
)

// UserProvider is the slice of UserService the handlers need.
type UserProvider interface {
	Register(ctx context.Context, username string, verifier, keySalt []byte, kdfIterations int) error
	Login(ctx context.Context, username string, verifier []byte) (string, error)
	KeyInfo(ctx context.Context, username string) (keySalt []byte, kdfIterations int, err error)
}

// VaultProvider is the slice of VaultService the handlers need.
type VaultProvider interface {
	Get(ctx context.Context, userID string) (*models.VaultRecord, error)
	Put(ctx context.Context, userID string, data, iv []byte, expectedVersion int64) (*models.VaultRecord, error)
	Setup(ctx context.Context, userID string, data, iv []byte) (*models.VaultRecord, error)
}

// FileProvider mints presigned object-store URLs for attachment blobs.
type FileProvider interface {
	GetPresignedPutURL(ctx context.Context) (key, url string, err error)
	GetPresignedGetURL(ctx context.Context, key string) (string, error)
}

type Handler struct {
	users  UserProvider
	vaults VaultProvider
	files  FileProvider
	logger logging.Logger
}

func NewHandler(users UserProvider, vaults VaultProvider, files FileProvider, logger logging.Logger) *Handler {
	return &Handler{users: users, vaults: vaults, files: files, logger: logger}
}

type registerRequest struct {
	Username      string `json:"username"`
	Verifier      []byte `json:"verifier"`
	KeySalt       []byte `json:"keySalt"`
	KDFIterations int    `json:"kdfIterations,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type keyInfoResponse struct {
	KeySalt       []byte `json:"keySalt"`
	KDFIterations int    `json:"kdfIterations"`
}

type vaultDocumentResponse struct {
	EncryptedData []byte `json:"encryptedData"`
	IV            []byte `json:"iv"`
	Version       int64  `json:"version"`
	UpdatedAt     int64  `json:"updatedAt"`
}

type putVaultRequest struct {
	EncryptedData   []byte `json:"encryptedData"`
	IV              []byte `json:"iv"`
	ExpectedVersion int64  `json:"expectedVersion"`
}

type setupVaultRequest struct {
	EncryptedData []byte `json:"encryptedData"`
	IV            []byte `json:"iv"`
}

type conflictResponse struct {
	ServerVersion int64 `json:"serverVersion"`
}

type uploadURLResponse struct {
	ObjectKey string `json:"objectKey"`
	URL       string `json:"url"`
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func vaultDocument(rec *models.VaultRecord) vaultDocumentResponse {
	return vaultDocumentResponse{
		EncryptedData: rec.EncryptedData,
		IV:            rec.IV,
		Version:       rec.Version,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Username == "" || len(req.Verifier) == 0 || len(req.KeySalt) == 0 {
		http.Error(w, "username, verifier and keySalt are required", http.StatusBadRequest)
		return
	}

	if err := h.users.Register(r.Context(), req.Username, req.Verifier, req.KeySalt, req.KDFIterations); err != nil {
		h.logger.Warn(r.Context(), "register failed", "username", req.Username, "error", err)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	token, err := h.users.Login(r.Context(), req.Username, req.Verifier)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error(r.Context(), "login failed", "username", req.Username, "error", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// KeyInfo serves key-derivation parameters before authentication; the
// client cannot derive its login verifier without the salt.
func (h *Handler) KeyInfo(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	salt, iterations, err := h.users.KeyInfo(r.Context(), username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error(r.Context(), "keyinfo failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, keyInfoResponse{KeySalt: salt, KDFIterations: iterations})
}

func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rec, err := h.vaults.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			http.Error(w, "vault not set up", http.StatusNotFound)
			return
		}
		h.logger.Error(r.Context(), "vault get failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, vaultDocument(rec))
}

func (h *Handler) PutVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req putVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	rec, err := h.vaults.Put(r.Context(), userID, req.EncryptedData, req.IV, req.ExpectedVersion)
	if err != nil {
		var conflict *common.VersionConflictError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, conflictResponse{ServerVersion: conflict.ServerVersion})
		case errors.Is(err, common.ErrNotFound):
			http.Error(w, "vault not set up", http.StatusNotFound)
		default:
			h.logger.Error(r.Context(), "vault put failed", "user_id", userID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, vaultDocument(rec))
}

func (h *Handler) SetupVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req setupVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	rec, err := h.vaults.Setup(r.Context(), userID, req.EncryptedData, req.IV)
	if err != nil {
		h.logger.Error(r.Context(), "vault setup failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, vaultDocument(rec))
}

func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key, url, err := h.files.GetPresignedPutURL(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "presign upload failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{ObjectKey: key, URL: url})
}

func (h *Handler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	url, err := h.files.GetPresignedGetURL(r.Context(), key)
	if err != nil {
		h.logger.Error(r.Context(), "presign download failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, downloadURLResponse{URL: url})
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
