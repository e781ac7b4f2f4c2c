package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/cryptox"
)

// HTTPStore talks JSON over HTTPS to the vault server. The bearer token
// obtained by Login is attached to every subsequent request.
type HTTPStore struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore builds a store for the given base URL ("https://host:port").
// timeout bounds every single request; a hit timeout surfaces as a network
// error, never as an auth failure or a conflict.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetToken injects a previously persisted session token.
func (s *HTTPStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *HTTPStore) getToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// wire DTOs; []byte fields ride as base64 strings, which is exactly the
// encoding discipline the protocol wants.
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

type vaultDocumentDTO struct {
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

func (s *HTTPStore) Register(ctx context.Context, username string, verifier, keySalt []byte, kdfIterations int) error {
	req := registerRequest{Username: username, Verifier: verifier, KeySalt: keySalt, KDFIterations: kdfIterations}
	return s.doJSON(ctx, http.MethodPost, "/api/users/register", req, nil, nil)
}

func (s *HTTPStore) Login(ctx context.Context, username string, verifier []byte) error {
	var resp loginResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/users/login", loginRequest{Username: username, Verifier: verifier}, &resp, nil); err != nil {
		return err
	}
	s.SetToken(resp.Token)
	return nil
}

func (s *HTTPStore) GetKeyInfo(ctx context.Context, username string) (*KeyInfo, error) {
	var resp keyInfoResponse
	err := s.getWithRetry(ctx, "/api/vault/keyinfo?username="+url.QueryEscape(username), &resp)
	if err != nil {
		return nil, err
	}
	return &KeyInfo{KeySalt: resp.KeySalt, KDFIterations: resp.KDFIterations}, nil
}

func (s *HTTPStore) GetVault(ctx context.Context) (*VaultDocument, error) {
	var resp vaultDocumentDTO
	err := s.getWithRetry(ctx, "/api/vault", &resp)
	if err != nil {
		return nil, err
	}
	return docFromDTO(resp), nil
}

func (s *HTTPStore) PutVault(ctx context.Context, env *cryptox.Envelope, expectedVersion int64) (*VaultDocument, error) {
	req := putVaultRequest{EncryptedData: env.Ciphertext, IV: env.IV, ExpectedVersion: expectedVersion}
	var resp vaultDocumentDTO
	// never auto-retried: a conflict needs new input and a replayed write
	// after a timeout could double-apply
	onConflict := func(body []byte) error {
		var c conflictResponse
		if err := json.Unmarshal(body, &c); err != nil {
			return fmt.Errorf("%w: malformed conflict body", common.ErrInvalidVaultData)
		}
		return &common.VersionConflictError{ServerVersion: c.ServerVersion, LocalVersion: expectedVersion}
	}
	if err := s.doJSON(ctx, http.MethodPut, "/api/vault", req, &resp, onConflict); err != nil {
		return nil, err
	}
	return docFromDTO(resp), nil
}

func (s *HTTPStore) SetupVault(ctx context.Context, env *cryptox.Envelope) (*VaultDocument, error) {
	req := setupVaultRequest{EncryptedData: env.Ciphertext, IV: env.IV}
	var resp vaultDocumentDTO
	if err := s.doJSON(ctx, http.MethodPost, "/api/vault/setup", req, &resp, nil); err != nil {
		return nil, err
	}
	return docFromDTO(resp), nil
}

func (s *HTTPStore) GetUploadURL(ctx context.Context) (string, string, error) {
	var resp uploadURLResponse
	if err := s.doJSON(ctx, http.MethodGet, "/api/files/upload-url", nil, &resp, nil); err != nil {
		return "", "", err
	}
	return resp.ObjectKey, resp.URL, nil
}

func (s *HTTPStore) GetDownloadURL(ctx context.Context, key string) (string, error) {
	var resp downloadURLResponse
	path := "/api/files/download-url?key=" + url.QueryEscape(key)
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (s *HTTPStore) Ping(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodGet, "/api/ping", nil, nil, nil)
}

func docFromDTO(d vaultDocumentDTO) *VaultDocument {
	return &VaultDocument{
		EncryptedData: d.EncryptedData,
		IV:            d.IV,
		Version:       d.Version,
		UpdatedAt:     d.UpdatedAt,
	}
}

// getWithRetry wraps idempotent GETs in a short Fibonacci backoff, retrying
// only transient network failures. Everything else passes through.
func (s *HTTPStore) getWithRetry(ctx context.Context, path string, out any) error {
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.doJSON(ctx, http.MethodGet, path, nil, out, nil)
		if errors.Is(err, common.ErrNetwork) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// doJSON performs one request and maps the response status to the protocol's
// error taxonomy. onConflict, when non-nil, converts a 409 body into a typed
// error; without it a 409 is an internal error.
func (s *HTTPStore) doJSON(ctx context.Context, method, path string, in, out any, onConflict func(body []byte) error) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.getToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidVaultData, err)
		}
		return nil
	case http.StatusUnauthorized:
		return common.ErrUnauthorized
	case http.StatusNotFound:
		return common.ErrVaultNotSetup
	case http.StatusConflict:
		if onConflict != nil {
			return onConflict(respBody)
		}
		return fmt.Errorf("%w: unexpected conflict", common.ErrInternal)
	default:
		return fmt.Errorf("%w: server returned %d: %s", common.ErrInternal, resp.StatusCode, string(respBody))
	}
}
