package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/logging"
	"github.com/ivlasov/passvault/internal/server/auth"
	"github.com/ivlasov/passvault/internal/server/models"
)

// --- fakes ---

type fakeUsers struct {
	registerErr error

	loginToken string
	loginErr   error

	keySalt       []byte
	kdfIterations int
	keyInfoErr    error
}

func (f *fakeUsers) Register(ctx context.Context, username string, verifier, keySalt []byte, kdfIterations int) error {
	return f.registerErr
}
func (f *fakeUsers) Login(ctx context.Context, username string, verifier []byte) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.loginToken, nil
}
func (f *fakeUsers) KeyInfo(ctx context.Context, username string) ([]byte, int, error) {
	if f.keyInfoErr != nil {
		return nil, 0, f.keyInfoErr
	}
	return f.keySalt, f.kdfIterations, nil
}

type fakeVaults struct {
	getOut *models.VaultRecord
	getErr error

	putOut *models.VaultRecord
	putErr error

	setupOut *models.VaultRecord
	setupErr error

	lastExpected int64
}

func (f *fakeVaults) Get(ctx context.Context, userID string) (*models.VaultRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}
func (f *fakeVaults) Put(ctx context.Context, userID string, data, iv []byte, expectedVersion int64) (*models.VaultRecord, error) {
	f.lastExpected = expectedVersion
	if f.putErr != nil {
		return nil, f.putErr
	}
	return f.putOut, nil
}
func (f *fakeVaults) Setup(ctx context.Context, userID string, data, iv []byte) (*models.VaultRecord, error) {
	if f.setupErr != nil {
		return nil, f.setupErr
	}
	return f.setupOut, nil
}

type fakeFiles struct {
	key string
	put string
	get string
	err error
}

func (f *fakeFiles) GetPresignedPutURL(ctx context.Context) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.key, f.put, nil
}
func (f *fakeFiles) GetPresignedGetURL(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.get, nil
}

const testSecret = "test-secret"

func newTestRouter(u *fakeUsers, v *fakeVaults, f *fakeFiles) http.Handler {
	if u == nil {
		u = &fakeUsers{}
	}
	if v == nil {
		v = &fakeVaults{}
	}
	if f == nil {
		f = &fakeFiles{}
	}
	h := NewHandler(u, v, f, logging.NewDiscard())
	return NewRouter(h, []byte(testSecret))
}

func bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, []byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doJSONReq(t *testing.T, router http.Handler, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// --- tests ---

func TestRegister(t *testing.T) {
	router := newTestRouter(&fakeUsers{}, nil, nil)

	rr := doJSONReq(t, router, http.MethodPost, "/api/users/register", "",
		registerRequest{Username: "alice", Verifier: []byte("v"), KeySalt: []byte("s"), KDFIterations: 600_000})
	if rr.Code != http.StatusOK {
		t.Fatalf("register: want 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	rr = doJSONReq(t, router, http.MethodPost, "/api/users/register", "",
		registerRequest{Username: "alice"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("register missing fields: want 400, got %d", rr.Code)
	}

	routerErr := newTestRouter(&fakeUsers{registerErr: errors.New("dup")}, nil, nil)
	rr = doJSONReq(t, routerErr, http.MethodPost, "/api/users/register", "",
		registerRequest{Username: "alice", Verifier: []byte("v"), KeySalt: []byte("s")})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("register failure: want 500, got %d", rr.Code)
	}
}

func TestLogin(t *testing.T) {
	router := newTestRouter(&fakeUsers{loginToken: "tok-1"}, nil, nil)

	rr := doJSONReq(t, router, http.MethodPost, "/api/users/login", "",
		loginRequest{Username: "alice", Verifier: []byte("v")})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: want 200, got %d", rr.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Token != "tok-1" {
		t.Fatalf("login body: %q err=%v", rr.Body.String(), err)
	}

	routerBad := newTestRouter(&fakeUsers{loginErr: common.ErrUnauthorized}, nil, nil)
	rr = doJSONReq(t, routerBad, http.MethodPost, "/api/users/login", "",
		loginRequest{Username: "alice", Verifier: []byte("wrong")})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: want 401, got %d", rr.Code)
	}
}

func TestKeyInfo_PreAuth(t *testing.T) {
	router := newTestRouter(&fakeUsers{keySalt: []byte("SALT"), kdfIterations: 600_000}, nil, nil)

	// no Authorization header on purpose
	rr := doJSONReq(t, router, http.MethodGet, "/api/vault/keyinfo?username=alice", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("keyinfo: want 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp keyInfoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("keyinfo body: %v", err)
	}
	if string(resp.KeySalt) != "SALT" || resp.KDFIterations != 600_000 {
		t.Fatalf("keyinfo payload: %+v", resp)
	}

	rr = doJSONReq(t, router, http.MethodGet, "/api/vault/keyinfo", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("keyinfo no username: want 400, got %d", rr.Code)
	}

	routerNF := newTestRouter(&fakeUsers{keyInfoErr: common.ErrNotFound}, nil, nil)
	rr = doJSONReq(t, routerNF, http.MethodGet, "/api/vault/keyinfo?username=ghost", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("keyinfo unknown user: want 404, got %d", rr.Code)
	}
}

func TestGetVault(t *testing.T) {
	rec := &models.VaultRecord{UserID: "u1", EncryptedData: []byte("blob"), IV: []byte("iv"), Version: 3, UpdatedAt: 1700000000000}
	router := newTestRouter(nil, &fakeVaults{getOut: rec}, nil)

	rr := doJSONReq(t, router, http.MethodGet, "/api/vault", bearerFor(t, "u1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get vault: want 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp vaultDocumentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("get vault body: %v", err)
	}
	if resp.Version != 3 || string(resp.EncryptedData) != "blob" {
		t.Fatalf("get vault payload: %+v", resp)
	}

	rr = doJSONReq(t, router, http.MethodGet, "/api/vault", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("get vault without token: want 401, got %d", rr.Code)
	}

	routerNF := newTestRouter(nil, &fakeVaults{getErr: common.ErrNotFound}, nil)
	rr = doJSONReq(t, routerNF, http.MethodGet, "/api/vault", bearerFor(t, "u1"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get vault missing: want 404, got %d", rr.Code)
	}
}

func TestPutVault(t *testing.T) {
	vaults := &fakeVaults{putOut: &models.VaultRecord{UserID: "u1", Version: 4}}
	router := newTestRouter(nil, vaults, nil)

	rr := doJSONReq(t, router, http.MethodPut, "/api/vault", bearerFor(t, "u1"),
		putVaultRequest{EncryptedData: []byte("blob2"), IV: []byte("iv2"), ExpectedVersion: 3})
	if rr.Code != http.StatusOK {
		t.Fatalf("put vault: want 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if vaults.lastExpected != 3 {
		t.Fatalf("expectedVersion not forwarded: %d", vaults.lastExpected)
	}
	var resp vaultDocumentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Version != 4 {
		t.Fatalf("put vault body: %q err=%v", rr.Body.String(), err)
	}
}

func TestPutVault_Conflict(t *testing.T) {
	conflict := &common.VersionConflictError{ServerVersion: 7, LocalVersion: 3}
	router := newTestRouter(nil, &fakeVaults{putErr: conflict}, nil)

	rr := doJSONReq(t, router, http.MethodPut, "/api/vault", bearerFor(t, "u1"),
		putVaultRequest{EncryptedData: []byte("b"), IV: []byte("i"), ExpectedVersion: 3})
	if rr.Code != http.StatusConflict {
		t.Fatalf("stale put: want 409, got %d", rr.Code)
	}
	var resp conflictResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.ServerVersion != 7 {
		t.Fatalf("conflict body: %q err=%v", rr.Body.String(), err)
	}
}

func TestSetupVault(t *testing.T) {
	router := newTestRouter(nil, &fakeVaults{setupOut: &models.VaultRecord{UserID: "u1", Version: 1}}, nil)

	rr := doJSONReq(t, router, http.MethodPost, "/api/vault/setup", bearerFor(t, "u1"),
		setupVaultRequest{EncryptedData: []byte("blob"), IV: []byte("iv")})
	if rr.Code != http.StatusCreated {
		t.Fatalf("setup: want 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp vaultDocumentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Version != 1 {
		t.Fatalf("setup body: %q err=%v", rr.Body.String(), err)
	}
}

func TestFileURLs(t *testing.T) {
	files := &fakeFiles{key: "files/2025/1/2/abc", put: "http://signed/put", get: "http://signed/get"}
	router := newTestRouter(nil, nil, files)

	rr := doJSONReq(t, router, http.MethodGet, "/api/files/upload-url", bearerFor(t, "u1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload-url: want 200, got %d", rr.Code)
	}
	var up uploadURLResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &up); err != nil || up.ObjectKey != files.key || up.URL != files.put {
		t.Fatalf("upload-url body: %q err=%v", rr.Body.String(), err)
	}

	rr = doJSONReq(t, router, http.MethodGet, "/api/files/download-url?key=abc", bearerFor(t, "u1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("download-url: want 200, got %d", rr.Code)
	}
	var down downloadURLResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &down); err != nil || down.URL != files.get {
		t.Fatalf("download-url body: %q err=%v", rr.Body.String(), err)
	}

	rr = doJSONReq(t, router, http.MethodGet, "/api/files/download-url", bearerFor(t, "u1"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("download-url no key: want 400, got %d", rr.Code)
	}

	rr = doJSONReq(t, router, http.MethodGet, "/api/files/upload-url", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("upload-url without token: want 401, got %d", rr.Code)
	}
}

func TestPing(t *testing.T) {
	router := newTestRouter(nil, nil, nil)
	rr := doJSONReq(t, router, http.MethodGet, "/api/ping", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ping: want 200, got %d", rr.Code)
	}
}
