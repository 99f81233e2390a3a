package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth-provider/internal/clients"
	"oauth-provider/internal/handlers"
	"oauth-provider/internal/lockout"
	"oauth-provider/internal/provider"
	"oauth-provider/internal/storage"
	"oauth-provider/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeStorage is an in-memory credential store keyed by username.
type fakeStorage struct {
	users      map[string]string
	failLookup bool
	unhealthy  bool
}

func newFakeStorage(users map[string]string) *fakeStorage {
	if users == nil {
		users = make(map[string]string)
	}
	return &fakeStorage{users: users}
}

func (f *fakeStorage) Connect(config storage.StorageConfig) error { return nil }
func (f *fakeStorage) Close() error                               { return nil }

func (f *fakeStorage) Health() error {
	if f.unhealthy {
		return fmt.Errorf("store unavailable")
	}
	return nil
}

func (f *fakeStorage) CreateUser(ctx context.Context, username, password string) (*storage.User, error) {
	if _, exists := f.users[username]; exists {
		return nil, fmt.Errorf("failed to create user: UNIQUE constraint failed")
	}
	f.users[username] = password
	return &storage.User{ID: len(f.users), Username: username, CreatedAt: time.Now(), UpdatedAt: time.Now()}, nil
}

func (f *fakeStorage) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	if _, exists := f.users[username]; !exists {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	return &storage.User{Username: username}, nil
}

func (f *fakeStorage) GetUserCount(ctx context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeStorage) LookupCredentials(ctx context.Context, username, password string) ([]*storage.User, error) {
	if f.failLookup {
		return nil, fmt.Errorf("connection refused")
	}
	if stored, ok := f.users[username]; ok && stored == password {
		return []*storage.User{{Username: username}}, nil
	}
	return nil, nil
}

func (f *fakeStorage) UpdateUserPassword(ctx context.Context, username, newPassword string) error {
	if _, exists := f.users[username]; !exists {
		return fmt.Errorf("user not found: %s", username)
	}
	f.users[username] = newPassword
	return nil
}

func newTestHandlers(t *testing.T, store storage.Storage) (*handlers.Handlers, *token.Signer) {
	t.Helper()
	return newTestHandlersWithLockout(t, store, nil)
}

func newTestHandlersWithLockout(t *testing.T, store storage.Storage, tracker *lockout.Tracker) (*handlers.Handlers, *token.Signer) {
	t.Helper()

	registry := clients.NewStaticRegistry("public-client", &clients.Registration{
		ClientID:    "backend",
		Secret:      "backend-secret",
		RedirectURI: "https://backend.example.com/callback",
	})
	signer := token.NewSigner(testSecret, "oauth-provider")
	grantProvider := provider.New(store, registry, 20*time.Minute, nil)

	return handlers.New(store, grantProvider, signer, tracker), signer
}

func newTestTracker(t *testing.T, threshold int) *lockout.Tracker {
	t.Helper()

	mr := miniredis.RunT(t)
	tracker, err := lockout.NewTracker(&lockout.Config{
		Address:   mr.Addr(),
		Threshold: threshold,
		Window:    time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	return tracker
}

func postToken(h *handlers.Handlers, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleToken(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleToken_Success(t *testing.T) {
	h, signer := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
		"client_id":  {"public-client"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, "alice", body["userName"])
	assert.InDelta(t, 1200, body["expires_in"], 1)

	accessToken, ok := body["access_token"].(string)
	require.True(t, ok)
	claims, err := signer.Parse(accessToken, token.AudienceBearer)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])

	// The session cookie carries an independent identity for the session audience.
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	_, err = signer.Parse(cookies[0].Value, token.AudienceSession)
	require.NoError(t, err)
	_, err = signer.Parse(cookies[0].Value, token.AudienceBearer)
	assert.Error(t, err)
}

func TestHandleToken_WrongPassword(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wrong"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, "The username or password is incorrect", body["error_description"])
}

func TestHandleToken_UnknownUserSameDenial(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	wrongPassword := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wrong"},
	})
	unknownUser := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"nobody"},
		"password":   {"wrong"},
	})

	// Identical status and body: the response must not reveal which part failed.
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
}

func TestHandleToken_UnsupportedGrantType(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(nil))

	rec := postToken(h, url.Values{"grant_type": {"client_credentials"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", decodeBody(t, rec)["error"])
}

func TestHandleToken_UnknownClientDenied(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
		"client_id":  {"not-registered"},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", decodeBody(t, rec)["error"])
}

func TestHandleToken_PublicClientWithSecretDenied(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	rec := postToken(h, url.Values{
		"grant_type":    {"password"},
		"username":      {"alice"},
		"password":      {"s3cret"},
		"client_id":     {"public-client"},
		"client_secret": {"should-not-be-here"},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", decodeBody(t, rec)["error"])
}

func TestHandleToken_ConfidentialClient(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	rec := postToken(h, url.Values{
		"grant_type":    {"password"},
		"username":      {"alice"},
		"password":      {"s3cret"},
		"client_id":     {"backend"},
		"client_secret": {"backend-secret"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postToken(h, url.Values{
		"grant_type":    {"password"},
		"username":      {"alice"},
		"password":      {"s3cret"},
		"client_id":     {"backend"},
		"client_secret": {"wrong-secret"},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleToken_NoClientIDAccepted(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleToken_LockoutDeniesWithGenericBody(t *testing.T) {
	tracker := newTestTracker(t, 2)
	h, _ := newTestHandlersWithLockout(t, newFakeStorage(map[string]string{"alice": "s3cret"}), tracker)

	wrongAttempt := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wrong"},
	}
	firstDenial := postToken(h, wrongAttempt)
	require.Equal(t, http.StatusBadRequest, firstDenial.Code)
	postToken(h, wrongAttempt)

	// Threshold reached: even the correct password is denied, with a body
	// identical to a wrong-password denial so lockout state stays invisible.
	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, "The username or password is incorrect", body["error_description"])
	assert.Equal(t, firstDenial.Body.String(), rec.Body.String())
}

func TestHandleToken_LockoutResetOnSuccess(t *testing.T) {
	tracker := newTestTracker(t, 2)
	h, _ := newTestHandlersWithLockout(t, newFakeStorage(map[string]string{"alice": "s3cret"}), tracker)

	wrongAttempt := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wrong"},
	}
	correctAttempt := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
	}

	postToken(h, wrongAttempt)
	require.Equal(t, http.StatusOK, postToken(h, correctAttempt).Code)

	// The success cleared the failure count: one more failure stays below the
	// threshold and the next grant succeeds. Without the reset this attempt
	// would be the second failure and the grant would be locked out.
	postToken(h, wrongAttempt)
	require.Equal(t, http.StatusOK, postToken(h, correctAttempt).Code)
}

func TestHandleToken_LockoutIsolatedPerUsername(t *testing.T) {
	tracker := newTestTracker(t, 2)
	h, _ := newTestHandlersWithLockout(t, newFakeStorage(map[string]string{
		"alice": "s3cret",
		"bob":   "hunter22",
	}), tracker)

	wrongAttempt := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wrong"},
	}
	postToken(h, wrongAttempt)
	postToken(h, wrongAttempt)

	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"bob"},
		"password":   {"hunter22"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleToken_RejectsDuplicateClientAuth(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(map[string]string{"alice": "s3cret"}))

	form := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
		"client_id":  {"backend"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("backend", "backend-secret")
	rec := httptest.NewRecorder()
	h.HandleToken(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestHandleToken_StoreFailure(t *testing.T) {
	store := newFakeStorage(map[string]string{"alice": "s3cret"})
	store.failLookup = true
	h, _ := newTestHandlers(t, store)

	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "server_error", body["error"])
	// Internal failure detail must not leak into the response.
	assert.NotContains(t, body["error_description"], "connection refused")
}

func TestHandleAuthorize_RequiresClientID(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(nil))

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil)
	rec := httptest.NewRecorder()
	h.HandleAuthorize(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestHandleAuthorize_PublicClientRootOrigin(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(nil))

	// Exact root origin match passes validation and falls through to the
	// unsupported response type.
	target := "/oauth/authorize?client_id=public-client&redirect_uri=" + url.QueryEscape("http://app.example.com/")
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "app.example.com"
	rec := httptest.NewRecorder()
	h.HandleAuthorize(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_response_type", decodeBody(t, rec)["error"])
}

func TestHandleAuthorize_RedirectMismatch(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(nil))

	// Same origin but a path suffix: no normalization, exact match only.
	target := "/oauth/authorize?client_id=public-client&redirect_uri=" + url.QueryEscape("http://app.example.com/callback")
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "app.example.com"
	rec := httptest.NewRecorder()
	h.HandleAuthorize(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func bearerToken(t *testing.T, h *handlers.Handlers) string {
	t.Helper()
	rec := postToken(h, url.Values{
		"grant_type": {"password"},
		"username":   {"admin"},
		"password":   {"adminpass"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody(t, rec)["access_token"].(string)
}

func TestHandleCreateUser(t *testing.T) {
	store := newFakeStorage(map[string]string{"admin": "adminpass"})
	h, _ := newTestHandlers(t, store)
	accessToken := bearerToken(t, h)

	req := httptest.NewRequest(http.MethodPost, "/api/users",
		strings.NewReader(`{"username":"bob","password":"longenough"}`))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	h.HandleCreateUser(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "bob", body["username"])
	assert.NotContains(t, body, "password_hash")
	assert.Contains(t, store.users, "bob")
}

func TestHandleCreateUser_RequiresBearerToken(t *testing.T) {
	h, _ := newTestHandlers(t, newFakeStorage(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/users",
		strings.NewReader(`{"username":"bob","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.HandleCreateUser(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/users",
		strings.NewReader(`{"username":"bob","password":"longenough"}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.HandleCreateUser(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreateUser_Validation(t *testing.T) {
	store := newFakeStorage(map[string]string{"admin": "adminpass"})
	h, _ := newTestHandlers(t, store)
	accessToken := bearerToken(t, h)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"empty username", `{"username":"  ","password":"longenough"}`, http.StatusBadRequest},
		{"short password", `{"username":"bob","password":"short"}`, http.StatusBadRequest},
		{"duplicate username", `{"username":"admin","password":"longenough"}`, http.StatusConflict},
		{"invalid json", `{`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(tc.body))
			req.Header.Set("Authorization", "Bearer "+accessToken)
			rec := httptest.NewRecorder()
			h.HandleCreateUser(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandleChangePassword(t *testing.T) {
	store := newFakeStorage(map[string]string{"admin": "adminpass"})
	h, _ := newTestHandlers(t, store)
	accessToken := bearerToken(t, h)

	req := httptest.NewRequest(http.MethodPut, "/api/users/password",
		strings.NewReader(`{"current_password":"adminpass","new_password":"newlongpass"}`))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	h.HandleChangePassword(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "newlongpass", store.users["admin"])
}

func TestHandleChangePassword_WrongCurrentPassword(t *testing.T) {
	store := newFakeStorage(map[string]string{"admin": "adminpass"})
	h, _ := newTestHandlers(t, store)
	accessToken := bearerToken(t, h)

	req := httptest.NewRequest(http.MethodPut, "/api/users/password",
		strings.NewReader(`{"current_password":"wrong","new_password":"newlongpass"}`))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	h.HandleChangePassword(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "adminpass", store.users["admin"])
}

func TestHealthCheck(t *testing.T) {
	store := newFakeStorage(nil)
	h, _ := newTestHandlers(t, store)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	store.unhealthy = true
	rec = httptest.NewRecorder()
	h.HealthCheck(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, rec)["status"])
}
