package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/account"
	"callingcard/internal/app/nearby"
	"callingcard/internal/app/prefs"
	"callingcard/internal/configs"
	"callingcard/internal/pkg/auth/jwt"
	"callingcard/internal/pkg/errs"
)

const testSecret = "test-secret"

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
}

func (s *fakeStorage) PresignUpload(_ context.Context, key, mimeType string, fileSize int64, _ time.Duration) (string, error) {
	return "https://bucket.test/" + key + "?upload", nil
}

func (s *fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.test/" + key + "?download", nil
}

func (s *fakeStorage) Upload(_ context.Context, key, _ string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploaded == nil {
		s.uploaded = map[string][]byte{}
	}
	s.uploaded[key] = data
	return nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploaded, key)
	return nil
}

type testEnv struct {
	deps     *AppDeps
	accounts *account.MemoryRepository
	handler  http.Handler
}

func newTestEnv(t *testing.T, withStorage bool) *testEnv {
	t.Helper()

	accounts := account.NewMemoryRepository()
	manager := nearby.NewManager(accounts, nearby.DefaultTTL)
	t.Cleanup(manager.Shutdown)

	deps := &AppDeps{
		Manager: manager,
		Config: &configs.AppConfig{
			Environment:   configs.EnvDevelopment,
			JWTSecret:     testSecret,
			PublicBaseURL: "http://cards.test",
		},
		Accounts: accounts,
		Prefs:    prefs.NewMemoryStore(),
	}
	if withStorage {
		deps.Storage = &fakeStorage{}
	}

	return &testEnv{deps: deps, accounts: accounts, handler: Router(deps)}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (e *testEnv) signIn(t *testing.T, name, email string) (string, string) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"name": name, "email": email})
	w, env := e.do(t, http.MethodPost, "/api/auth/signin", "", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Token, data.User.ID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	w, body := env.do(t, http.MethodGet, "/health", "", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, body.Code)
	assert.Contains(t, string(body.Data), `"status":"ok"`)
}

func TestSignIn(t *testing.T) {
	env := newTestEnv(t, false)

	token, id := env.signIn(t, "Ada", "ada@example.com")

	payload, err := jwt.ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, id, payload.ID)
	assert.Equal(t, "ada@example.com", payload.Email)

	_, again := env.signIn(t, "Ada L.", "ada@example.com")
	assert.Equal(t, id, again, "sign-in upserts by email")

	w, body := env.do(t, http.MethodGet, "/api/auth/me", token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body.Data), `"name":"Ada L."`)
	assert.Contains(t, string(body.Data), `"nearbyConsent":false`)
}

func TestSignIn_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    int
	}{
		{name: "missing name", contentType: "application/json", body: `{"email":"a@example.com"}`, wantStatus: http.StatusBadRequest, wantCode: errs.ErrInvalidProfile},
		{name: "bad email", contentType: "application/json", body: `{"name":"A","email":"nope"}`, wantStatus: http.StatusBadRequest, wantCode: errs.ErrInvalidProfile},
		{name: "unknown field", contentType: "application/json", body: `{"name":"A","email":"a@example.com","admin":true}`, wantStatus: http.StatusBadRequest, wantCode: errs.ErrInvalidJSONFormat},
		{name: "not json", contentType: "text/plain", body: `hello`, wantStatus: http.StatusUnsupportedMediaType, wantCode: errs.ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)

			w, body := env.do(t, http.MethodPost, "/api/auth/signin", "", tt.contentType, []byte(tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, false)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/auth/signout"},
		{http.MethodPost, "/api/nearby/consent"},
		{http.MethodGet, "/api/prefs/saved_users"},
		{http.MethodPost, "/api/photos/presign"},
	} {
		w, body := env.do(t, route.method, route.path, "not-a-token", "application/json", []byte(`{}`))
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
		assert.Equal(t, errs.ErrUnauthorized, body.Code, route.path)
	}
}

func TestNearbyConsent(t *testing.T) {
	env := newTestEnv(t, false)
	token, id := env.signIn(t, "Ada", "ada@example.com")

	w, _ := env.do(t, http.MethodPost, "/api/nearby/consent", token, "application/json", []byte(`{"accept":true}`))
	require.Equal(t, http.StatusOK, w.Code)

	ok, err := env.accounts.HasNearbyConsent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "Ada", "ada@example.com")
	otherToken, _ := env.signIn(t, "Bob", "bob@example.com")

	w, body := env.do(t, http.MethodGet, "/api/prefs/saved_users", token, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errs.ErrPreferenceNotFound, body.Code)

	value := `[{"name":"Cy","emailAddress":"cy@example.com"}]`
	w, _ = env.do(t, http.MethodPut, "/api/prefs/saved_users", token, "application/json", []byte(value))
	require.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/prefs/saved_users", token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, value, string(body.Data))

	w, _ = env.do(t, http.MethodGet, "/api/prefs/saved_users", otherToken, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "preferences are per account")

	w, body = env.do(t, http.MethodPut, "/api/prefs/saved_users", token, "application/json", []byte(`{"broken"`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrInvalidJSONFormat, body.Code)

	w, body = env.do(t, http.MethodGet, "/api/prefs/UPPER", token, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrPreferenceKeyInvalid, body.Code)
}

func TestPhotos_Disabled(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "Ada", "ada@example.com")

	w, body := env.do(t, http.MethodPost, "/api/photos/presign", token, "application/json",
		[]byte(`{"fileName":"me.png","mimeType":"image/png","fileSize":1024}`))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errs.ErrPhotosDisabled, body.Code)
}

func TestPhotos_PresignUploadAndServe(t *testing.T) {
	env := newTestEnv(t, true)
	token, id := env.signIn(t, "Ada", "ada@example.com")

	w, body := env.do(t, http.MethodPost, "/api/photos/presign", token, "application/json",
		[]byte(`{"fileName":"me.png","mimeType":"image/png","fileSize":1024}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var presigned struct {
		PresignedURL string `json:"presignedUrl"`
		PhotoURL     string `json:"photoUrl"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &presigned))
	assert.True(t, strings.HasPrefix(presigned.PhotoURL, "http://cards.test/api/photos/"+id+"/"))
	assert.True(t, strings.HasSuffix(presigned.PhotoURL, ".png"))

	w, body = env.do(t, http.MethodPost, "/api/photos/presign", token, "application/json",
		[]byte(`{"fileName":"me.exe","mimeType":"application/octet-stream","fileSize":1024}`))
	assert.Equal(t, errs.ErrPhotoTypeInvalid, body.Code)

	w, body = env.do(t, http.MethodPost, "/api/photos/upload", token, "image/jpeg", []byte("jpeg-bytes"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var uploaded struct {
		PhotoURL string `json:"photoUrl"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &uploaded))

	acct, err := env.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uploaded.PhotoURL, acct.PhotoURL)

	w, body = env.do(t, http.MethodPost, "/api/photos/upload", token, "image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var replaced struct {
		PhotoURL string `json:"photoUrl"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &replaced))
	assert.NotEqual(t, uploaded.PhotoURL, replaced.PhotoURL)

	store := env.deps.Storage.(*fakeStorage)
	store.mu.Lock()
	assert.Len(t, store.uploaded, 1, "the replaced photo is deleted")
	store.mu.Unlock()

	path := strings.TrimPrefix(replaced.PhotoURL, "http://cards.test")
	w, _ = env.do(t, http.MethodGet, path, "", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "?download")

	w, body = env.do(t, http.MethodGet, "/api/photos/not-a-uuid/x.png", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrInvalidParams, body.Code)
}

func TestPhotos_UploadRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, true)
	token, _ := env.signIn(t, "Ada", "ada@example.com")

	w, body := env.do(t, http.MethodPost, "/api/photos/upload", token, "text/plain", []byte("hi"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrPhotoTypeInvalid, body.Code)
}

func TestWebSocket_RejectsBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "Ada", "ada@example.com")

	w, body := env.do(t, http.MethodGet, "/ws/nearby/x", token, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.ErrVicinityInvalid, body.Code)

	w, body = env.do(t, http.MethodGet, "/ws/nearby/hall-1", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errs.ErrUnauthorized, body.Code)
}
