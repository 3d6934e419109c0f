package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callingcard/internal/app/prefs"
	"callingcard/internal/app/user"
	"callingcard/internal/pkg/errs"
)

// ErrSignedOut is returned by calls that need a token when none is held.
var ErrSignedOut = errors.New("session: not signed in")

const defaultHTTPTimeout = 15 * time.Second

// APIError is a non-success envelope returned by the service.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Profile is the signed-in account as reported by the service.
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	EmailAddress  string `json:"emailAddress"`
	PhotoURL      string `json:"photoUrl,omitempty"`
	NearbyConsent bool   `json:"nearbyConsent"`
}

// Card returns the calling card of the profile.
func (p Profile) Card() (user.User, error) {
	return user.New(p.Name, p.EmailAddress, p.PhotoURL)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// API is a client of the REST endpoints. It holds the identity token after SignIn.
type API struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPI returns a client for the service at baseURL. A nil httpClient uses a default.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Token returns the held identity token, or "".
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// SetToken replaces the held identity token.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// SignIn presents card and keeps the returned token.
func (a *API) SignIn(ctx context.Context, card user.User) (Profile, error) {
	body := map[string]string{
		"name":  card.Name,
		"email": card.EmailAddress,
	}
	if card.PhotoURL != nil {
		body["photoUrl"] = card.PhotoURL.String()
	}

	var out struct {
		Token string  `json:"token"`
		User  Profile `json:"user"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/api/auth/signin", body, &out, false); err != nil {
		return Profile{}, err
	}

	a.SetToken(out.Token)
	return out.User, nil
}

// SignOut tells the service and forgets the token.
func (a *API) SignOut(ctx context.Context) error {
	err := a.doJSON(ctx, http.MethodPost, "/api/auth/signout", nil, nil, true)
	a.SetToken("")
	return err
}

// Me returns the signed-in profile.
func (a *API) Me(ctx context.Context) (Profile, error) {
	var out struct {
		User Profile `json:"user"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &out, true); err != nil {
		return Profile{}, err
	}
	return out.User, nil
}

// SetNearbyConsent records the user's answer to the Nearby opt-in.
func (a *API) SetNearbyConsent(ctx context.Context, accept bool) error {
	return a.doJSON(ctx, http.MethodPost, "/api/nearby/consent", map[string]bool{"accept": accept}, nil, true)
}

// UploadPhoto stores a profile photo and returns its public URL.
func (a *API) UploadPhoto(ctx context.Context, mimeType string, data io.Reader) (string, error) {
	var out struct {
		PhotoURL string `json:"photoUrl"`
	}
	err := a.do(ctx, http.MethodPost, "/api/photos/upload", mimeType, data, &out, true)
	return out.PhotoURL, err
}

// Get implements prefs.Store against the signed-in account.
func (a *API) Get(ctx context.Context, key string) ([]byte, error) {
	var raw json.RawMessage
	err := a.doJSON(ctx, http.MethodGet, "/api/prefs/"+url.PathEscape(key), nil, &raw, true)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == errs.ErrPreferenceNotFound {
			return nil, prefs.ErrNotFound
		}
		return nil, err
	}
	return raw, nil
}

// Put implements prefs.Store against the signed-in account.
func (a *API) Put(ctx context.Context, key string, value []byte) error {
	return a.do(ctx, http.MethodPut, "/api/prefs/"+url.PathEscape(key), "application/json", bytes.NewReader(value), nil, true)
}

func (a *API) doJSON(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return a.do(ctx, method, path, "application/json", body, out, authed)
}

func (a *API) do(ctx context.Context, method, path, contentType string, body io.Reader, out any, authed bool) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if authed {
		token := a.Token()
		if token == "" {
			return ErrSignedOut
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	if env.Code != 0 || res.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: res.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
