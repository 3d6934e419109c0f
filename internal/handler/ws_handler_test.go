package handler

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/nearby"
	"callingcard/internal/app/session"
	"callingcard/internal/app/user"
)

type wsRecorder struct {
	connected chan struct{}
	found     chan string
	lost      chan string
}

func newWSRecorder() *wsRecorder {
	return &wsRecorder{
		connected: make(chan struct{}, 1),
		found:     make(chan string, 8),
		lost:      make(chan string, 8),
	}
}

func (r *wsRecorder) OnConnected()                { r.connected <- struct{}{} }
func (r *wsRecorder) OnConnectionSuspended(error) {}
func (r *wsRecorder) OnConnectionFailed(error)    {}
func (r *wsRecorder) OnFound(content []byte)      { r.found <- string(content) }
func (r *wsRecorder) OnLost(content []byte)       { r.lost <- string(content) }

func await[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func signedInSession(t *testing.T, serverURL, name, email string) (*session.Session, *session.API, *wsRecorder) {
	t.Helper()

	api := session.NewAPI(serverURL, nil)
	card, err := user.New(name, email, "")
	require.NoError(t, err)
	_, err = api.SignIn(context.Background(), card)
	require.NoError(t, err)

	rec := newWSRecorder()
	s := session.New(session.Config{ServerURL: serverURL, Vicinity: "hall-1", Token: api.Token})
	s.SetConnectionCallbacks(rec)
	s.Connect()
	await(t, rec.connected, name+" connected")
	t.Cleanup(s.Disconnect)

	return s, api, rec
}

func TestNearbyWebSocket_ConsentThenDiscovery(t *testing.T) {
	env := newTestEnv(t, false)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	ada, adaAPI, _ := signedInSession(t, server.URL, "Ada", "ada@example.com")
	bob, bobAPI, bobEvents := signedInSession(t, server.URL, "Bob", "bob@example.com")

	statuses := make(chan nearby.Status, 4)
	result := func(s nearby.Status) { statuses <- s }

	card := []byte(`{"name":"Ada","emailAddress":"ada@example.com"}`)
	ada.Publish(card, session.PublishOptions{}, result)

	status := await(t, statuses, "publish status")
	require.Equal(t, nearby.StatusNeedsResolution, status.Code)
	assert.Equal(t, nearby.ResolutionNearbyOptIn, status.Resolution)

	require.NoError(t, adaAPI.SetNearbyConsent(context.Background(), true))
	require.NoError(t, bobAPI.SetNearbyConsent(context.Background(), true))

	ada.Publish(card, session.PublishOptions{}, result)
	assert.True(t, await(t, statuses, "publish status").IsSuccess())

	bob.Subscribe(bobEvents, session.SubscribeOptions{}, result)
	assert.True(t, await(t, statuses, "subscribe status").IsSuccess())
	assert.Equal(t, string(card), await(t, bobEvents.found, "found"))

	ada.Disconnect()
	assert.Equal(t, string(card), await(t, bobEvents.lost, "lost"))
}
