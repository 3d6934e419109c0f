package callingcard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/nearby"
	"callingcard/internal/app/prefs"
	"callingcard/internal/app/session"
	"callingcard/internal/app/user"
)

type confirmation struct {
	prompt    string
	action    string
	onConfirm func()
}

// fakeView is only touched on the loop; tests read it after flush.
type fakeView struct {
	saved           []user.User
	nearby          []user.User
	publishing      bool
	switchesEnabled bool
	publishSwitch   bool
	subscribeSwitch bool
	toasts          []string
	confirms        []confirmation
	signInShown     int
}

func (v *fakeView) ShowSaved(users []user.User)  { v.saved = users }
func (v *fakeView) ShowNearby(users []user.User) { v.nearby = users }
func (v *fakeView) SetPublishing(active bool)    { v.publishing = active }
func (v *fakeView) SetSwitchesEnabled(on bool)   { v.switchesEnabled = on }
func (v *fakeView) SetPublishSwitch(on bool)     { v.publishSwitch = on }
func (v *fakeView) SetSubscribeSwitch(on bool)   { v.subscribeSwitch = on }
func (v *fakeView) Toast(message string)         { v.toasts = append(v.toasts, message) }
func (v *fakeView) NavigateToSignIn()            { v.signInShown++ }

func (v *fakeView) Confirm(prompt, action string, onConfirm func()) {
	v.confirms = append(v.confirms, confirmation{prompt: prompt, action: action, onConfirm: onConfirm})
}

type publishCall struct {
	content  []byte
	opts     session.PublishOptions
	callback session.ResultCallback
}

type subscribeCall struct {
	listener session.MessageListener
	opts     session.SubscribeOptions
	callback session.ResultCallback
}

type fakeNearby struct {
	mu           sync.Mutex
	connected    bool
	connecting   bool
	connects     int
	disconnects  int
	publishes    []publishCall
	unpublishes  int
	subscribes   []subscribeCall
	unsubscribes int
}

func (n *fakeNearby) Connect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connects++
	n.connecting = true
}

func (n *fakeNearby) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnects++
	n.connected = false
	n.connecting = false
}

func (n *fakeNearby) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

func (n *fakeNearby) IsConnecting() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connecting
}

func (n *fakeNearby) Publish(content []byte, opts session.PublishOptions, callback session.ResultCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publishes = append(n.publishes, publishCall{content: content, opts: opts, callback: callback})
}

func (n *fakeNearby) Unpublish(session.ResultCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unpublishes++
}

func (n *fakeNearby) Subscribe(listener session.MessageListener, opts session.SubscribeOptions, callback session.ResultCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribes = append(n.subscribes, subscribeCall{listener: listener, opts: opts, callback: callback})
}

func (n *fakeNearby) Unsubscribe(session.ResultCallback) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsubscribes++
}

func (n *fakeNearby) setConnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = true
	n.connecting = false
}

func (n *fakeNearby) lastPublish(t *testing.T) publishCall {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.publishes, "no publish call")
	return n.publishes[len(n.publishes)-1]
}

func (n *fakeNearby) lastSubscribe(t *testing.T) subscribeCall {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.subscribes, "no subscribe call")
	return n.subscribes[len(n.subscribes)-1]
}

type mockResolver struct {
	mock.Mock
	done func(accepted bool)
}

func (m *mockResolver) StartResolution(op nearby.Operation, status nearby.Status, done func(accepted bool)) error {
	m.done = done
	args := m.Called(op, status)
	return args.Error(0)
}

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Connect()           { m.Called() }
func (m *mockAuth) IsConnected() bool  { return m.Called().Bool(0) }
func (m *mockAuth) IsConnecting() bool { return m.Called().Bool(0) }
func (m *mockAuth) SignOut(done func(err error)) {
	m.Called()
	done(nil)
}

type harness struct {
	loop       *Loop
	controller *Controller
	view       *fakeView
	nearby     *fakeNearby
	auth       *mockAuth
	resolver   *mockResolver
	store      *prefs.MemoryStore
	prefs      prefs.Store
}

const localAccount = "local"

func newHarness(t *testing.T, saved ...user.User) *harness {
	t.Helper()

	store := prefs.NewMemoryStore()
	scoped := prefs.Scoped(store, localAccount)
	if len(saved) > 0 {
		require.NoError(t, prefs.NewSavedUsers(scoped).Set(context.Background(), saved))
	}

	h := &harness{
		loop:     NewLoop(),
		view:     &fakeView{},
		nearby:   &fakeNearby{},
		auth:     &mockAuth{},
		resolver: &mockResolver{},
		store:    store,
		prefs:    scoped,
	}

	controller, err := NewController(h.loop, h.view, h.nearby, h.auth, h.resolver, scoped, Options{
		Card: mustUser(t, "Me", "me@example.com"),
		TTL:  time.Minute,
	})
	require.NoError(t, err)
	h.controller = controller

	go h.loop.Run(context.Background())
	t.Cleanup(h.loop.Stop)

	h.flush(t)
	return h
}

// flush waits until everything posted so far has run.
func (h *harness) flush(t *testing.T) {
	t.Helper()

	done := make(chan struct{})
	require.True(t, h.loop.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain")
	}
}

// connected starts the screen and completes the connection.
func (h *harness) connected(t *testing.T) {
	t.Helper()
	h.controller.Start()
	h.flush(t)
	h.nearby.setConnected()
	h.controller.OnConnected()
	h.flush(t)
}

func mustUser(t *testing.T, name, email string) user.User {
	t.Helper()
	u, err := user.New(name, email, "")
	require.NoError(t, err)
	return u
}

func content(t *testing.T, u user.User) []byte {
	t.Helper()
	data, err := user.Encode(u)
	require.NoError(t, err)
	return data
}

var (
	success      = nearby.Status{Code: nearby.StatusSuccess}
	needsOptIn   = nearby.Status{Code: nearby.StatusNeedsResolution, Message: "Nearby opt-in required.", Resolution: nearby.ResolutionNearbyOptIn}
	platformFail = nearby.Status{Code: nearby.StatusFailure, Message: "Nearby is temporarily unavailable."}
)
