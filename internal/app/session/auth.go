package session

import (
	"context"
	"sync"

	"callingcard/internal/pkg/logx"
)

// Auth tracks whether the identity token held by an API is usable, the way a
// sign-in client reports connected/connecting.
type Auth struct {
	api *API

	mu         sync.Mutex
	connected  bool
	connecting bool
}

// NewAuth wraps api.
func NewAuth(api *API) *Auth {
	return &Auth{api: api}
}

// IsConnected reports whether the token was last confirmed valid.
func (a *Auth) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// IsConnecting reports whether a check is in flight.
func (a *Auth) IsConnecting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connecting
}

// Connect validates the token in the background.
func (a *Auth) Connect() {
	a.mu.Lock()
	if a.connecting || a.connected {
		a.mu.Unlock()
		return
	}
	a.connecting = true
	a.mu.Unlock()

	go func() {
		_, err := a.api.Me(context.Background())

		a.mu.Lock()
		a.connecting = false
		a.connected = err == nil
		a.mu.Unlock()

		if err != nil {
			logx.Warn("Auth check failed", "error", err.Error())
		}
	}()
}

// MarkConnected records a successful sign-in.
func (a *Auth) MarkConnected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	a.connecting = false
}

// SignOut signs out in the background and reports the outcome to done.
func (a *Auth) SignOut(done func(err error)) {
	go func() {
		err := a.api.SignOut(context.Background())

		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()

		if done != nil {
			done(err)
		}
	}()
}
