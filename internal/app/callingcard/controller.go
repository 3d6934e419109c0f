/*
Package callingcard drives the Calling Card screen: the Nearby connection lifecycle,
the publish and subscribe switches with their opt-in resolution flow, and the
reconciliation of the live nearby roster against the saved roster.

Collaborator callbacks may arrive on any goroutine. The Controller re-posts every one
of them onto its Loop, and all of its state is only touched there.
*/
package callingcard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"callingcard/internal/app/nearby"
	"callingcard/internal/app/prefs"
	"callingcard/internal/app/roster"
	"callingcard/internal/app/session"
	"callingcard/internal/app/user"
	"callingcard/internal/pkg/logx"
)

const (
	signOutFailedMessage  = "Sign out failed, please try again."
	signInRequiredMessage = "Sign-in required."

	storeTimeout = 5 * time.Second
)

// View renders controller state. All methods are called on the Loop.
type View interface {
	ShowSaved(users []user.User)
	ShowNearby(users []user.User)

	// SetPublishing toggles the "being broadcast" indicator on the user's own card.
	SetPublishing(active bool)

	SetSwitchesEnabled(enabled bool)

	// SetPublishSwitch and SetSubscribeSwitch mirror switch positions changed by the
	// controller. They must not call back into the controller.
	SetPublishSwitch(on bool)
	SetSubscribeSwitch(on bool)

	Toast(message string)

	// Confirm asks the user to confirm prompt. onConfirm may be called from any goroutine.
	Confirm(prompt, action string, onConfirm func())

	NavigateToSignIn()
}

// Resolver presents the opt-in flow a NEEDS_RESOLUTION status asks for.
type Resolver interface {
	// StartResolution begins the flow and later reports the user's answer to done,
	// from any goroutine. An error means the flow could not be shown.
	StartResolution(op nearby.Operation, status nearby.Status, done func(accepted bool)) error
}

// NearbyClient is the session to the Nearby discovery service.
type NearbyClient interface {
	Connect()
	Disconnect()
	IsConnected() bool
	IsConnecting() bool
	Publish(content []byte, opts session.PublishOptions, callback session.ResultCallback)
	Unpublish(callback session.ResultCallback)
	Subscribe(listener session.MessageListener, opts session.SubscribeOptions, callback session.ResultCallback)
	Unsubscribe(callback session.ResultCallback)
}

// AuthClient is the sign-in client.
type AuthClient interface {
	Connect()
	IsConnected() bool
	IsConnecting() bool
	SignOut(done func(err error))
}

// Options configure a Controller.
type Options struct {
	// Card is the signed-in user's calling card.
	Card user.User

	// TTL applies to publications and subscriptions; zero uses the service default.
	TTL time.Duration
}

// Controller is the Calling Card screen logic.
type Controller struct {
	loop     *Loop
	view     View
	nearby   NearbyClient
	auth     AuthClient
	resolver Resolver
	saved    *prefs.SavedUsers

	message []byte
	ttl     time.Duration

	publishOn             bool
	subscribeOn           bool
	attemptingToPublish   bool
	attemptingToSubscribe bool

	nearbyUsers *roster.Roster
	savedUsers  *roster.Roster

	logger zerolog.Logger
}

// NewController wires the screen. The caller runs loop.
func NewController(
	loop *Loop,
	view View,
	nearbyClient NearbyClient,
	auth AuthClient,
	resolver Resolver,
	store prefs.Store,
	opts Options,
) (*Controller, error) {
	message, err := user.Encode(opts.Card)
	if err != nil {
		return nil, fmt.Errorf("encode calling card: %w", err)
	}

	c := &Controller{
		loop:        loop,
		view:        view,
		nearby:      nearbyClient,
		auth:        auth,
		resolver:    resolver,
		saved:       prefs.NewSavedUsers(store),
		message:     message,
		ttl:         opts.TTL,
		nearbyUsers: roster.New(),
		savedUsers:  roster.New(),
		logger:      logx.Component("CallingCard"),
	}

	c.post(func() {
		c.view.SetPublishing(false)
		c.syncSwitchEnabledStates()
	})

	return c, nil
}

func (c *Controller) post(fn func()) {
	if !c.loop.Post(fn) {
		c.logger.Debug().Msg("Loop stopped; dropping event.")
	}
}

// Start is called when the screen becomes visible.
func (c *Controller) Start() {
	c.post(func() {
		c.loadSavedUsers()
		c.refreshUsersViews()

		if !c.nearby.IsConnected() && !c.nearby.IsConnecting() {
			c.nearby.Connect()
		}
	})
}

// Stop is called when the screen is hidden.
func (c *Controller) Stop() {
	c.post(func() {
		c.cancelAllNearbyOperations()
		c.disconnectNearby()
	})
}

// SetPublishing is the user turning the publish switch on or off.
func (c *Controller) SetPublishing(on bool) {
	c.post(func() { c.setPublishChecked(on) })
}

// SetSubscribing is the user turning the subscribe switch on or off.
func (c *Controller) SetSubscribing(on bool) {
	c.post(func() { c.setSubscribeChecked(on) })
}

// SelectUser is the user tapping a displayed card.
func (c *Controller) SelectUser(u user.User) {
	c.post(func() {
		if c.savedUsers.Contains(u) {
			c.view.Confirm(fmt.Sprintf("Delete %s's info?", u.Name), "Delete", func() {
				c.post(func() { c.deleteSavedUser(u) })
			})
			return
		}

		c.view.Confirm(fmt.Sprintf("Save %s's info?", u.Name), "Save", func() {
			c.post(func() { c.saveUser(u) })
		})
	})
}

// SignOut signs the user out and leaves the screen.
func (c *Controller) SignOut() {
	c.post(func() {
		switch {
		case c.auth.IsConnected():
			c.auth.SignOut(func(err error) {
				if err != nil {
					c.logger.Warn().Err(err).Msg("Sign-out reported an error.")
				}
				c.post(func() {
					c.cancelAllNearbyOperations()
					c.disconnectNearby()
					c.view.NavigateToSignIn()
				})
			})
		case c.auth.IsConnecting():
			c.view.Toast(signOutFailedMessage)
		default:
			c.auth.Connect()
			c.view.Toast(signOutFailedMessage)
		}
	})
}

// HandleSignInResult handles the outcome of a silent sign-in check.
func (c *Controller) HandleSignInResult(ok bool) {
	if ok {
		return
	}
	c.post(func() {
		c.view.Toast(signInRequiredMessage)
		c.view.NavigateToSignIn()
	})
}

// OnConnected implements session.ConnectionCallbacks.
func (c *Controller) OnConnected() {
	c.post(func() {
		c.syncSwitchEnabledStates()

		if c.publishOn {
			c.attemptToPublish()
		}
		if c.subscribeOn {
			c.attemptToSubscribe()
		}
	})
}

// OnConnectionSuspended implements session.ConnectionCallbacks.
func (c *Controller) OnConnectionSuspended(cause error) {
	c.logger.Warn().Err(cause).Msg("Nearby connection suspended.")
	c.post(func() {
		c.cancelAllNearbyOperations()
		c.syncSwitchEnabledStates()
	})
}

// OnConnectionFailed implements session.ConnectionCallbacks.
func (c *Controller) OnConnectionFailed(err error) {
	c.logger.Warn().Err(err).Msg("Nearby connection failed.")
	c.post(func() {
		c.cancelAllNearbyOperations()
		c.syncSwitchEnabledStates()
	})
}

// OnFound implements session.MessageListener.
func (c *Controller) OnFound(content []byte) {
	c.post(func() {
		u, err := user.Decode(content)
		if err != nil {
			c.logger.Error().Err(err).Str("content", string(content)).Msg("Invalid message received.")
			return
		}

		if c.nearbyUsers.Add(u) {
			c.logger.Debug().Str("name", u.Name).Msg("Discovered user.")
			c.refreshUsersViews()
		}
	})
}

// OnLost implements session.MessageListener.
func (c *Controller) OnLost(content []byte) {
	c.post(func() {
		u, err := user.Decode(content)
		if err != nil {
			c.logger.Error().Err(err).Str("content", string(content)).Msg("Invalid message reported as lost.")
			return
		}

		if c.nearbyUsers.Remove(u) {
			c.logger.Debug().Str("name", u.Name).Msg("Lost user.")
			c.refreshUsersViews()
		}
	})
}

func (c *Controller) onExpired() {
	c.post(c.cancelAllNearbyOperations)
}

// setPublishChecked moves the publish switch and reacts to the change.
func (c *Controller) setPublishChecked(on bool) {
	if c.publishOn == on {
		return
	}
	c.publishOn = on
	c.view.SetPublishSwitch(on)

	if on {
		if c.nearby.IsConnected() {
			c.attemptToPublish()
		} else if !c.nearby.IsConnecting() {
			c.nearby.Connect()
		}
		return
	}

	c.stopPublishing()
	c.attemptingToPublish = false
}

func (c *Controller) setSubscribeChecked(on bool) {
	if c.subscribeOn == on {
		return
	}
	c.subscribeOn = on
	c.view.SetSubscribeSwitch(on)

	if on {
		if c.nearby.IsConnected() {
			c.attemptToSubscribe()
		} else if !c.nearby.IsConnecting() {
			c.nearby.Connect()
		}
		return
	}

	c.stopSubscribing()
	c.attemptingToSubscribe = false
}

func (c *Controller) attemptToPublish() {
	c.attemptingToPublish = true

	opts := session.PublishOptions{TTL: c.ttl, OnExpired: c.onExpired}
	c.nearby.Publish(c.message, opts, func(status nearby.Status) {
		c.post(func() { c.onPublishResult(status) })
	})
}

func (c *Controller) onPublishResult(status nearby.Status) {
	switch {
	case status.IsSuccess() && c.publishOn:
		c.view.SetPublishing(true)
		c.attemptingToPublish = false

	case status.HasResolution() && c.publishOn:
		err := c.resolver.StartResolution(nearby.OpPublish, status, func(accepted bool) {
			c.post(func() { c.onPublishResolution(accepted) })
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("Could not start publish resolution.")
			c.view.SetPublishing(false)
			c.attemptingToPublish = false
			c.toastStatus(status)
		}

	default:
		// Also reached when the switch was turned off before the result arrived.
		c.view.SetPublishing(false)
		c.attemptingToPublish = false
		c.toastStatus(status)
	}
}

func (c *Controller) onPublishResolution(accepted bool) {
	if c.attemptingToPublish && accepted {
		c.attemptToPublish()
	} else {
		c.setPublishChecked(false)
	}
	c.attemptingToPublish = false
}

func (c *Controller) stopPublishing() {
	c.nearby.Unpublish(nil)
	c.view.SetPublishing(false)
}

func (c *Controller) attemptToSubscribe() {
	c.attemptingToSubscribe = true

	opts := session.SubscribeOptions{TTL: c.ttl, OnExpired: c.onExpired}
	c.nearby.Subscribe(c, opts, func(status nearby.Status) {
		c.post(func() { c.onSubscribeResult(status) })
	})
}

func (c *Controller) onSubscribeResult(status nearby.Status) {
	switch {
	case status.IsSuccess():
		c.attemptingToSubscribe = false

	case status.HasResolution() && c.subscribeOn:
		err := c.resolver.StartResolution(nearby.OpSubscribe, status, func(accepted bool) {
			c.post(func() { c.onSubscribeResolution(accepted) })
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("Could not start subscribe resolution.")
			c.attemptingToSubscribe = false
			c.toastStatus(status)
		}

	default:
		c.attemptingToSubscribe = false
		c.toastStatus(status)
	}
}

func (c *Controller) onSubscribeResolution(accepted bool) {
	if c.attemptingToSubscribe && accepted {
		c.attemptToSubscribe()
	} else {
		c.setSubscribeChecked(false)
	}
	c.attemptingToSubscribe = false
}

func (c *Controller) stopSubscribing() {
	c.nearby.Unsubscribe(nil)
	c.nearbyUsers.Clear()
	c.refreshUsersViews()
}

func (c *Controller) cancelAllNearbyOperations() {
	c.setPublishChecked(false)
	c.setSubscribeChecked(false)

	c.nearbyUsers.Clear()
	c.refreshUsersViews()
}

func (c *Controller) disconnectNearby() {
	if c.nearby.IsConnected() || c.nearby.IsConnecting() {
		c.nearby.Disconnect()
	}
	c.syncSwitchEnabledStates()
}

func (c *Controller) syncSwitchEnabledStates() {
	c.view.SetSwitchesEnabled(c.nearby.IsConnected())
}

func (c *Controller) toastStatus(status nearby.Status) {
	if status.Message != "" {
		c.view.Toast(status.Message)
	}
}

func (c *Controller) refreshUsersViews() {
	c.view.ShowSaved(c.savedUsers.Users())
	c.view.ShowNearby(c.nearbyUsers.Difference(c.savedUsers))
}

func (c *Controller) loadSavedUsers() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	users, err := c.saved.Load(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load saved users.")
		return
	}
	c.savedUsers.Replace(users)
	c.logger.Debug().Int("count", c.savedUsers.Len()).Msg("Saved users loaded.")
}

func (c *Controller) saveUser(u user.User) {
	if c.savedUsers.Add(u) {
		c.refreshUsersViews()
		c.persistSavedUsers()
	}
}

func (c *Controller) deleteSavedUser(u user.User) {
	if c.savedUsers.Remove(u) {
		c.refreshUsersViews()
		c.persistSavedUsers()
	}
}

func (c *Controller) persistSavedUsers() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.saved.Set(ctx, c.savedUsers.Users()); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist saved users.")
	}
}
