/*
Package account persists signed-in identities and their Nearby opt-in state.
*/
package account

import (
	"context"
	"errors"
	"time"

	"callingcard/internal/app/user"
)

// ErrNotFound is returned when no account matches.
var ErrNotFound = errors.New("account not found")

// Account is a signed-in identity.
type Account struct {
	ID            string
	Email         string
	Name          string
	PhotoURL      string
	NearbyConsent bool
	CreatedAt     time.Time
	LastSignInAt  time.Time
}

// Card returns the calling card the account broadcasts.
func (a Account) Card() (user.User, error) {
	return user.New(a.Name, a.Email, a.PhotoURL)
}

// SignInParams carries the profile presented at sign-in.
type SignInParams struct {
	Email    string
	Name     string
	PhotoURL string
}

// Repository is the account store.
type Repository interface {
	// SignIn creates the account for params.Email or refreshes its profile, stamping the sign-in time.
	SignIn(ctx context.Context, params SignInParams) (Account, error)

	// GetByID returns ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (Account, error)

	// SetNearbyConsent records the Nearby opt-in decision.
	SetNearbyConsent(ctx context.Context, id string, consent bool) error

	// HasNearbyConsent reports the account's opt-in; unknown accounts have none.
	HasNearbyConsent(ctx context.Context, id string) (bool, error)

	// SetPhotoURL updates the profile photo.
	SetPhotoURL(ctx context.Context, id string, photoURL string) error
}
